package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ TargetResolver   = (*TargetRegistry)(nil)
	_ TargetHandle     = StaticTarget{}
	_ VisibilityPolicy = AllowAllVisibility{}
	_ VisibilityPolicy = VisibilityFunc(nil)
	_ TxRunner         = inlineTxRunner{}

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
