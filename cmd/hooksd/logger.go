package main

import (
	"io"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// newRootLogger builds the daemon's root logger. Component loggers are
// named children obtained through GetLogger.
func newRootLogger(w io.Writer, cfg loggingConfig) *glog.BaseLogger {
	opts := []glog.Option{
		glog.WithWriter(w),
		glog.WithLevel(strings.TrimSpace(cfg.Level)),
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "text", "console":
		opts = append(opts, glog.WithLoggerTypeConsole())
	case "pretty":
		opts = append(opts, glog.WithLoggerTypePretty())
	default:
		opts = append(opts, glog.WithLoggerTypeJSON())
	}
	return glog.NewLogger(opts...)
}
