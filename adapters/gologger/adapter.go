package gologger

import (
	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

// Logger names used by the delivery pipeline components.
const (
	NameService    = "hooks"
	NameWorker     = "hooks.worker"
	NameConsumer   = "hooks.consumer"
	NameDispatcher = "hooks.dispatcher"
	NameScheduler  = "hooks.scheduler"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

func ToJobProvider(provider glog.LoggerProvider) job.LoggerProvider {
	if provider == nil {
		return nil
	}
	return job.GoLoggerProvider(provider)
}

func ToJobLogger(logger glog.Logger) job.Logger {
	if logger == nil {
		return nil
	}
	return job.GoLogger(logger)
}

// Loggers holds one named logger per pipeline component, all drawn from the
// same provider.
type Loggers struct {
	Provider   glog.LoggerProvider
	Service    glog.Logger
	Worker     glog.Logger
	Consumer   glog.Logger
	Dispatcher glog.Logger
	Scheduler  glog.Logger

	JobProvider job.LoggerProvider
}

// ResolveComponents resolves the provider once and names a logger for each
// component. Without a provider every component shares logger.
func ResolveComponents(provider glog.LoggerProvider, logger glog.Logger) Loggers {
	resolvedProvider, service := Resolve(NameService, provider, logger)
	named := func(name string) glog.Logger {
		if resolvedProvider == nil {
			return glog.Ensure(service)
		}
		return glog.Ensure(resolvedProvider.GetLogger(name))
	}
	return Loggers{
		Provider:    resolvedProvider,
		Service:     glog.Ensure(service),
		Worker:      named(NameWorker),
		Consumer:    named(NameConsumer),
		Dispatcher:  named(NameDispatcher),
		Scheduler:   named(NameScheduler),
		JobProvider: ToJobProvider(resolvedProvider),
	}
}
