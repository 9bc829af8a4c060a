package gologger

import (
	"strings"

	job "github.com/goliatone/go-job"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	ServiceLoggerName    = "certidigital"
	PollWorkerLoggerName = "certidigital.poll_worker"
)

// Resolve picks provider > logger > nop. A blank name falls back to the
// service logger name.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	if strings.TrimSpace(name) == "" {
		name = ServiceLoggerName
	}
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

// ResolveForJob resolves like Resolve and also returns the go-job bridges of
// the result.
func ResolveForJob(
	name string,
	provider glog.LoggerProvider,
	logger glog.Logger,
) (glog.LoggerProvider, glog.Logger, job.LoggerProvider, job.Logger) {
	resolvedProvider, resolvedLogger := Resolve(name, provider, logger)
	return resolvedProvider, resolvedLogger, ToJobProvider(resolvedProvider), ToJobLogger(resolvedLogger)
}

// ForPollWorker returns the go-job logger the emissions poll worker and its
// hook write to, named PollWorkerLoggerName when a provider is available.
func ForPollWorker(provider glog.LoggerProvider, logger glog.Logger) job.Logger {
	_, _, jobProvider, jobLogger := ResolveForJob(PollWorkerLoggerName, provider, logger)
	if jobProvider != nil {
		if named := jobProvider.GetLogger(PollWorkerLoggerName); named != nil {
			return named
		}
	}
	if jobLogger != nil {
		return jobLogger
	}
	return ToJobLogger(glog.Nop())
}
