package gologger

import (
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

// Resolve uses deterministic precedence provider > logger > nop.
func Resolve(name string, provider glog.LoggerProvider, logger glog.Logger) (glog.LoggerProvider, glog.Logger) {
	return glog.Resolve(name, provider, logger)
}

const RootLoggerName = "syndication"

// ComponentLogger returns the logger named syndication.<component>, falling
// back to the resolved root logger when the provider returns nil.
func ComponentLogger(provider glog.LoggerProvider, logger glog.Logger, component string) glog.Logger {
	resolvedProvider, resolvedLogger := Resolve(RootLoggerName, provider, logger)
	name := RootLoggerName
	if component = strings.Trim(strings.TrimSpace(component), "."); component != "" {
		name += "." + component
	}
	if resolvedProvider != nil {
		if named := resolvedProvider.GetLogger(name); named != nil {
			return glog.Ensure(named)
		}
	}
	return glog.Ensure(resolvedLogger)
}
