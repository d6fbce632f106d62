package sidecar

import "slices"

// Ensure is the desired presence of the sidecar service.
type Ensure string

const (
	EnsurePresent Ensure = "present"
	EnsureAbsent  Ensure = "absent"
)

var ensureValues = []string{string(EnsurePresent), string(EnsureAbsent)}

func (e Ensure) Validate() error {
	return checkEnum("ensure", string(e), ensureValues)
}

// RunState is the lifecycle state requested from the service manager.
type RunState string

const (
	RunStateRunning RunState = "running"
	RunStateStopped RunState = "stopped"
)

// DeriveRunState maps a presence intent onto a run state. Anything other
// than present means the service must not run.
func DeriveRunState(e Ensure) RunState {
	switch e {
	case EnsurePresent:
		return RunStateRunning
	default:
		return RunStateStopped
	}
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

var logLevelValues = []string{
	string(LogLevelDebug),
	string(LogLevelInfo),
	string(LogLevelWarn),
	string(LogLevelError),
	string(LogLevelFatal),
}

func (l LogLevel) Validate() error {
	return checkEnum("log_level", string(l), logLevelValues)
}

type LogFormat string

const (
	LogFormatLogfmt LogFormat = "logfmt"
	LogFormatJSON   LogFormat = "json"
)

var logFormatValues = []string{string(LogFormatLogfmt), string(LogFormatJSON)}

func (f LogFormat) Validate() error {
	return checkEnum("log_format", string(f), logFormatValues)
}

func checkEnum(field, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return &InvalidEnumValueError{Field: field, Value: value, Allowed: allowed}
}
