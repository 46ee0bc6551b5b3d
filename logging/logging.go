package logging

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	// TraceLevel indicates a log message's level of criticality
	TraceLevel = iota
	// DebugLevel indicates a log message's level of criticality
	DebugLevel
	// InfoLevel indicates a log message's level of criticality
	InfoLevel
	// WarnLevel indicates a log message's level of criticality
	WarnLevel
	// ErrorLevel indicates a log message's level of criticality
	ErrorLevel
	// FatalLevel indicates a log message's level of criticality
	FatalLevel
)

// LogLevelToString translates a log level enum to a string representation
func LogLevelToString(level int) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "TRACE"
	}
}

// ParseLevel translates a string representation of a log level (case insensitive) to a log level enum
func ParseLevel(s string) (int, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TraceLevel, nil
	case "DEBUG":
		return DebugLevel, nil
	case "INFO", "":
		return InfoLevel, nil
	case "WARN", "WARNING":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	case "FATAL":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("Unknown log level %q", s)
	}
}

// ToLogrus translates a log level enum to a logrus level
func ToLogrus(level int) log.Level {
	switch level {
	case DebugLevel:
		return log.DebugLevel
	case InfoLevel:
		return log.InfoLevel
	case WarnLevel:
		return log.WarnLevel
	case ErrorLevel:
		return log.ErrorLevel
	case FatalLevel:
		return log.FatalLevel
	default:
		return log.TraceLevel
	}
}

// FromLogrus translates a logrus level to a log level enum
func FromLogrus(level log.Level) int {
	switch level {
	case log.DebugLevel:
		return DebugLevel
	case log.InfoLevel:
		return InfoLevel
	case log.WarnLevel:
		return WarnLevel
	case log.ErrorLevel:
		return ErrorLevel
	case log.FatalLevel, log.PanicLevel:
		return FatalLevel
	default:
		return TraceLevel
	}
}

// SetLevel sets the level of the standard logger
func SetLevel(level int) {
	log.SetLevel(ToLogrus(level))
}

// ForwardingHook is a logrus hook which forwards log entries at or above a level elsewhere,
// typically from a worker to the coordinator
type ForwardingHook struct {
	MinLevel int
	Source   string
	Send     func(level int, source string, message string)
}

// Levels returns the logrus levels this hook fires for
func (h *ForwardingHook) Levels() []log.Level {
	var levels []log.Level
	for _, l := range log.AllLevels {
		if FromLogrus(l) >= h.MinLevel {
			levels = append(levels, l)
		}
	}
	return levels
}

// Fire forwards a log entry
func (h *ForwardingHook) Fire(e *log.Entry) error {
	msg := e.Message
	if len(e.Data) > 0 {
		fields := make([]string, 0, len(e.Data))
		for k, v := range e.Data {
			fields = append(fields, fmt.Sprintf("%s=%v", k, v))
		}
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(fields, " "))
	}
	h.Send(FromLogrus(e.Level), h.Source, msg)
	return nil
}
