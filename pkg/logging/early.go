package logging

import (
	"fmt"
	"os"
)

// EarlyLog prints startup messages before the configured logger exists.
type EarlyLog struct {
	service string
}

func NewEarlyLog(service string) *EarlyLog {
	return &EarlyLog{service: service}
}

func (l *EarlyLog) prefix(level string) string {
	if l.service == "" {
		return level + ": "
	}
	return level + " [" + l.service + "]: "
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, l.prefix("WARN")+msg+"\n", args...)
}
