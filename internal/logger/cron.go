package logger

import (
	"fmt"
	"strings"
)

// CronLogger adapts a Logger to the robfig/cron logging interface
type CronLogger struct {
	L *Logger
}

// Info logs routine cron messages at debug level
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.L.Debug("%s%s", msg, formatKeysAndValues(keysAndValues))
}

// Error logs cron failures, including recovered job panics
func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.L.Error("%s: %v%s", msg, err, formatKeysAndValues(keysAndValues))
}

func formatKeysAndValues(kv []interface{}) string {
	if len(kv) == 0 {
		return ""
	}

	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&b, " %v", kv[i])
		}
	}
	return b.String()
}
