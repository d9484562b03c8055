package main

import (
	"fmt"
	"os"
	"time"
)

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// stderrLogger adapts the engine Logger interface to plain stderr lines
// for --verbose runs.
type stderrLogger struct{}

func (stderrLogger) Debug(msg string, kv ...interface{}) { logLine("debug", msg, kv) }
func (stderrLogger) Info(msg string, kv ...interface{}) { logLine("info", msg, kv) }
func (stderrLogger) Error(msg string, kv ...interface{}) { logLine("error", msg, kv) }

func logLine(level, msg string, kv []interface{}) {
	fmt.Fprintf(os.Stderr, "[%s] %s", level, msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(os.Stderr, " %v=%v", kv[i], kv[i+1])
	}
	fmt.Fprintln(os.Stderr)
}
