// Package logger provides leveled stderr logging for the Parley CLI.
// Debug and Info are gated behind the --verbose flag so the search
// pipeline can narrate itself on demand; warnings always print because
// they describe degraded states the user should see.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

var (
	mu      sync.RWMutex
	verbose bool
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables Debug and Info output.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// SetOutput redirects log output. Defaults to os.Stderr.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func emit(gated bool, level, format string, args []any) {
	mu.RLock()
	defer mu.RUnlock()
	if gated && !verbose {
		return
	}
	fmt.Fprintf(output, "["+level+"] "+format+"\n", args...)
}

// Debug prints a message in verbose mode only.
func Debug(format string, args ...any) {
	emit(true, "DEBUG", format, args)
}

// Info prints an informational message in verbose mode only.
func Info(format string, args ...any) {
	emit(true, "INFO", format, args)
}

// Warn prints a warning. Warnings are not gated by verbose mode.
func Warn(format string, args ...any) {
	emit(false, "WARN", format, args)
}
