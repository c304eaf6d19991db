// Package logger provides levelled logging for the Ephemera CLI.
// Debug and Info messages are printed only in verbose mode; warnings and
// errors are always printed. Output is either prefixed text lines or
// structured JSON records produced by log/slog.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Format selects how log lines are rendered.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu      sync.RWMutex
	verbose bool
	format            = FormatText
	output  io.Writer = os.Stderr
)

// SetVerbose enables or disables verbose logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// SetFormat selects text or JSON output. Unknown formats fall back to text.
func SetFormat(f Format) {
	mu.Lock()
	defer mu.Unlock()
	if f != FormatJSON {
		f = FormatText
	}
	format = f
}

// Debug prints a message if verbose mode is enabled.
func Debug(msg string, args ...any) {
	write(slog.LevelDebug, false, fmt.Sprintf(msg, args...), nil)
}

// Info prints an informational message if verbose mode is enabled.
func Info(msg string, args ...any) {
	write(slog.LevelInfo, false, fmt.Sprintf(msg, args...), nil)
}

// Warn prints a warning message.
func Warn(msg string, args ...any) {
	write(slog.LevelWarn, true, fmt.Sprintf(msg, args...), nil)
}

// Error prints an error message.
func Error(msg string, args ...any) {
	write(slog.LevelError, true, fmt.Sprintf(msg, args...), nil)
}

// Event records a verbose message with key/value attributes,
// e.g. Event("stage finished", "stage", "embed", "items", 12).
func Event(msg string, kv ...any) {
	write(slog.LevelInfo, false, msg, kv)
}

// Section prints a section header if verbose mode is enabled.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if !verbose {
		return
	}
	if format == FormatJSON {
		jsonLogger().Debug("section", "name", name)
		return
	}
	fmt.Fprintf(output, "\n=== %s ===\n", name)
}

// write holds the exclusive lock so concurrent callers never interleave
// partial lines on the shared output.
func write(level slog.Level, always bool, msg string, kv []any) {
	mu.Lock()
	defer mu.Unlock()
	if !always && !verbose {
		return
	}

	if format == FormatJSON {
		jsonLogger().Log(context.Background(), level, msg, kv...)
		return
	}

	var b strings.Builder
	b.WriteString(prefix(level))
	b.WriteString(msg)
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	b.WriteByte('\n')
	io.WriteString(output, b.String()) //nolint:errcheck
}

// jsonLogger builds a logger on the current output (caller must hold the lock).
func jsonLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func prefix(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "[DEBUG] "
	case slog.LevelInfo:
		return "[INFO] "
	case slog.LevelWarn:
		return "[WARN] "
	default:
		return "[ERROR] "
	}
}
