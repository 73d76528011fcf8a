package logpipeline

import (
	"regexp"
	"strings"

	"github.com/flutter-demon/fdemon/internal/types"
)

var ansiEscapeRe = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes terminal escape sequences from a raw daemon line
// before severity detection or exception-block matching runs on it.
func StripANSI(line string) string {
	return ansiEscapeRe.ReplaceAllString(line, "")
}

// DetectRawLineLevel applies the raw-line severity heuristic to a
// free-text line that did not parse as a structured daemon frame.
// Order matters: the first matching rule wins.
func DetectRawLineLevel(line string) types.LogLevel {
	clean := StripANSI(line)

	switch {
	case strings.HasPrefix(clean, "E/"):
		return types.LevelError
	case strings.HasPrefix(clean, "W/"):
		return types.LevelWarning
	case strings.Contains(clean, "FAILURE:"),
		strings.Contains(clean, "BUILD FAILED"),
		strings.Contains(clean, "error:"),
		strings.Contains(clean, "❌"):
		return types.LevelError
	case strings.Contains(clean, "warning:"), strings.Contains(clean, "⚠"):
		return types.LevelWarning
	case strings.HasPrefix(clean, "Running "),
		strings.HasPrefix(clean, "Building "),
		strings.HasPrefix(clean, "Compiling "),
		strings.Contains(clean, "..."):
		return types.LevelDebug
	default:
		return types.LevelInfo
	}
}
