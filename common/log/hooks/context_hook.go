package hooks

import (
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
)

// Module path prefix trimmed from reported source locations.
const pathMarker = "GASW-Healing-Plugin/"

type contextHook struct {
}

// NewContextHook returns a hook adding the "file:line" of the logging call to every entry.
func NewContextHook() contextHook {
	return contextHook{}
}

func (hook contextHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (hook contextHook) Fire(entry *logrus.Entry) error {
	entry.Data["file:line"] = caller(string(debug.Stack()))
	return nil
}

// caller finds the first frame outside of logrus and this hook in a
// debug.Stack() dump and returns its file:line relative to the module root.
func caller(stack string) string {
	lines := strings.Split(stack, "\n")
	// Frames are pairs of lines: function, then tab indented file:line.
	for i := 1; i+1 < len(lines); i += 2 {
		fn, loc := lines[i], lines[i+1]
		if strings.Contains(fn, "sirupsen/logrus") || strings.Contains(fn, "runtime/debug") ||
			strings.Contains(loc, "context_hook.go:") {
			continue
		}
		loc = strings.TrimSpace(loc)
		if idx := strings.LastIndex(loc, pathMarker); idx >= 0 {
			loc = loc[idx+len(pathMarker):]
		}
		if idx := strings.LastIndex(loc, " +0x"); idx >= 0 {
			loc = loc[:idx]
		}
		return loc
	}
	return ""
}
