package logging

import (
	"bytes"
	"log/slog"
	"strings"
)

// BridgeWriter is an io.Writer that forwards stdlib log output into slog so
// that log.Printf calls from dependencies end up in the same rotated file.
// A leading "[CATEGORY] " prefix becomes the component attribute.
type BridgeWriter struct {
	logger    *slog.Logger
	component string
}

// NewBridgeWriter creates a writer that forwards each write as one record.
// defaultComponent is used when the line has no [CATEGORY] prefix.
func NewBridgeWriter(defaultComponent string) *BridgeWriter {
	return &BridgeWriter{
		logger:    Logger(),
		component: defaultComponent,
	}
}

// Write implements io.Writer.
func (bw *BridgeWriter) Write(p []byte) (int, error) {
	n := len(p)
	msg := string(bytes.TrimSpace(p))
	if msg == "" {
		return n, nil
	}

	msg = stripLogTimestamp(msg)

	component := bw.component
	if strings.HasPrefix(msg, "[") {
		if idx := strings.Index(msg, "] "); idx > 0 {
			component = canonicalComponent(strings.ToLower(msg[1:idx]))
			msg = msg[idx+2:]
		}
	}

	bw.logger.Info(msg, slog.String("component", component))
	return n, nil
}

// stripLogTimestamp removes the prefix added by log.Ltime or
// log.Ltime|log.Lmicroseconds; slog stamps its own time.
func stripLogTimestamp(s string) string {
	if len(s) > 16 && s[2] == ':' && s[5] == ':' && s[8] == '.' && s[15] == ' ' {
		return s[16:]
	}
	if len(s) > 9 && s[2] == ':' && s[5] == ':' && s[8] == ' ' {
		return s[9:]
	}
	return s
}

func canonicalComponent(cat string) string {
	switch cat {
	case "session", "controller", "history":
		return CompSession
	case "shell", "pump", "process", "prompt":
		return CompShell
	case "buffer", "scrollback", "notify":
		return CompScrollback
	case "ui", "tui":
		return CompUI
	case "storage", "statedb", "db":
		return CompStorage
	case "config", "watcher":
		return CompConfig
	case "perf":
		return CompPerf
	default:
		return cat
	}
}
