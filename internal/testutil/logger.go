package testutil

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

// NewTestLogger returns a debug logger that writes through t.Log, so output
// only shows for failing tests or with -v. t.Log attributes every line to
// slog's own handler, so each record carries its caller as a short
// source=file:line attribute taken from the record's PC.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(tbWriter{t}, &slog.HandlerOptions{
		Level:       slog.LevelDebug,
		AddSource:   true,
		ReplaceAttr: shortSource,
	}))
}

// shortSource renders the source attribute as "dir/file.go:line" and drops
// the time, which t.Log output does not need.
func shortSource(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 {
		return a
	}
	switch a.Key {
	case slog.TimeKey:
		return slog.Attr{}
	case slog.SourceKey:
		src, ok := a.Value.Any().(*slog.Source)
		if !ok || src == nil {
			return a
		}
		file := filepath.Join(filepath.Base(filepath.Dir(src.File)), filepath.Base(src.File))
		return slog.String(slog.SourceKey, fmt.Sprintf("%s:%d", file, src.Line))
	}
	return a
}

type tbWriter struct {
	t testing.TB
}

func (w tbWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
