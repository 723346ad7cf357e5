package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleHandler_Format(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(NewConsoleHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	Component(logger, "process").Debug("invoking interpreter", "args", 3, "cwd", "/work dir")

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, " DBG invoking interpreter process")
	assert.Contains(t, line, "args=3")
	assert.Contains(t, line, `cwd="/work dir"`)
	assert.NotContains(t, line, "component=")
	assert.NotContains(t, line, "\033[", "buffers are never terminals")
}

func TestConsoleHandler_Level(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn)

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "WRN shown")
}

func TestConsoleHandler_GroupsAndErrors(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo).WithGroup("run")

	logger.Error("runner failed", "err", errors.New("exit status 3"))

	assert.Contains(t, buf.String(), `run.err="exit status 3"`)
}

func TestConsoleHandler_Color(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := NewConsoleHandler(&buf, nil)
	h.SetUseColor(true)

	slog.New(h).Error("boom")

	assert.Contains(t, buf.String(), colorRed+"ERR"+colorReset)
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	t.Parallel()

	assert.False(t, Nop().Enabled(context.Background(), slog.LevelError))
}
