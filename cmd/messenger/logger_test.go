// ABOUTME: Tests for the CLI's colorized slog handler.
// ABOUTME: Covers level filtering, group-qualified keys and value quoting.

package main

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestColorHandler_RendersQualifiedAttrs(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := slog.New(&colorHandler{level: slog.LevelDebug, out: &buf}).
		With("component", "realtime").
		WithGroup("conn").
		With("id", 7)

	logger.Info("connected", "url", "ws://live.test", "note", "two words")

	line := buf.String()
	assert.Contains(t, line, " INFO connected")
	assert.Contains(t, line, "component=realtime")
	assert.Contains(t, line, "conn.id=7")
	assert.Contains(t, line, "conn.url=ws://live.test")
	assert.Contains(t, line, `conn.note="two words"`)
}

func TestColorHandler_LevelTags(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = prev })

	var buf bytes.Buffer
	logger := slog.New(&colorHandler{level: slog.LevelDebug, out: &buf})

	logger.Debug("d")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	out := buf.String()
	assert.Contains(t, out, "DEBUG d")
	assert.Contains(t, out, " INFO i")
	assert.Contains(t, out, " WARN w")
	assert.Contains(t, out, "ERROR e")
}

func TestColorHandler_FiltersBelowLevel(t *testing.T) {
	h := &colorHandler{level: slog.LevelWarn}

	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}
