package utils

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, slog.LevelInfo)

	log.Debug("hidden")
	assert.Empty(t, buf.String())

	ctx := WithDefaultArgs(context.Background(), "table", "events")
	ctx = WithDefaultArgs(ctx, "column", "color")
	log.WarnCtx(ctx, "reclaim failed", "err", "boom")
	out := buf.String()
	assert.Contains(t, out, "[lsindex] reclaim failed")
	assert.Contains(t, out, "table=events")
	assert.Contains(t, out, "column=color")
	assert.Contains(t, out, "err=boom")
}
