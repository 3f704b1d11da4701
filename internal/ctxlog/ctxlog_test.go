package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	got := FromContext(ctx)
	require.Same(t, logger, got)

	got.Info("hello")
	assert.Contains(t, buf.String(), "hello")
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	got := FromContext(context.Background())
	assert.Same(t, slog.Default(), got)
}
