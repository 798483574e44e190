package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/ragrouter/config"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/embedding"
	"github.com/xiaot623/gogo/ragrouter/internal/adapter/vectorindex"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestMockModeWiresInProcessCollaborators(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = config.ModeMock

	emb, release, err := newEmbedder(cfg)
	require.NoError(t, err)
	defer release()
	assert.IsType(t, &embedding.MockEmbedder{}, emb)

	idx, err := newIndex(cfg)
	require.NoError(t, err)
	assert.IsType(t, &vectorindex.MemoryIndex{}, idx)
}
