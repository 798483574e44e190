package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunk_ShortTextIsOneChunk(t *testing.T) {
	chunks, err := NewChunker(0, 0).Chunk("A short note about refunds.", "doc-1", "note.txt")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 1, chunks[0].TotalChunks)
	assert.Equal(t, "doc-1", chunks[0].DocumentID)
	assert.Equal(t, "note.txt", chunks[0].Filename)
}

func TestChunk_LongTextIsContiguous(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 400; i++ {
		b.WriteString("The quarterly report covers revenue, margins and hiring plans. ")
		if i%10 == 9 {
			b.WriteString("\n\n")
		}
	}

	chunks, err := NewChunker(DefaultChunkSize, DefaultChunkOverlap).Chunk(b.String(), "doc-2", "report.md")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 5)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, len(chunks), c.TotalChunks)
		assert.Equal(t, "doc-2", c.DocumentID)
		assert.Equal(t, "report.md", c.Filename)
		assert.LessOrEqual(t, len([]rune(c.Text)), DefaultChunkSize)
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}
}

func TestChunk_WhitespaceYieldsNothing(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\n\t"} {
		chunks, err := NewChunker(0, 0).Chunk(text, "d", "f")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	}
}

func TestNewChunker_ClampsOverlap(t *testing.T) {
	chunks, err := NewChunker(50, 80).Chunk(strings.Repeat("word ", 100), "d", "f")
	require.NoError(t, err)
	assert.NotEmpty(t, chunks)
}
