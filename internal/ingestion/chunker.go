package ingestion

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/xiaot623/gogo/ragrouter/internal/domain"
)

const (
	DefaultChunkSize    = 2048
	DefaultChunkOverlap = 200
)

var chunkSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits document text into overlapping chunks.
type Chunker struct {
	splitter textsplitter.TextSplitter
}

func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultChunkOverlap, size/10)
	}
	return &Chunker{
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithSeparators(chunkSeparators),
		),
	}
}

// Chunk splits text and stamps every chunk with its position and parent.
// Whitespace-only text yields no chunks.
func (c *Chunker) Chunk(text, documentID, filename string) ([]domain.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	parts, err := c.splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}

	chunks := make([]domain.Chunk, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{Text: p, DocumentID: documentID, Filename: filename})
	}
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks, nil
}
