package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

const cacheKeyPrefix = "emb:"

// CachedEmbedder wraps an Embedder with a BadgerDB cache keyed by model and text.
// Only cache misses reach the inner embedder.
type CachedEmbedder struct {
	inner  Embedder
	db     *badger.DB
	model  string
	logger *slog.Logger
}

type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// NewCachedEmbedder opens a cache at dir. An empty dir keeps the cache in memory.
func NewCachedEmbedder(inner Embedder, model, dir string) (*CachedEmbedder, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	logger := slog.Default().With("component", "embedding-cache")
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, db: db, model: model, logger: logger}, nil
}

// Close closes the underlying cache.
func (c *CachedEmbedder) Close() error {
	return c.db.Close()
}

// EmbedText returns the cached vector for text, embedding it on a miss.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts serves hits from the cache and sends the misses to the inner
// embedder in one batch.
func (c *CachedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	err := c.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get(c.key(text))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missIdx = append(missIdx, i)
				missTexts = append(missTexts, text)
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				vec, err := decodeVector(val)
				out[i] = vec
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("cache read failed, embedding all texts", "err", err)
		return c.inner.EmbedTexts(ctx, texts)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := c.inner.EmbedTexts(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(missTexts))
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for j, i := range missIdx {
		out[i] = vectors[j]
		if err := wb.Set(c.key(missTexts[j]), encodeVector(vectors[j])); err != nil {
			c.logger.Warn("cache write failed", "err", err)
			return out, nil
		}
	}
	if err := wb.Flush(); err != nil {
		c.logger.Warn("cache flush failed", "err", err)
	}
	c.logger.Debug("embedded texts", "hits", len(texts)-len(missTexts), "misses", len(missTexts))
	return out, nil
}

func (c *CachedEmbedder) key(text string) []byte {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return append([]byte(cacheKeyPrefix), sum[:]...)
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector of %d bytes", len(buf))
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec, nil
}
