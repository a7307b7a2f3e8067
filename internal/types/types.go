package types

import (
	"context"

	"github.com/datasplice/datasplice/internal/models"
)

// Core interfaces

// Embedder converts batches of text into fixed-length vectors.
type Embedder interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Completer turns a system/user prompt pair into a JSON-mode completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, models.Usage, error)
	Model() string
}

// ChunkStore is the persistent similarity-search index.
type ChunkStore interface {
	Upsert(ctx context.Context, chunks []models.Chunk) (int, error)
	Query(ctx context.Context, embedding []float32, topK int) ([]models.RetrievedChunk, error)
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) (models.CorpusStats, error)
	Close()
}

// Extractor pulls paged text out of one source document.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]models.Page, error)
	Supports(path string) bool
}
