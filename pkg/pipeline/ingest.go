package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/datasplice/datasplice/internal/models"
	"github.com/datasplice/datasplice/internal/types"
	"github.com/datasplice/datasplice/pkg/extract"
	"github.com/datasplice/datasplice/pkg/processor"
)

// IngestConfig represents the configuration for the ingestion pipeline.
type IngestConfig struct {
	// Parallelism bounds how many documents are processed at once.
	// Embedding calls are independent per document, so documents can
	// be embedded concurrently; the store's upsert-by-id keeps
	// concurrent writes safe.
	Parallelism int
	// OnFile is called as each file finishes, for progress reporting.
	OnFile func(file string)
}

// Ingestor runs extract → chunk → embed → upsert for source documents.
type Ingestor struct {
	config    IngestConfig
	processor processor.Processor
	embedder  types.Embedder
	store     types.ChunkStore
	logger    *zap.Logger
}

func NewIngestor(
	config IngestConfig,
	proc processor.Processor,
	embedder types.Embedder,
	store types.ChunkStore,
	logger *zap.Logger,
) *Ingestor {
	if config.Parallelism == 0 {
		config.Parallelism = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Ingestor{
		config:    config,
		processor: proc,
		embedder:  embedder,
		store:     store,
		logger:    logger,
	}
}

// IngestFiles processes documents concurrently and reports per-file
// failures without aborting the whole batch.
func (ing *Ingestor) IngestFiles(ctx context.Context, paths []string) models.IngestResult {
	var (
		mu     sync.Mutex
		result models.IngestResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ing.config.Parallelism)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			added, err := ing.IngestFile(gctx, path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			} else {
				result.AddedChunks += added
			}

			if ing.config.OnFile != nil {
				ing.config.OnFile(path)
			}
			// Per-file errors are collected, not propagated; only
			// context cancellation stops the batch.
			return gctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		mu.Lock()
		result.Errors = append(result.Errors, fmt.Sprintf("ingestion aborted: %v", err))
		mu.Unlock()
	}

	result.OK = result.AddedChunks > 0
	ing.logger.Info("ingestion complete",
		zap.Int("added_chunks", result.AddedChunks),
		zap.Int("errors", len(result.Errors)))

	return result
}

// IngestFile runs the full pipeline for one document and returns the
// number of chunks upserted.
func (ing *Ingestor) IngestFile(ctx context.Context, path string) (int, error) {
	file := filepath.Base(path)

	if !extract.Supported(path) {
		return 0, fmt.Errorf("unsupported file type %s", filepath.Ext(path))
	}

	pages, err := extract.Extract(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("text extraction failed: %w", err)
	}
	if len(pages) == 0 {
		return 0, fmt.Errorf("no text extracted")
	}

	chunks, err := ing.processor.Process(file, pages)
	if err != nil {
		return 0, fmt.Errorf("chunking failed: %w", err)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no chunks created")
	}

	ing.logger.Debug("document chunked",
		zap.String("file", file),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)))

	return ing.embedAndStore(ctx, file, chunks)
}

// IngestWeb crawls a documentation site and ingests each fetched page
// as a single-page source named after its URL.
func (ing *Ingestor) IngestWeb(ctx context.Context, source *extract.WebSource) (models.IngestResult, error) {
	var result models.IngestResult

	documents, err := source.Crawl(ctx)
	if err != nil && len(documents) == 0 {
		return result, fmt.Errorf("crawl failed: %w", err)
	}

	for _, doc := range documents {
		chunks, err := ing.processor.Process(doc.URL, []models.Page{{Number: 1, Text: doc.Text}})
		if err != nil || len(chunks) == 0 {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: no chunks created", doc.URL))
			continue
		}

		added, err := ing.embedAndStore(ctx, doc.URL, chunks)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", doc.URL, err))
			continue
		}
		result.AddedChunks += added
	}

	result.OK = result.AddedChunks > 0
	return result, nil
}

func (ing *Ingestor) embedAndStore(ctx context.Context, file string, chunks []models.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := ing.embedder.CreateEmbedding(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding generation failed: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embedding count mismatch (chunks: %d, embeddings: %d)", len(chunks), len(vectors))
	}

	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	added, err := ing.store.Upsert(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("store upsert failed: %w", err)
	}

	ing.logger.Info("document ingested", zap.String("file", file), zap.Int("chunks", added))
	return added, nil
}
