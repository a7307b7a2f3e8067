package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/datasplice/datasplice/internal/models"
	"github.com/datasplice/datasplice/internal/types"
	"github.com/datasplice/datasplice/pkg/fusion"
	"github.com/datasplice/datasplice/pkg/synthesis"
)

// QueryConfig represents the configuration for the query pipeline.
type QueryConfig struct {
	TopK int
}

// Pipeline composes embedding, retrieval, fusion, synthesis and
// confidence scoring into one stateless request/response unit. The
// only persistent state lives in the chunk store.
type Pipeline struct {
	config   QueryConfig
	embedder types.Embedder
	store    types.ChunkStore
	engine   *fusion.Engine
	synth    *synthesis.Synthesizer
	scorer   *synthesis.Scorer
	logger   *zap.Logger
}

func NewWithConfig(
	config QueryConfig,
	embedder types.Embedder,
	store types.ChunkStore,
	engine *fusion.Engine,
	synth *synthesis.Synthesizer,
	scorer *synthesis.Scorer,
	logger *zap.Logger,
) *Pipeline {
	if config.TopK == 0 {
		config.TopK = 12
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		config:   config,
		embedder: embedder,
		store:    store,
		engine:   engine,
		synth:    synth,
		scorer:   scorer,
		logger:   logger,
	}
}

// RunQuery executes the five pipeline steps strictly in sequence.
// An empty retrieval set short-circuits with an explicit zero-result
// response; the completion provider is never invoked for it.
func (p *Pipeline) RunQuery(ctx context.Context, query string, topK int) (*models.QueryResponse, error) {
	if topK <= 0 {
		topK = p.config.TopK
	}

	p.logger.Info("processing query", zap.String("query", truncate(query, 100)), zap.Int("top_k", topK))

	// Step 1: embed the query.
	vectors, err := p.embedder.CreateEmbedding(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, &types.EmbeddingError{Err: fmt.Errorf("expected 1 query vector, got %d", len(vectors))}
	}

	// Step 2: retrieve nearest chunks.
	retrieved, err := p.store.Query(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	if len(retrieved) == 0 {
		return p.emptyResponse(ctx, query)
	}

	p.logger.Debug("retrieved chunks",
		zap.Int("count", len(retrieved)),
		zap.Float32("top_similarity", retrieved[0].Similarity))

	// Step 3: fuse into subtopic clusters.
	clusters, err := p.engine.Fuse(retrieved)
	if err != nil {
		return nil, fmt.Errorf("fusion failed: %w", err)
	}

	// Step 4: synthesize the structured answer.
	resp, err := p.synth.Synthesize(ctx, query, clusters)
	if err != nil {
		return nil, err
	}

	// Step 5: score confidence against the full retrieved set.
	resp.Confidence = p.scorer.Score(resp, retrieved)
	resp.ConfidenceLabel = synthesis.Label(resp.Confidence)

	p.logger.Info("query complete",
		zap.Int("subtopics", len(resp.Subtopics)),
		zap.Int("citations", len(resp.CitationsFlat)),
		zap.Float64("confidence", resp.Confidence))

	return resp, nil
}

// emptyResponse distinguishes a corpus with no documents from a query
// that simply matched nothing. Both are valid zero-confidence results,
// not errors.
func (p *Pipeline) emptyResponse(ctx context.Context, query string) (*models.QueryResponse, error) {
	summary := "No relevant information found in the corpus for this query."
	if stats, err := p.store.Stats(ctx); err == nil && stats.ChunkCount == 0 {
		summary = "No documents have been ingested into the corpus yet."
	}

	p.logger.Warn("empty retrieval set", zap.String("query", truncate(query, 100)))

	return &models.QueryResponse{
		Query:           query,
		Summary:         summary,
		Confidence:      0,
		ConfidenceLabel: synthesis.Label(0),
	}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
