package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/datasplice/datasplice/internal/types"
)

// EmbedderConfig represents the configuration for an embedding client.
type EmbedderConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	VectorDim   int
	BatchSize   int
	MaxAttempts int
	Timeout     time.Duration
	RateLimit   float64 // batches per second
}

// Embedder converts text batches into fixed-length vectors through the
// provider, with rate limiting and bounded exponential-backoff retries.
type Embedder struct {
	config  EmbedderConfig
	client  *openai.LLM
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewEmbedderWithConfig(config EmbedderConfig, logger *zap.Logger) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "text-embedding-3-large"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 3072
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2.0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{
		openai.WithEmbeddingModel(config.Model),
	}
	if config.APIKey != "" {
		opts = append(opts, openai.WithToken(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return &Embedder{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logger,
	}, nil
}

// CreateEmbedding embeds texts in batches, preserving input order.
// Rate-limit and timeout failures are retried with exponential backoff;
// once the attempt budget is spent the error surfaces as retriable.
func (e *Embedder) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		vectors, err := e.embedBatch(ctx, batch)
		if err != nil {
			return nil, err
		}

		for i, v := range vectors {
			if len(v) != e.config.VectorDim {
				return nil, fmt.Errorf("embedding for text %d has dimension %d, expected %d: %w",
					start+i, len(v), e.config.VectorDim, types.ErrDimensionMismatch)
			}
		}

		out = append(out, vectors...)
	}

	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32

	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()

			v, err := e.client.CreateEmbedding(callCtx, batch)
			if err != nil {
				return err
			}
			if len(v) != len(batch) {
				return fmt.Errorf("provider returned %d embeddings for %d texts", len(v), len(batch))
			}
			vectors = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(e.config.MaxAttempts)),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			e.logger.Warn("embedding batch failed, retrying",
				zap.Uint("attempt", attempt+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, &types.EmbeddingError{Err: fmt.Errorf("%w: %w", types.ErrRetriable, err)}
	}

	return vectors, nil
}

// Dimension returns the configured vector dimensionality.
func (e *Embedder) Dimension() int {
	return e.config.VectorDim
}
