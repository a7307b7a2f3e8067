package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.BaseURL != "" {
		if _, err := url.Parse(c.LLM.BaseURL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "llm.base_url",
				Message: "invalid provider base URL",
			})
		}
	}

	// Validate Database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Retrieval config
	if c.Retrieval.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.top_k",
			Message: "top_k must be positive",
		})
	}

	if c.Retrieval.Clusters < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.clusters",
			Message: "clusters must be at least 1",
		})
	}

	if c.Retrieval.CapPerCluster < 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.cap_per_cluster",
			Message: "cap_per_cluster must be positive",
		})
	}

	if c.Retrieval.DedupThreshold <= 0 || c.Retrieval.DedupThreshold > 1 {
		errors = append(errors, ValidationError{
			Field:   "retrieval.dedup_threshold",
			Message: "dedup_threshold must be in (0, 1]",
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate Confidence weights
	wsum := c.Confidence.VolumeWeight + c.Confidence.DensityWeight +
		c.Confidence.RelevanceWeight + c.Confidence.CoverageWeight
	if wsum <= 0 {
		errors = append(errors, ValidationError{
			Field:   "confidence",
			Message: "confidence weights must sum to a positive value",
		})
	}

	// Validate Providers config
	if c.Providers.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "providers.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	if c.Providers.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "providers.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	return errors
}
