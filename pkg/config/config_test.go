package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configData := `
llm:
  base_url: "http://localhost:11434/v1"
  model: "gpt-4o"
  max_tokens: 1500
  temperature: 0.5

database:
  url: "postgres://localhost:5432/test"
  table_name: "test_chunks"
  vector_dim: 1536
  batch_size: 50

retrieval:
  top_k: 8
  clusters: 4
  cap_per_cluster: 2
  dedup_threshold: 0.9

processor:
  chunk_size: 500
  chunk_overlap: 100

server:
  addr: ":9090"
`
	err := os.WriteFile(configPath, []byte(configData), 0644)
	require.NoError(t, err)

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434/v1", config.LLM.BaseURL)
	assert.Equal(t, "gpt-4o", config.LLM.Model)
	assert.Equal(t, 1500, config.LLM.MaxTokens)
	assert.Equal(t, 0.5, config.LLM.Temperature)
	assert.Equal(t, "postgres://localhost:5432/test", config.Database.URL)
	assert.Equal(t, "test_chunks", config.Database.TableName)
	assert.Equal(t, 1536, config.Database.VectorDim)
	assert.Equal(t, 8, config.Retrieval.TopK)
	assert.Equal(t, 4, config.Retrieval.Clusters)
	assert.Equal(t, float32(0.9), config.Retrieval.DedupThreshold)
	assert.Equal(t, 500, config.Processor.ChunkSize)
	assert.Equal(t, ":9090", config.Server.Addr)
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("LLM_MODEL", "")
	t.Setenv("EMBED_MODEL", "")
	t.Setenv("TOP_K", "")
	t.Setenv("CLUSTERS", "")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  api_key: test\n"), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", config.LLM.Model)
	assert.Equal(t, "text-embedding-3-large", config.LLM.EmbedModel)
	assert.Equal(t, 2000, config.LLM.MaxTokens)
	assert.Equal(t, 3072, config.Database.VectorDim)
	assert.Equal(t, "chunks", config.Database.TableName)
	assert.Equal(t, 12, config.Retrieval.TopK)
	assert.Equal(t, 3, config.Retrieval.Clusters)
	assert.Equal(t, 3, config.Retrieval.CapPerCluster)
	assert.Equal(t, float32(0.95), config.Retrieval.DedupThreshold)
	assert.Equal(t, int64(42), config.Retrieval.Seed)
	assert.Equal(t, 600, config.Processor.ChunkSize)
	assert.Equal(t, 90, config.Processor.ChunkOverlap)
	assert.Equal(t, 0.35, config.Confidence.VolumeWeight)
	assert.Equal(t, 0.25, config.Confidence.CoverageWeight)
	assert.Equal(t, 4, config.Confidence.ExpectedMinCitations)
	assert.Equal(t, 3, config.Providers.MaxAttempts)
	assert.Equal(t, 60*time.Second, config.Providers.Timeout)
	assert.Equal(t, ":8080", config.Server.Addr)
}

func TestConfigValidation(t *testing.T) {
	defaulted := func(mutate func(*Config)) Config {
		var c Config
		applyDefaults(&c)
		if mutate != nil {
			mutate(&c)
		}
		return c
	}

	tests := []struct {
		name          string
		config        Config
		errorMessages []string
	}{
		{
			name:   "valid defaults",
			config: defaulted(nil),
		},
		{
			name: "llm bounds",
			config: defaulted(func(c *Config) {
				c.LLM.MaxTokens = 10000
				c.LLM.Temperature = 3.0
			}),
			errorMessages: []string{
				"llm.max_tokens: max_tokens must be between 1 and 8192",
				"llm.temperature: temperature must be between 0 and 2",
			},
		},
		{
			name: "retrieval bounds",
			config: defaulted(func(c *Config) {
				c.Retrieval.TopK = -1
				c.Retrieval.Clusters = -1
				c.Retrieval.DedupThreshold = 1.5
			}),
			errorMessages: []string{
				"retrieval.top_k: top_k must be positive",
				"retrieval.clusters: clusters must be at least 1",
				"retrieval.dedup_threshold: dedup_threshold must be in (0, 1]",
			},
		},
		{
			name: "overlap exceeds chunk size",
			config: defaulted(func(c *Config) {
				c.Processor.ChunkSize = 100
				c.Processor.ChunkOverlap = 100
			}),
			errorMessages: []string{
				"processor.chunk_overlap: chunk_overlap must be non-negative and less than chunk_size",
			},
		},
		{
			name: "confidence weights all zero",
			config: defaulted(func(c *Config) {
				c.Confidence.VolumeWeight = 0
				c.Confidence.DensityWeight = 0
				c.Confidence.RelevanceWeight = 0
				c.Confidence.CoverageWeight = 0
			}),
			errorMessages: []string{
				"confidence: confidence weights must sum to a positive value",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errors := tt.config.Validate()
			assert.Len(t, errors, len(tt.errorMessages))

			for i, msg := range tt.errorMessages {
				assert.Contains(t, errors[i].Error(), msg)
			}
		})
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_BASE_URL", "http://env-provider:8000/v1")
	t.Setenv("DATABASE_URL", "postgres://env-db:5432/test")
	t.Setenv("TOP_K", "20")
	t.Setenv("CLUSTERS", "5")

	config := &Config{}
	mergeWithEnv(config)

	assert.Equal(t, "sk-test", config.LLM.APIKey)
	assert.Equal(t, "http://env-provider:8000/v1", config.LLM.BaseURL)
	assert.Equal(t, "postgres://env-db:5432/test", config.Database.URL)
	assert.Equal(t, 20, config.Retrieval.TopK)
	assert.Equal(t, 5, config.Retrieval.Clusters)
}
