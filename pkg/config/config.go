package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLM struct {
		APIKey      string  `yaml:"api_key"`
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		EmbedModel  string  `yaml:"embed_model"`
		MaxTokens   int     `yaml:"max_tokens"`
		Temperature float64 `yaml:"temperature"`
	} `yaml:"llm"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		VectorDim int    `yaml:"vector_dim"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Retrieval struct {
		TopK           int     `yaml:"top_k"`
		Clusters       int     `yaml:"clusters"`
		CapPerCluster  int     `yaml:"cap_per_cluster"`
		DedupThreshold float32 `yaml:"dedup_threshold"`
		Seed           int64   `yaml:"seed"`
	} `yaml:"retrieval"`

	Processor struct {
		ChunkSize      int `yaml:"chunk_size"`
		ChunkOverlap   int `yaml:"chunk_overlap"`
		MinChunkLength int `yaml:"min_chunk_length"`
	} `yaml:"processor"`

	Confidence struct {
		VolumeWeight         float64 `yaml:"volume_weight"`
		DensityWeight        float64 `yaml:"density_weight"`
		RelevanceWeight      float64 `yaml:"relevance_weight"`
		CoverageWeight       float64 `yaml:"coverage_weight"`
		ExpectedMinCitations int     `yaml:"expected_min_citations"`
	} `yaml:"confidence"`

	Providers struct {
		MaxAttempts int           `yaml:"max_attempts"`
		Timeout     time.Duration `yaml:"timeout"`
		RateLimit   float64       `yaml:"rate_limit"`
	} `yaml:"providers"`

	Server struct {
		Addr      string `yaml:"addr"`
		UploadDir string `yaml:"upload_dir"`
	} `yaml:"server"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/datasplice/config.yaml"),
			"/etc/datasplice/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.Model == "" {
		config.LLM.Model = "gpt-4o-mini"
	}
	if config.LLM.EmbedModel == "" {
		config.LLM.EmbedModel = "text-embedding-3-large"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 2000
	}
	if config.LLM.Temperature == 0 {
		config.LLM.Temperature = 0.3
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "chunks"
	}
	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 3072
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Retrieval.TopK == 0 {
		config.Retrieval.TopK = 12
	}
	if config.Retrieval.Clusters == 0 {
		config.Retrieval.Clusters = 3
	}
	if config.Retrieval.CapPerCluster == 0 {
		config.Retrieval.CapPerCluster = 3
	}
	if config.Retrieval.DedupThreshold == 0 {
		config.Retrieval.DedupThreshold = 0.95
	}
	if config.Retrieval.Seed == 0 {
		config.Retrieval.Seed = 42
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 600
	}
	if config.Processor.ChunkOverlap == 0 {
		config.Processor.ChunkOverlap = 90
	}
	if config.Processor.MinChunkLength == 0 {
		config.Processor.MinChunkLength = 40
	}

	if config.Confidence.VolumeWeight == 0 && config.Confidence.DensityWeight == 0 &&
		config.Confidence.RelevanceWeight == 0 && config.Confidence.CoverageWeight == 0 {
		config.Confidence.VolumeWeight = 0.35
		config.Confidence.DensityWeight = 0.2
		config.Confidence.RelevanceWeight = 0.2
		config.Confidence.CoverageWeight = 0.25
	}
	if config.Confidence.ExpectedMinCitations == 0 {
		config.Confidence.ExpectedMinCitations = 4
	}

	if config.Providers.MaxAttempts == 0 {
		config.Providers.MaxAttempts = 3
	}
	if config.Providers.Timeout == 0 {
		config.Providers.Timeout = 60 * time.Second
	}
	if config.Providers.RateLimit == 0 {
		config.Providers.RateLimit = 2.0
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8080"
	}
	if config.Server.UploadDir == "" {
		config.Server.UploadDir = "./data/uploads"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		config.LLM.APIKey = key
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if model := os.Getenv("EMBED_MODEL"); model != "" {
		config.LLM.EmbedModel = model
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if topK := os.Getenv("TOP_K"); topK != "" {
		if n, err := strconv.Atoi(topK); err == nil {
			config.Retrieval.TopK = n
		}
	}
	if clusters := os.Getenv("CLUSTERS"); clusters != "" {
		if n, err := strconv.Atoi(clusters); err == nil {
			config.Retrieval.Clusters = n
		}
	}
}
