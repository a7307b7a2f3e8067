package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/datasplice/datasplice/internal/models"
	"github.com/datasplice/datasplice/internal/types"
)

// CompleterConfig represents the configuration for a completion client.
type CompleterConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	MaxAttempts int
	Timeout     time.Duration
}

// Completer invokes the completion provider in JSON mode and returns
// the raw structured text. Transport failures are retried with
// exponential backoff up to the attempt budget.
type Completer struct {
	config CompleterConfig
	client llms.Model
	logger *zap.Logger
}

func NewCompleterWithConfig(config CompleterConfig, logger *zap.Logger) (*Completer, error) {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return nil, fmt.Errorf("temperature must be between 0 and 2")
	} else if config.Temperature == 0 {
		config.Temperature = 0.3
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := []openai.Option{
		openai.WithModel(config.Model),
	}
	if config.APIKey != "" {
		opts = append(opts, openai.WithToken(config.APIKey))
	}
	if config.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(config.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize completion client: %w", err)
	}

	return &Completer{
		config: config,
		client: client,
		logger: logger,
	}, nil
}

// Complete sends a system/user prompt pair and returns the JSON-mode
// completion text along with the provider's token usage.
func (c *Completer) Complete(ctx context.Context, system, user string) (string, models.Usage, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	var resp *llms.ContentResponse

	err := retry.Do(
		func() error {
			callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
			defer cancel()

			r, err := c.client.GenerateContent(callCtx, content,
				llms.WithJSONMode(),
				llms.WithTemperature(c.config.Temperature),
				llms.WithMaxTokens(c.config.MaxTokens),
			)
			if err != nil {
				return err
			}
			if r == nil || len(r.Choices) == 0 {
				return fmt.Errorf("provider returned no choices")
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.config.MaxAttempts)),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			c.logger.Warn("completion call failed, retrying",
				zap.Uint("attempt", attempt+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return "", models.Usage{}, fmt.Errorf("completion provider: %w: %w", types.ErrRetriable, err)
	}

	choice := resp.Choices[0]
	return choice.Content, usageFromInfo(choice.GenerationInfo), nil
}

// Model returns the configured completion model name.
func (c *Completer) Model() string {
	return c.config.Model
}

func usageFromInfo(info map[string]any) models.Usage {
	var usage models.Usage
	if v, ok := info["PromptTokens"].(int); ok {
		usage.PromptTokens = v
	}
	if v, ok := info["CompletionTokens"].(int); ok {
		usage.CompletionTokens = v
	}
	if v, ok := info["TotalTokens"].(int); ok {
		usage.TotalTokens = v
	}
	return usage
}
