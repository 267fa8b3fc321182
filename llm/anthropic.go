package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// EnvAnthropicAPIKey is the environment variable consulted when no API key is
// configured.
const EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"

// Config holds Anthropic backend settings.
type Config struct {
	// APIKey authenticates against the Anthropic API. Falls back to the
	// ANTHROPIC_API_KEY environment variable when empty.
	APIKey string

	// Model is the model identifier to generate with.
	Model string

	// MaxTokens caps the completion length.
	MaxTokens int64

	// System is an optional system prompt applied to every request.
	System string
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	Model:     "claude-sonnet-4-20250514",
	MaxTokens: 2048,
}

// Anthropic is a Generator backed by the Anthropic Messages API.
type Anthropic struct {
	client anthropic.Client
	config Config
}

// NewAnthropic creates an Anthropic-backed generator.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(EnvAnthropicAPIKey)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: api key not set (config or %s)", EnvAnthropicAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultConfig.MaxTokens
	}

	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		config: cfg,
	}, nil
}

// Generate sends the prompt as a single user message and returns the
// concatenated text blocks of the response.
func (a *Anthropic) Generate(ctx context.Context, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.config.Model),
		MaxTokens: a.config.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if a.config.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: a.config.System},
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}
