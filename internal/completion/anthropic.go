package completion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
)

type AnthropicConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	MaxTokens   int
}

// AnthropicCompleter wraps the Anthropic messages API.
type AnthropicCompleter struct {
	client      *anthropic.Client
	model       string
	temperature float32
	timeout     time.Duration
	maxTokens   int
}

func NewAnthropicCompleter(cfg AnthropicConfig) (*AnthropicCompleter, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "claude-sonnet-4-5-20250929"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2000
	}
	return &AnthropicCompleter{
		client:      anthropic.NewClient(strings.TrimSpace(cfg.APIKey)),
		model:       model,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
		maxTokens:   maxTokens,
	}, nil
}

func (c *AnthropicCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := c.temperature
	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("request anthropic completion: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("empty anthropic completion response")
}
