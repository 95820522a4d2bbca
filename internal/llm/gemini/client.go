// Package gemini implements llm.Completer using Google Gemini.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/invoicy-app/invoicy/internal/llm"
)

type Client struct {
	client *genai.Client
	model  *genai.GenerativeModel
	logger *slog.Logger
}

// Config for the Gemini completer.
type Config struct {
	APIKey    string
	Model     string // default "gemini-1.5-flash"
	MaxTokens int    // output ceiling; default 4096
}

func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(cfg.Model)
	model.SetTemperature(0)
	model.SetMaxOutputTokens(int32(cfg.MaxTokens))

	return &Client{client: client, model: model, logger: logger}, nil
}

// Complete sends one prompt and returns the text response plus token usage.
// Gemini likes to wrap JSON in markdown fences; those are stripped here so
// downstream parsing sees the same shape as other providers.
func (c *Client) Complete(ctx context.Context, prompt string) (string, llm.Usage, error) {
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", llm.Usage{}, fmt.Errorf("generating content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", llm.Usage{}, fmt.Errorf("no response from gemini")
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}

	text := llm.CleanCompletion(b.String())

	var usage llm.Usage
	if resp.UsageMetadata != nil {
		usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	c.logger.Info("llm.complete.ok",
		"provider", "gemini",
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
	)
	return text, usage, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}
