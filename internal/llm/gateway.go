// Package llm sends assembled analysis prompts to a chat completion model.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
)

// DefaultMaxTokens is the maximum prompt length before truncation (in tokens).
const DefaultMaxTokens = 16000

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o"

// ErrEmptyResponse is returned when the model answers with no choices or no content.
var ErrEmptyResponse = errors.New("empty response from model")

// Gateway produces free-text analysis for a prompt.
type Gateway struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewGateway creates a gateway with the given OpenAI client.
// Optional maxTokens parameter sets truncation limit (defaults to DefaultMaxTokens).
func NewGateway(client *openai.Client, model string, logger *slog.Logger, maxTokens ...int) *Gateway {
	max := DefaultMaxTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		max = maxTokens[0]
	}
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		client:    client,
		model:     model,
		maxTokens: max,
		logger:    logger,
	}
}

// Analyze sends prompt to the model and returns its answer text.
// Rate-limited requests are retried with exponential backoff.
func (g *Gateway) Analyze(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(g.truncatePrompt(prompt)),
		},
		Model: openai.ChatModel(g.model),
	}

	var content string
	operation := func() error {
		resp, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				return err
			}
			return backoff.Permanent(fmt.Errorf("chat completion failed: %w", err))
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(ErrEmptyResponse)
		}
		content = strings.TrimSpace(resp.Choices[0].Message.Content)
		if content == "" {
			return backoff.Permanent(ErrEmptyResponse)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return "", err
	}
	return content, nil
}

func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// truncatePrompt truncates the prompt to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (g *Gateway) truncatePrompt(prompt string) string {
	maxChars := g.maxTokens * 4

	if len(prompt) <= maxChars {
		return prompt
	}

	g.logger.Warn("Truncating prompt",
		"from_chars", len(prompt),
		"to_chars", maxChars,
		"max_tokens", g.maxTokens,
	)

	return prompt[:maxChars]
}
