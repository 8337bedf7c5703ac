// Package openai provides an OpenAI-backed generation.Invoker over the
// Chat Completions HTTP API. It serves as the fallback provider when
// Gemini is unavailable.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pathwise/pathwise-api/internal/config"
	"github.com/pathwise/pathwise-api/internal/generation"
)

const defaultAPIURL = "https://api.openai.com/v1/chat/completions"

// Invoker implements generation.Invoker against the OpenAI Chat
// Completions endpoint.
type Invoker struct {
	apiKey     string
	model      string
	apiURL     string
	logger     *slog.Logger
	httpClient *http.Client
}

// NewInvoker creates an OpenAI-backed Invoker from LLM configuration.
func NewInvoker(logger *slog.Logger, cfg config.LLMConfig) (*Invoker, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}
	if strings.TrimSpace(cfg.OpenAIModel) == "" {
		return nil, fmt.Errorf("%w: openai model name cannot be empty", generation.ErrInvalidConfig)
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &Invoker{
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.OpenAIModel,
		apiURL:     defaultAPIURL,
		logger:     logger.With(slog.String("component", "openai_invoker")),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Invoke implements the generation.Invoker interface.
func (c *Invoker) Invoke(ctx context.Context, systemPrompt, userPrompt string, opts generation.InvokeOptions) (string, error) {
	if userPrompt == "" {
		return "", errors.New("user prompt cannot be empty")
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	reqBody := chatRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: opts.MaxTokens,
	}
	if opts.Temperature != nil {
		reqBody.Temperature = opts.Temperature
	}
	if opts.JSONMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build openai request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: openai request: %v", generation.ErrProviderFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read openai response: %v", generation.ErrProviderFailure, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: parse openai response: %v", generation.ErrProviderFailure, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: openai: %s (%s)", generation.ErrProviderFailure,
			parsed.Error.Message, parsed.Error.Type)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: openai response missing choices", generation.ErrStructuringFailure)
	}

	choice := parsed.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", fmt.Errorf("%w: openai filtered content", generation.ErrContentBlocked)
	}

	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: openai response empty content", generation.ErrStructuringFailure)
	}

	if parsed.Usage != nil {
		c.logger.DebugContext(ctx, "openai call completed",
			slog.String("model", parsed.Model),
			slog.Int("prompt_tokens", parsed.Usage.PromptTokens),
			slog.Int("completion_tokens", parsed.Usage.CompletionTokens))
	}
	return content, nil
}

var _ generation.Invoker = (*Invoker)(nil)
