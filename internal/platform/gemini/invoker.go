package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"github.com/pathwise/pathwise-api/internal/config"
	"github.com/pathwise/pathwise-api/internal/generation"
	"google.golang.org/genai"
)

const (
	maxRetries       = 2
	baseRetryDelay   = 2 * time.Second
	defaultMaxTokens = 8192
)

// Invoker implements generation.Invoker against Google's Gemini API.
// Transient API failures are retried with exponential backoff; safety
// blocks and malformed responses are returned immediately.
type Invoker struct {
	logger *slog.Logger
	client *genai.Client
	model  string
}

// NewInvoker creates a Gemini-backed Invoker from LLM configuration.
func NewInvoker(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*Invoker, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.GeminiModel == "" {
		return nil, fmt.Errorf("%w: gemini model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return &Invoker{
		logger: logger.With(slog.String("component", "gemini_invoker")),
		client: client,
		model:  cfg.GeminiModel,
	}, nil
}

// Invoke implements the generation.Invoker interface.
func (g *Invoker) Invoke(ctx context.Context, systemPrompt, userPrompt string, opts generation.InvokeOptions) (string, error) {
	if userPrompt == "" {
		return "", errors.New("user prompt cannot be empty")
	}

	genCfg := &genai.GenerateContentConfig{
		MaxOutputTokens: defaultMaxTokens,
	}
	if opts.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature != nil {
		genCfg.Temperature = opts.Temperature
	}
	if opts.JSONMode {
		genCfg.ResponseMIMEType = "application/json"
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		text, err := g.generate(ctx, userPrompt, genCfg)
		if err == nil {
			return text, nil
		}
		lastErr = err

		// Safety blocks and empty responses never recover on retry.
		if errors.Is(err, generation.ErrContentBlocked) || errors.Is(err, generation.ErrStructuringFailure) {
			return "", err
		}

		if attempt >= maxRetries {
			break
		}

		// Exponential backoff with jitter between 0.5x and 1.0x.
		backoff := float64(baseRetryDelay) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoff * (0.5 + rng.Float64()*0.5))

		g.logger.WarnContext(ctx, "gemini call failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", generation.ErrProviderFailure, ctx.Err())
		}
	}

	return "", fmt.Errorf("%w: gemini: exceeded %d attempts: %v",
		generation.ErrProviderFailure, maxRetries+1, lastErr)
}

func (g *Invoker) generate(ctx context.Context, prompt string, cfg *genai.GenerateContentConfig) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API call: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: gemini returned no candidates", generation.ErrStructuringFailure)
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: gemini blocked content for safety", generation.ErrContentBlocked)
	}
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("%w: gemini returned empty content", generation.ErrStructuringFailure)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text parts", generation.ErrStructuringFailure)
	}
	return text, nil
}

var _ generation.Invoker = (*Invoker)(nil)
