package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// FallbackInvoker tries a primary provider and, on any failure, retries
// the same prompts once against a fallback provider. Both failing wraps
// both errors under ErrProviderFailure.
type FallbackInvoker struct {
	primary  Invoker
	fallback Invoker
	logger   *slog.Logger

	// fallbackSystemPrompt, when non-empty, replaces the system prompt on
	// the fallback attempt. Providers differ in how they weight system
	// instructions, so callers may supply a variant tuned for the
	// secondary provider.
	fallbackSystemPrompt string
}

// NewFallbackInvoker creates a FallbackInvoker. fallback may be nil, in
// which case primary failures are returned directly.
func NewFallbackInvoker(primary, fallback Invoker, logger *slog.Logger) (*FallbackInvoker, error) {
	if primary == nil {
		return nil, errors.New("primary invoker cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	return &FallbackInvoker{
		primary:  primary,
		fallback: fallback,
		logger:   logger.With(slog.String("component", "fallback_invoker")),
	}, nil
}

// SetFallbackSystemPrompt sets the system-prompt variant used on fallback
// attempts.
func (f *FallbackInvoker) SetFallbackSystemPrompt(prompt string) {
	f.fallbackSystemPrompt = prompt
}

// Invoke implements the Invoker interface.
func (f *FallbackInvoker) Invoke(ctx context.Context, systemPrompt, userPrompt string, opts InvokeOptions) (string, error) {
	text, primaryErr := f.primary.Invoke(ctx, systemPrompt, userPrompt, opts)
	if primaryErr == nil {
		return text, nil
	}

	if f.fallback == nil {
		return "", primaryErr
	}

	// The caller's cancellation also covers the retry; don't burn a
	// fallback call when the request itself is gone.
	if ctx.Err() != nil {
		return "", primaryErr
	}

	f.logger.WarnContext(ctx, "primary provider failed, retrying on fallback",
		slog.String("error", primaryErr.Error()))

	sys := systemPrompt
	if f.fallbackSystemPrompt != "" {
		sys = f.fallbackSystemPrompt
	}

	text, fallbackErr := f.fallback.Invoke(ctx, sys, userPrompt, opts)
	if fallbackErr == nil {
		return text, nil
	}

	f.logger.ErrorContext(ctx, "fallback provider also failed",
		slog.String("primary_error", primaryErr.Error()),
		slog.String("fallback_error", fallbackErr.Error()))

	return "", fmt.Errorf("%w: primary: %v; fallback: %v", ErrProviderFailure, primaryErr, fallbackErr)
}

// Ensure FallbackInvoker implements Invoker
var _ Invoker = (*FallbackInvoker)(nil)
