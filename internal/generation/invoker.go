package generation

import "context"

// InvokeOptions carries per-call generation settings.
type InvokeOptions struct {
	// JSONMode asks the provider for a JSON response. The raw text still
	// passes through SanitizeJSON before parsing, since providers wrap
	// JSON in Markdown fences more often than not.
	JSONMode bool

	// MaxTokens bounds the response length. Zero means provider default.
	MaxTokens int

	// Temperature controls sampling randomness. Nil means provider default.
	Temperature *float32
}

// Invoker is the interface to a single generation provider. Providers are
// stateless per call; cancellation and timeouts flow through the context.
type Invoker interface {
	// Invoke sends the prompts to the provider and returns the raw
	// response text.
	Invoke(ctx context.Context, systemPrompt, userPrompt string, opts InvokeOptions) (string, error)
}
