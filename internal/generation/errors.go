package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrProviderFailure is returned when every configured provider failed
	// to produce a response. The wrapped error carries both providers'
	// failures.
	ErrProviderFailure = errors.New("all generation providers failed")

	// ErrStructuringFailure is returned when a provider responded but the
	// content could not be parsed into the expected structure. This is a
	// content problem, not a transport problem, and callers surface it
	// distinctly so the user is told to retry rather than to top up.
	ErrStructuringFailure = errors.New("provider returned unparsable content")

	// ErrContentBlocked is returned when the provider blocks the request
	// due to safety filters.
	ErrContentBlocked = errors.New("content blocked by provider safety filters")

	// ErrInvalidConfig is returned when a provider configuration is invalid.
	ErrInvalidConfig = errors.New("invalid provider configuration")
)
