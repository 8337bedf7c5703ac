// Package generation defines the boundary between the application core
// and external AI providers, plus the provider-fallback chain and the
// response-sanitizing helpers shared by all generation tasks.
package generation
