// Package gemini provides the Gemini-backed implementation of the
// generation.Invoker interface. It wraps the Google genai client with
// retry and error-classification logic so callers see the generation
// package's sentinel errors rather than raw API failures.
package gemini
