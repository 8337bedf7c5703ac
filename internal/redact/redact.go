// Package redact scrubs secrets out of error text before it is logged.
// Errors surfaced by the database driver, the AI providers, or the
// auth layer can embed connection strings, API keys, JWTs, or user
// emails; log sites pass them through Error first.
package redact

import "regexp"

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Ordered so broad credential rules run before the generic ones that
// could split their match.
var rules = []rule{
	// Connection strings with inline credentials (postgres://user:pw@host).
	{regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^@\s]+@`), "[redacted-dsn]"},
	// JWTs: three dot-joined base64url segments starting with the
	// standard header prefix.
	{regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`), "[redacted-jwt]"},
	// Key-value credentials (password=..., api_key: ..., token "...").
	{regexp.MustCompile(`(?i)(password|passwd|secret|api[_-]?key|token|bearer)(['"\s:=]+)[^'"&\s]{4,}`), "[redacted-credential]"},
	// Email addresses.
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[redacted-email]"},
	// Absolute filesystem paths (two or more segments).
	{regexp.MustCompile(`(/[\w.-]+){2,}`), "[redacted-path]"},
	// Host:port endpoints.
	{regexp.MustCompile(`\b(?:[A-Za-z0-9](?:[A-Za-z0-9-]{0,61}[A-Za-z0-9])?\.)+[A-Za-z]{2,}:\d{1,5}\b`), "[redacted-host]"},
}

// String replaces sensitive fragments of input with placeholders.
func String(input string) string {
	for _, r := range rules {
		input = r.pattern.ReplaceAllString(input, r.placeholder)
	}
	return input
}

// Error is String applied to err's message. Returns "" for a nil err.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
