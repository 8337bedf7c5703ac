// Package shared holds the request-context keys and response helpers
// that every handler package uses.
package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"time"
)

// ContextKey types request-context keys so they cannot collide with
// keys set by other packages.
type ContextKey string

const (
	// UserIDContextKey carries the authenticated user's ID, stamped by
	// the auth middleware.
	UserIDContextKey ContextKey = "userID"

	// TraceIDKey carries the per-request trace ID.
	TraceIDKey ContextKey = "traceID"
)

// traceIDBytes is the entropy per trace ID; hex-encoded to 32 chars.
const traceIDBytes = 16

// SetTraceID stamps a fresh trace ID into ctx. Log lines and error
// responses carrying the same ID correlate to one request.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, newTraceID())
}

// GetTraceID returns the request's trace ID, or "" when none was set.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

func newTraceID() string {
	b := make([]byte, traceIDBytes)
	if _, err := rand.Read(b); err != nil {
		// Trace IDs only need uniqueness, not secrecy; a timestamp
		// keeps requests distinguishable if the entropy source fails.
		binary.BigEndian.PutUint64(b[:8], uint64(time.Now().UnixNano()))
		binary.BigEndian.PutUint64(b[8:], uint64(time.Now().Unix()))
	}
	return hex.EncodeToString(b)
}
