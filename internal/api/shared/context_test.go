package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetTraceID_StampsUniqueIDs(t *testing.T) {
	t.Parallel()

	ctxA := SetTraceID(context.Background())
	ctxB := SetTraceID(context.Background())

	idA := GetTraceID(ctxA)
	idB := GetTraceID(ctxB)

	assert.Len(t, idA, traceIDBytes*2)
	assert.Len(t, idB, traceIDBytes*2)
	assert.NotEqual(t, idA, idB)
}

func TestGetTraceID_MissingReturnsEmpty(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GetTraceID(context.Background()))
}

func TestSetTraceID_OverwritesExisting(t *testing.T) {
	t.Parallel()

	ctx := SetTraceID(context.Background())
	first := GetTraceID(ctx)

	ctx = SetTraceID(ctx)
	assert.NotEqual(t, first, GetTraceID(ctx))
}
