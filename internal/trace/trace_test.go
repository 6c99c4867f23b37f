package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartSpan_Disabled(t *testing.T) {
	require.NoError(t, Init(false, "ledger-test"))

	ctx, span := StartSpan(context.Background(), "cycle")
	defer span.End()

	assert.False(t, Enabled())
	assert.False(t, span.SpanContext().IsValid())
	_, ok := TraceID(ctx)
	assert.False(t, ok)
}

func TestStartSpan_Enabled(t *testing.T) {
	require.NoError(t, Init(true, "ledger-test"))
	t.Cleanup(func() {
		_ = Shutdown(context.Background())
		enabled = false
	})

	ctx, span := StartSpan(context.Background(), "cycle")
	defer span.End()

	id, ok := TraceID(ctx)
	assert.True(t, ok)
	assert.Len(t, id, 32)
}
