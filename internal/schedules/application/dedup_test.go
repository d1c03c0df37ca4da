package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshields/caseplan/internal/schedules/application"
)

func TestMemoryDeduper(t *testing.T) {
	ctx := context.Background()
	deduper := application.NewMemoryDeduper()

	seen, err := deduper.Seen(ctx, "delivery-1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, deduper.MarkProcessed(ctx, "delivery-1"))

	seen, err = deduper.Seen(ctx, "delivery-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = deduper.Seen(ctx, "delivery-2")
	require.NoError(t, err)
	assert.False(t, seen)
}
