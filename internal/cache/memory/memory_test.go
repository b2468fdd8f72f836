package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nulzo/claude-gate/internal/cache"
)

func TestSetGetDelete(t *testing.T) {
	c := New()
	ctx := context.Background()

	type payload struct {
		Name string `json:"name"`
	}

	require.NoError(t, c.Set(ctx, "k", payload{Name: "x"}, time.Minute))

	var got payload
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "x", got.Name)

	require.NoError(t, c.Delete(ctx, "k"))
	assert.ErrorIs(t, c.Get(ctx, "k", &got), cache.ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := New()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	var got string
	assert.ErrorIs(t, c.Get(ctx, "k", &got), cache.ErrNotFound)
}

func TestMissingKey(t *testing.T) {
	c := New()
	var got string
	assert.ErrorIs(t, c.Get(context.Background(), "nope", &got), cache.ErrNotFound)
}
