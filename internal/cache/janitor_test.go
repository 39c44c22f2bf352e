package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJanitor(t *testing.T) {
	t.Run("sweeps expired entries in the background", func(t *testing.T) {
		// Arrange
		store := newTestStore(t, Config{SweepInterval: 20 * time.Millisecond})
		ctx := context.Background()

		require.True(t, store.Set(ctx, "brief", "v", WithTTL(10*time.Millisecond)))
		require.True(t, store.Set(ctx, "stable", "v"))

		// Act
		store.StartJanitor()
		time.Sleep(60 * time.Millisecond)

		// Assert - the expired entry is gone without any Get touching it
		assert.Equal(t, 1, store.Stats().Entries)

		var got string
		assert.True(t, store.Get(ctx, "stable", &got))
	})

	t.Run("stop is safe to call twice", func(t *testing.T) {
		store := newTestStore(t, Config{SweepInterval: 10 * time.Millisecond})

		store.StartJanitor()
		store.StopJanitor()
		store.StopJanitor()
	})

	t.Run("start while running is a no-op", func(t *testing.T) {
		store := newTestStore(t, Config{SweepInterval: 10 * time.Millisecond})

		store.StartJanitor()
		store.StartJanitor()
		store.StopJanitor()
	})
}
