package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract checks the behaviour every backend must share.
func runStoreContract(t *testing.T, store Store) {
	ctx := context.Background()

	t.Run("Get-Missing", func(t *testing.T) {
		_, ok, err := store.Get(ctx, "missing.json")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Put-Get", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "plan.json", []byte(`{"a":1}`)))

		data, ok, err := store.Get(ctx, "plan.json")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"a":1}`, string(data))
	})

	t.Run("Put-Overwrites", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "plan.json", []byte(`{"a":2}`)))

		data, ok, err := store.Get(ctx, "plan.json")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.JSONEq(t, `{"a":2}`, string(data))
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "plan.json"))
		_, ok, err := store.Get(ctx, "plan.json")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, store.Delete(ctx, "plan.json"), "deleting a missing key is fine")
	})

	t.Run("Clear", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "one.json", []byte(`1`)))
		require.NoError(t, store.Put(ctx, "two.json", []byte(`2`)))
		require.NoError(t, store.Clear(ctx))

		for _, key := range []string{"one.json", "two.json"} {
			_, ok, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok, key)
		}
	})
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	runStoreContract(t, store)

	t.Run("Rejects-Path-Traversal", func(t *testing.T) {
		err := store.Put(context.Background(), "../escape.json", []byte(`{}`))
		assert.True(t, errors.Is(err, ErrInvalidKey))
	})

	t.Run("No-Temp-Files-Left", func(t *testing.T) {
		require.NoError(t, store.Put(context.Background(), "clean.json", []byte(`{}`)))
		matches, err := filepath.Glob(filepath.Join(dir, ".tmp-*"))
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("Concurrent-Writers-Same-Key", func(t *testing.T) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Put(ctx, "shared.json", []byte(`{"same":"value"}`)))
			}()
		}
		wg.Wait()

		data, err := os.ReadFile(filepath.Join(dir, "shared.json"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"same":"value"}`, string(data))
	})
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisStore(client, "", 0)
	runStoreContract(t, store)

	t.Run("Prefix", func(t *testing.T) {
		require.NoError(t, store.Put(context.Background(), "k.json", []byte(`{}`)))
		assert.True(t, mr.Exists("mealplan:k.json"))
	})

	t.Run("Clear-Leaves-Other-Keys", func(t *testing.T) {
		require.NoError(t, mr.Set("unrelated", "x"))
		require.NoError(t, store.Clear(context.Background()))
		assert.True(t, mr.Exists("unrelated"))
	})

	t.Run("Dial", func(t *testing.T) {
		c, err := DialRedis(context.Background(), mr.Addr(), "", 0)
		require.NoError(t, err)
		c.Close()
	})
}

func TestMemoryStore(t *testing.T) {
	store, err := NewMemoryStore(8)
	require.NoError(t, err)

	runStoreContract(t, store)

	t.Run("Evicts-Least-Recently-Used", func(t *testing.T) {
		small, err := NewMemoryStore(2)
		require.NoError(t, err)
		ctx := context.Background()

		require.NoError(t, small.Put(ctx, "a", []byte("1")))
		require.NoError(t, small.Put(ctx, "b", []byte("2")))
		_, _, _ = small.Get(ctx, "a")
		require.NoError(t, small.Put(ctx, "c", []byte("3")))

		_, ok, _ := small.Get(ctx, "b")
		assert.False(t, ok)
		_, ok, _ = small.Get(ctx, "a")
		assert.True(t, ok)
		assert.Equal(t, 2, small.Len())
	})

	t.Run("Returns-Copies", func(t *testing.T) {
		ctx := context.Background()
		require.NoError(t, store.Put(ctx, "copy", []byte("abc")))
		data, _, _ := store.Get(ctx, "copy")
		data[0] = 'z'
		again, _, _ := store.Get(ctx, "copy")
		assert.Equal(t, "abc", string(again))
	})
}
