package archive

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"local":  NewLocalStore(filepath.Join(t.TempDir(), "archive")),
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			keys, err := s.List(ctx, "")
			require.NoError(t, err)
			assert.Empty(t, keys)

			_, err = s.Get(ctx, "runs/missing")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(ctx, "runs/b", []byte("second")))
			require.NoError(t, s.Put(ctx, "runs/a", []byte("first")))
			require.NoError(t, s.Put(ctx, "other/c", []byte("third")))
			require.NoError(t, s.Put(ctx, "runs/a", []byte("replaced")))

			data, err := s.Get(ctx, "runs/a")
			require.NoError(t, err)
			assert.Equal(t, "replaced", string(data))

			keys, err = s.List(ctx, "runs/")
			require.NoError(t, err)
			assert.Equal(t, []string{"runs/a", "runs/b"}, keys)

			keys, err = s.List(ctx, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"other/c", "runs/a", "runs/b"}, keys)

			require.NoError(t, s.Delete(ctx, "runs/a"))
			require.NoError(t, s.Delete(ctx, "runs/a"))
			_, err = s.Get(ctx, "runs/a")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStores_EmptyValue(t *testing.T) {
	ctx := context.Background()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(ctx, "empty", nil))
			data, err := s.Get(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, data)
		})
	}
}

func TestStores_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, s.Put(ctx, "k", []byte("v")), context.Canceled)
			_, err := s.Get(ctx, "k")
			assert.ErrorIs(t, err, context.Canceled)
		})
	}
}
