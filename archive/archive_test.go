package archive

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/ensemble"
	"github.com/hupe1980/ensemble/cluster"
	"github.com/hupe1980/ensemble/codec"
	"github.com/hupe1980/ensemble/params"
	"github.com/hupe1980/ensemble/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// dbscanResult has two clusters and one noise row.
func dbscanResult(t *testing.T) *ensemble.Result {
	t.Helper()
	data := mat.NewDense(7, 1, []float64{0, 0.1, 0.2, 10, 10.1, 10.2, 50})
	res, err := ensemble.New(data, params.Params{"eps": 0.5, "min_samples": 2}).DBSCAN(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Noise)
	return res
}

func TestArchive_SaveLoad(t *testing.T) {
	ctx := context.Background()
	res := dbscanResult(t)

	for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		for name, store := range stores(t) {
			t.Run(comp.String()+"/"+name, func(t *testing.T) {
				a := New(store, WithCompression(comp), WithCodec(codec.JSON{}))

				rec, err := a.Save(ctx, res)
				require.NoError(t, err)
				assert.Equal(t, uuid.Version(7), rec.ID.Version())

				got, err := a.Load(ctx, rec.ID)
				require.NoError(t, err)

				assert.Equal(t, rec.ID, got.ID)
				assert.Equal(t, ensemble.AlgorithmDBSCAN, got.Algorithm)
				assert.Equal(t, res.Assignment, got.Assignment)
				assert.Equal(t, cluster.Noise, got.Assignment[6])
				assert.Equal(t, res.Items, got.Items)
				assert.Equal(t, res.Clusters, got.Clusters)
				assert.Equal(t, 0.5, got.Params["eps"])
				assert.Equal(t, float64(2), got.Params["min_samples"])
				assert.Equal(t, res.Duration, got.Duration)
				assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

				noise, err := got.NoiseSet()
				require.NoError(t, err)
				assert.Equal(t, []uint32{6}, noise.ToArray())
			})
		}
	}
}

func TestArchive_FramesDecodeWithTheirOwnCodec(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	rec, err := New(store, WithCodec(codec.JSON{})).Save(ctx, dbscanResult(t))
	require.NoError(t, err)

	got, err := New(store, WithCodec(codec.GoJSON{})).Load(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Assignment, got.Assignment)
}

func TestArchive_ListDelete(t *testing.T) {
	ctx := context.Background()
	store := NewLocalStore(filepath.Join(t.TempDir(), "runs"))
	a := New(store)
	res := dbscanResult(t)

	var want []uuid.UUID
	for i := 0; i < 3; i++ {
		rec, err := a.Save(ctx, res)
		require.NoError(t, err)
		want = append(want, rec.ID)
	}
	require.NoError(t, store.Put(ctx, "runs/notes.txt", []byte("ignored")))

	ids, err := a.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, ids)

	require.NoError(t, a.Delete(ctx, want[1]))
	ids, err = a.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{want[0], want[2]}, ids)

	_, err = a.Load(ctx, want[1])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestArchive_NilResult(t *testing.T) {
	_, err := New(NewMemoryStore()).Save(context.Background(), nil)
	assert.Error(t, err)
}

func TestArchive_CorruptStoredFrame(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := New(store)

	rec, err := a.Save(ctx, dbscanResult(t))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, rec.Key(), []byte("garbage")))

	_, err = a.Load(ctx, rec.ID)
	assert.ErrorIs(t, err, ErrCorruptFrame)
}

func TestArchive_Catalog(t *testing.T) {
	ctx := context.Background()
	cat := NewMemoryCatalog()
	a := New(NewMemoryStore(), WithCatalog(cat))

	_, err := New(NewMemoryStore()).Entries(ctx)
	assert.ErrorIs(t, err, ErrNoCatalog)

	res := dbscanResult(t)
	first, err := a.Save(ctx, res)
	require.NoError(t, err)
	second, err := a.Save(ctx, res)
	require.NoError(t, err)

	entries, err := a.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(1), entries[0].Sequence)
	assert.Equal(t, first.ID, entries[0].ID)
	assert.Equal(t, first.Key(), entries[0].Key)
	assert.Equal(t, uint64(2), entries[1].Sequence)
	assert.Equal(t, second.ID, entries[1].ID)
	assert.Equal(t, 1, entries[1].Noise)
}

// racyCatalog fails the first appends with ErrConcurrentAppend.
type racyCatalog struct {
	MemoryCatalog
	mu       sync.Mutex
	failures int
	err      error
}

func (c *racyCatalog) Append(ctx context.Context, e Entry) (Entry, error) {
	c.mu.Lock()
	if c.failures > 0 {
		c.failures--
		c.mu.Unlock()
		return Entry{}, c.err
	}
	c.mu.Unlock()
	return c.MemoryCatalog.Append(ctx, e)
}

func TestArchive_CatalogRetries(t *testing.T) {
	ctx := context.Background()
	var logs bytes.Buffer
	logger := ensemble.NewLogger(slog.NewTextHandler(&logs, nil))

	cat := &racyCatalog{failures: 2, err: ErrConcurrentAppend}
	_, err := New(NewMemoryStore(), WithCatalog(cat), WithLogger(logger)).Save(ctx, dbscanResult(t))
	require.NoError(t, err)
	assert.Contains(t, logs.String(), "catalog append raced")

	cat = &racyCatalog{failures: maxAppendAttempts, err: ErrConcurrentAppend}
	_, err = New(NewMemoryStore(), WithCatalog(cat)).Save(ctx, dbscanResult(t))
	assert.ErrorIs(t, err, ErrConcurrentAppend)

	boom := errors.New("throttled")
	cat = &racyCatalog{failures: 1, err: boom}
	_, err = New(NewMemoryStore(), WithCatalog(cat)).Save(ctx, dbscanResult(t))
	assert.ErrorIs(t, err, boom)
}

func TestArchive_RateLimitedIO(t *testing.T) {
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 64})
	a := New(NewMemoryStore(), WithResourceController(rc))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// A frame of a few hundred bytes cannot pass a 64 B/s limit in time.
	_, err := a.Save(ctx, dbscanResult(t))
	assert.Error(t, err)
}

func TestNewRecord(t *testing.T) {
	res := dbscanResult(t)
	res.Params["pooling_func"] = func([]float64) float64 { return 0 }

	rec, err := NewRecord(res)
	require.NoError(t, err)

	assert.IsType(t, "", rec.Params["pooling_func"])
	assert.Equal(t, "runs/"+rec.ID.String()+".ensr", rec.Key())

	// The record owns its labels.
	res.Assignment[0] = 99
	assert.NotEqual(t, 99, rec.Assignment[0])

	clean, err := NewRecord(&ensemble.Result{Algorithm: "kmeans", Assignment: []int{0, 1}})
	require.NoError(t, err)
	assert.Nil(t, clean.NoiseMask)
	bm, err := clean.NoiseSet()
	require.NoError(t, err)
	assert.True(t, bm.IsEmpty())
}

func TestIDFromKey(t *testing.T) {
	id := uuid.Must(uuid.NewV7())

	got, ok := idFromKey(recordKey(id))
	require.True(t, ok)
	assert.Equal(t, id, got)

	for _, key := range []string{"runs/x.ensr", "other/" + id.String() + ".ensr", "runs/" + id.String() + ".json"} {
		_, ok := idFromKey(key)
		assert.False(t, ok, key)
	}
}
