package archive

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrConcurrentAppend is returned by a Catalog when another writer claimed
// the same sequence number first. The append may be retried.
var ErrConcurrentAppend = errors.New("archive: concurrent catalog append")

// Entry is the catalog line for one saved record.
type Entry struct {
	// Sequence is assigned by the catalog and grows by one per append.
	Sequence  uint64
	ID        uuid.UUID
	Key       string
	Algorithm string
	Items     int
	Clusters  int
	Noise     int
	CreatedAt time.Time
}

// Catalog is an append-only index of saved records.
type Catalog interface {
	// Append assigns the next sequence number to e and stores it.
	Append(ctx context.Context, e Entry) (Entry, error)

	// Entries returns all entries in sequence order.
	Entries(ctx context.Context) ([]Entry, error)
}

func entryOf(rec *Record) Entry {
	return Entry{
		ID:        rec.ID,
		Key:       rec.Key(),
		Algorithm: rec.Algorithm,
		Items:     rec.Items,
		Clusters:  rec.Clusters,
		Noise:     rec.Noise,
		CreatedAt: rec.CreatedAt,
	}
}

// MemoryCatalog is an in-process Catalog.
type MemoryCatalog struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryCatalog creates an empty MemoryCatalog.
func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{}
}

func (c *MemoryCatalog) Append(ctx context.Context, e Entry) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	e.Sequence = uint64(len(c.entries)) + 1
	c.entries = append(c.entries, e)
	return e, nil
}

func (c *MemoryCatalog) Entries(context.Context) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.entries), nil
}
