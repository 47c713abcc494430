package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hupe1980/ensemble"
	"github.com/hupe1980/ensemble/codec"
	"github.com/hupe1980/ensemble/resource"
)

// ErrNoCatalog is returned by Entries when the archive has no catalog.
var ErrNoCatalog = errors.New("archive: no catalog configured")

// maxAppendAttempts bounds retries after ErrConcurrentAppend.
const maxAppendAttempts = 3

type options struct {
	codec       codec.Codec
	compression Compression
	resources   *resource.Controller
	catalog     Catalog
	logger      *ensemble.Logger
}

// Option configures an Archive.
type Option func(*options)

// WithCodec sets the codec for new records. Existing frames are decoded with
// the codec named in their header. Default: codec.Default.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithCompression sets the payload compression. Default: CompressionNone.
func WithCompression(c Compression) Option {
	return func(o *options) { o.compression = c }
}

// WithResourceController rate-limits archive IO with the controller's
// IOLimitBytesPerSec.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) { o.resources = rc }
}

// WithCatalog appends an entry to c for every saved record.
func WithCatalog(c Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithLogger sets the logger. Default: no logging.
func WithLogger(l *ensemble.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Archive saves and loads run records.
type Archive struct {
	store Store
	opts  options
}

// New creates an Archive on top of store.
func New(store Store, optFns ...Option) *Archive {
	o := options{
		codec:  codec.Default,
		logger: ensemble.NoopLogger(),
	}
	for _, fn := range optFns {
		fn(&o)
	}
	return &Archive{store: store, opts: o}
}

// Save archives res and returns the written record.
//
// The frame is written before the catalog entry. If the catalog append
// fails the frame stays in the store and the error is returned.
func (a *Archive) Save(ctx context.Context, res *ensemble.Result) (*Record, error) {
	rec, err := NewRecord(res)
	if err != nil {
		return nil, err
	}

	frame, err := encodeFrame(a.opts.codec, a.opts.compression, rec)
	if err != nil {
		return nil, fmt.Errorf("archive: encode %s: %w", rec.ID, err)
	}

	var buf bytes.Buffer
	if _, err := resource.NewRateLimitedWriter(ctx, &buf, a.opts.resources).Write(frame); err != nil {
		return nil, err
	}
	if err := a.store.Put(ctx, rec.Key(), buf.Bytes()); err != nil {
		return nil, fmt.Errorf("archive: put %s: %w", rec.Key(), err)
	}

	logger := a.opts.logger.WithAlgorithm(rec.Algorithm)
	logger.DebugContext(ctx, "record saved",
		"id", rec.ID,
		"bytes", len(frame),
		"codec", a.opts.codec.Name(),
		"compression", a.opts.compression.String(),
	)

	if a.opts.catalog == nil {
		return rec, nil
	}

	entry := entryOf(rec)
	for attempt := 1; ; attempt++ {
		_, err = a.opts.catalog.Append(ctx, entry)
		if err == nil || !errors.Is(err, ErrConcurrentAppend) || attempt == maxAppendAttempts {
			break
		}
		logger.WarnContext(ctx, "catalog append raced, retrying", "id", rec.ID, "attempt", attempt)
	}
	if err != nil {
		logger.ErrorContext(ctx, "catalog append failed", "id", rec.ID, "error", err)
		return nil, fmt.Errorf("archive: catalog %s: %w", rec.ID, err)
	}
	return rec, nil
}

// Load reads the record with the given ID. Missing records yield an error
// matching ErrNotFound.
//
// Params come back as decoded by the codec: JSON numbers become float64.
func (a *Archive) Load(ctx context.Context, id uuid.UUID) (*Record, error) {
	key := recordKey(id)
	data, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", key, err)
	}

	frame, err := io.ReadAll(resource.NewRateLimitedReader(ctx, bytes.NewReader(data), a.opts.resources))
	if err != nil {
		return nil, err
	}

	var rec Record
	if _, err := decodeFrame(frame, &rec); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return &rec, nil
}

// List returns the IDs of all archived records, oldest first.
func (a *Archive) List(ctx context.Context) ([]uuid.UUID, error) {
	keys, err := a.store.List(ctx, recordPrefix)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(keys))
	for _, key := range keys {
		id, ok := idFromKey(key)
		if !ok {
			a.opts.logger.DebugContext(ctx, "skipping foreign key", slog.String("key", key))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes the record with the given ID. Catalog entries are
// append-only and remain.
func (a *Archive) Delete(ctx context.Context, id uuid.UUID) error {
	return a.store.Delete(ctx, recordKey(id))
}

// Entries returns the catalog entries in sequence order.
func (a *Archive) Entries(ctx context.Context) ([]Entry, error) {
	if a.opts.catalog == nil {
		return nil, ErrNoCatalog
	}
	return a.opts.catalog.Entries(ctx)
}
