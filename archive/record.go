package archive

import (
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/google/uuid"
	"github.com/hupe1980/ensemble"
	"github.com/hupe1980/ensemble/params"
)

// Record is the archived form of one clustering run.
type Record struct {
	ID         uuid.UUID     `json:"id"`
	Algorithm  string        `json:"algorithm"`
	K          int           `json:"k"`
	Items      int           `json:"items"`
	Assignment []int         `json:"assignment"`
	Params     params.Params `json:"params"`
	Clusters   int           `json:"clusters"`
	Noise      int           `json:"noise"`
	// NoiseMask is the serialized roaring bitmap of noise rows.
	NoiseMask []byte        `json:"noise_mask,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	Duration  time.Duration `json:"duration"`
}

// NewRecord converts a result into a record with a fresh time-ordered ID.
// Options that cannot be encoded (functions, matrices) are replaced by their
// portable form.
func NewRecord(res *ensemble.Result) (*Record, error) {
	if res == nil {
		return nil, fmt.Errorf("archive: nil result")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("archive: generate id: %w", err)
	}

	rec := &Record{
		ID:         id,
		Algorithm:  res.Algorithm,
		K:          res.K,
		Items:      res.Items,
		Assignment: append([]int(nil), res.Assignment...),
		Params:     res.Params.Portable(),
		Clusters:   res.Clusters,
		Noise:      res.Noise,
		CreatedAt:  time.Now().UTC(),
		Duration:   res.Duration,
	}

	if res.Noise > 0 {
		mask, err := res.NoiseSet().ToBytes()
		if err != nil {
			return nil, fmt.Errorf("archive: encode noise mask: %w", err)
		}
		rec.NoiseMask = mask
	}
	return rec, nil
}

// NoiseSet decodes the noise mask. Records without noise yield an empty
// bitmap.
func (r *Record) NoiseSet() (*roaring.Bitmap, error) {
	bm := roaring.New()
	if len(r.NoiseMask) == 0 {
		return bm, nil
	}
	if _, err := bm.FromBuffer(r.NoiseMask); err != nil {
		return nil, fmt.Errorf("archive: decode noise mask: %w", err)
	}
	return bm.Clone(), nil
}

// Key is the store key of the record.
func (r *Record) Key() string {
	return recordKey(r.ID)
}

const recordPrefix = "runs/"

func recordKey(id uuid.UUID) string {
	return recordPrefix + id.String() + ".ensr"
}

func idFromKey(key string) (uuid.UUID, bool) {
	const suffix = ".ensr"
	if len(key) != len(recordPrefix)+36+len(suffix) || key[:len(recordPrefix)] != recordPrefix || key[len(key)-len(suffix):] != suffix {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(key[len(recordPrefix) : len(key)-len(suffix)])
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
