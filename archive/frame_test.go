package archive

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/hupe1980/ensemble/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Labels []int  `json:"labels"`
	Note   string `json:"note"`
}

func repetitive() payload {
	p := payload{Note: "repetitive", Labels: make([]int, 4096)}
	for i := range p.Labels {
		p.Labels[i] = i % 3
	}
	return p
}

func TestFrame_RoundTrip(t *testing.T) {
	in := repetitive()

	for _, c := range []codec.Codec{codec.JSON{}, codec.GoJSON{}} {
		for _, comp := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
			t.Run(c.Name()+"/"+comp.String(), func(t *testing.T) {
				data, err := encodeFrame(c, comp, in)
				require.NoError(t, err)
				assert.Equal(t, frameMagic, string(data[:4]))
				assert.Equal(t, byte(comp), data[5])

				var out payload
				name, err := decodeFrame(data, &out)
				require.NoError(t, err)
				assert.Equal(t, c.Name(), name)
				assert.Equal(t, in, out)
			})
		}
	}
}

func TestFrame_CompressionShrinks(t *testing.T) {
	in := repetitive()

	plain, err := encodeFrame(codec.GoJSON{}, CompressionNone, in)
	require.NoError(t, err)
	for _, comp := range []Compression{CompressionLZ4, CompressionZstd} {
		packed, err := encodeFrame(codec.GoJSON{}, comp, in)
		require.NoError(t, err)
		assert.Less(t, len(packed), len(plain), comp.String())
	}
}

func TestFrame_SmallPayloadStoredRaw(t *testing.T) {
	data, err := encodeFrame(codec.JSON{}, CompressionZstd, payload{Note: "x"})
	require.NoError(t, err)

	var out payload
	_, err = decodeFrame(data, &out)
	require.NoError(t, err)
	assert.Equal(t, "x", out.Note)
}

// withRawSize rewrites the uncompressed size field of a frame encoded with
// the "json" codec.
func withRawSize(frame []byte, size uint32) []byte {
	out := bytes.Clone(frame)
	binary.LittleEndian.PutUint32(out[7+len("json"):], size)
	return out
}

func TestFrame_Corrupt(t *testing.T) {
	good, err := encodeFrame(codec.JSON{}, CompressionLZ4, repetitive())
	require.NoError(t, err)

	zstdFrame, err := encodeFrame(codec.JSON{}, CompressionZstd, repetitive())
	require.NoError(t, err)

	storedSize := binary.LittleEndian.Uint32(good[7+len("json")+4:])
	require.NotZero(t, storedSize)

	flipped := bytes.Clone(good)
	flipped[len(flipped)-1] ^= 0xff

	badCodec := bytes.Clone(good)
	copy(badCodec[7:11], "yaml")

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrCorruptFrame},
		{"magic", []byte("NOPE\x01\x00\x04json"), ErrCorruptFrame},
		{"version", append([]byte("ENSR\x09"), good[5:]...), ErrCorruptFrame},
		{"truncated", good[:10], ErrCorruptFrame},
		{"payload", flipped, ErrCorruptFrame},
		{"codec", badCodec, ErrUnknownCodec},
		{"huge zstd size", withRawSize(zstdFrame, 0xF0000000), ErrCorruptFrame},
		{"huge lz4 size", withRawSize(good, 0xF0000000), ErrCorruptFrame},
		{"lz4 size beyond expansion", withRawSize(good, storedSize*lz4MaxRatio+1), ErrCorruptFrame},
		{"small zstd size", withRawSize(zstdFrame, 3), ErrCorruptFrame},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out payload
			_, err := decodeFrame(tt.data, &out)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestFrame_UnknownCodecNamesKnownOnes(t *testing.T) {
	data, err := encodeFrame(codec.JSON{}, CompressionNone, payload{Note: "x"})
	require.NoError(t, err)
	copy(data[7:11], "toml")

	var out payload
	_, err = decodeFrame(data, &out)
	require.ErrorIs(t, err, ErrUnknownCodec)
	assert.Contains(t, err.Error(), "go-json")
}

func TestFrame_UnsupportedCompression(t *testing.T) {
	_, err := encodeFrame(codec.JSON{}, Compression(9), repetitive())
	assert.Error(t, err)
	assert.Equal(t, "compression(9)", Compression(9).String())
}
