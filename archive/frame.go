package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
	"sync"

	"github.com/hupe1980/ensemble/codec"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects how frame payloads are compressed.
type Compression uint8

const (
	// CompressionNone stores the payload as encoded.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4 Compression = 1
	// CompressionZstd uses Zstandard.
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

const (
	frameMagic   = "ENSR"
	frameVersion = 1

	// maxFrameSize bounds the decoded payload of a single frame.
	maxFrameSize = 256 << 20

	// lz4MaxRatio is the largest expansion an LZ4 block can encode.
	lz4MaxRatio = 255
)

var (
	// ErrCorruptFrame is returned when a stored frame cannot be decoded.
	ErrCorruptFrame = errors.New("archive: corrupt frame")
	// ErrUnknownCodec is returned when a frame names a codec that is not built in.
	ErrUnknownCodec = errors.New("archive: unknown codec")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxFrameSize))
	return dec
}

// encodeFrame serializes v with c and wraps it in a frame.
func encodeFrame(c codec.Codec, comp Compression, v any) ([]byte, error) {
	name := c.Name()
	if len(name) == 0 || len(name) > 255 {
		return nil, fmt.Errorf("archive: invalid codec name %q", name)
	}

	raw, err := c.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(raw) > maxFrameSize {
		return nil, fmt.Errorf("archive: encoded record is %d bytes, limit is %d", len(raw), maxFrameSize)
	}

	stored, err := compress(comp, raw)
	if err != nil {
		return nil, err
	}
	payload := raw
	storedSize := uint32(0)
	if stored != nil {
		payload = stored
		storedSize = uint32(len(stored))
	}

	head := len(frameMagic) + 3 + len(name)
	out := make([]byte, head+12+len(payload))
	copy(out, frameMagic)
	out[4] = frameVersion
	out[5] = byte(comp)
	out[6] = byte(len(name))
	copy(out[7:], name)
	binary.LittleEndian.PutUint32(out[head:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(out[head+4:], storedSize)
	binary.LittleEndian.PutUint32(out[head+8:], crc32.Checksum(raw, castagnoli))
	copy(out[head+12:], payload)
	return out, nil
}

// decodeFrame verifies a frame and decodes its payload into v with the codec
// named in the header. It returns that codec's name.
func decodeFrame(data []byte, v any) (string, error) {
	if len(data) < len(frameMagic)+3 || string(data[:4]) != frameMagic {
		return "", fmt.Errorf("%w: bad magic", ErrCorruptFrame)
	}
	if data[4] != frameVersion {
		return "", fmt.Errorf("%w: unsupported version %d", ErrCorruptFrame, data[4])
	}
	comp := Compression(data[5])
	nameLen := int(data[6])
	head := 7 + nameLen
	if len(data) < head+12 {
		return "", fmt.Errorf("%w: truncated header", ErrCorruptFrame)
	}

	name := string(data[7:head])
	c, ok := codec.ByName(name)
	if !ok {
		return name, fmt.Errorf("%w: %q (known: %s)", ErrUnknownCodec, name, strings.Join(codec.Names(), ", "))
	}

	rawSize := binary.LittleEndian.Uint32(data[head:])
	storedSize := binary.LittleEndian.Uint32(data[head+4:])
	sum := binary.LittleEndian.Uint32(data[head+8:])
	payload := data[head+12:]

	// Sizes are checked before anything is allocated from them.
	if rawSize > maxFrameSize {
		return name, fmt.Errorf("%w: payload size %d exceeds limit %d", ErrCorruptFrame, rawSize, maxFrameSize)
	}

	var raw []byte
	if storedSize == 0 {
		if uint32(len(payload)) != rawSize {
			return name, fmt.Errorf("%w: payload size mismatch", ErrCorruptFrame)
		}
		raw = payload
	} else {
		if uint32(len(payload)) != storedSize {
			return name, fmt.Errorf("%w: payload size mismatch", ErrCorruptFrame)
		}
		if comp == CompressionLZ4 && uint64(rawSize) > uint64(storedSize)*lz4MaxRatio {
			return name, fmt.Errorf("%w: payload size %d impossible for %d lz4 bytes", ErrCorruptFrame, rawSize, storedSize)
		}
		var err error
		if raw, err = decompress(comp, payload, rawSize); err != nil {
			return name, fmt.Errorf("%w: %v", ErrCorruptFrame, err)
		}
	}

	if crc32.Checksum(raw, castagnoli) != sum {
		return name, fmt.Errorf("%w: checksum mismatch", ErrCorruptFrame)
	}
	return name, c.Unmarshal(raw, v)
}

// compress returns nil when data should be stored as is.
func compress(comp Compression, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var out []byte
	switch comp {
	case CompressionNone:
		return nil, nil
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		// Zero means incompressible.
		if n == 0 {
			return nil, nil
		}
		out = buf[:n]
	case CompressionZstd:
		enc := getZstdEncoder()
		out = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("archive: unsupported compression %s", comp)
	}

	if len(out) >= len(data) {
		return nil, nil
	}
	return out, nil
}

func decompress(comp Compression, data []byte, size uint32) ([]byte, error) {
	switch comp {
	case CompressionLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, err
		}
		if uint32(n) != size {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	case CompressionZstd:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(data, nil)
		if err != nil {
			return nil, err
		}
		if uint32(len(out)) != size {
			return nil, errors.New("decompressed size mismatch")
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", comp)
	}
}
