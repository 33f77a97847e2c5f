package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the algorithm for payload sections.
type Compression uint8

const (
	// CompressionNone stores payloads raw.
	CompressionNone Compression = 0
	// CompressionLZ4 uses LZ4 block compression (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD uses zstd (better ratio).
	CompressionZSTD Compression = 2
)

// String returns the name of the compression algorithm.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ErrUnknownCompression is returned for an unrecognized compression tag.
var ErrUnknownCompression = errors.New("unknown compression type")

// payloadHeaderSize is [UncompressedSize uint32][CompressedSize uint32].
// CompressedSize == 0 means the payload is stored uncompressed.
const payloadHeaderSize = 8

// Compress encodes data as a framed payload using the given algorithm.
// Incompressible payloads fall back to raw storage so the frame never
// grows past header + original size.
func Compress(data []byte, typ Compression) ([]byte, error) {
	var compressed []byte
	switch typ {
	case CompressionNone:
	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		buf := make([]byte, bound)
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, err
		}
		compressed = buf[:n] // n == 0 means incompressible
	case CompressionZSTD:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		compressed = enc.EncodeAll(data, nil)
		if err := enc.Close(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, typ)
	}

	if len(compressed) == 0 || len(compressed) >= len(data) {
		out := make([]byte, payloadHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[payloadHeaderSize:], data)
		return out, nil
	}

	out := make([]byte, payloadHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[payloadHeaderSize:], compressed)
	return out, nil
}

// Decompress decodes a framed payload produced by Compress.
func Decompress(data []byte, typ Compression) ([]byte, error) {
	if len(data) < payloadHeaderSize {
		return nil, fmt.Errorf("%w: payload shorter than frame header", ErrTruncated)
	}
	uncompressedSize := binary.LittleEndian.Uint32(data[0:])
	compressedSize := binary.LittleEndian.Uint32(data[4:])
	body := data[payloadHeaderSize:]

	if compressedSize == 0 {
		if uint32(len(body)) < uncompressedSize {
			return nil, fmt.Errorf("%w: raw payload body", ErrTruncated)
		}
		return body[:uncompressedSize], nil
	}
	if uint32(len(body)) < compressedSize {
		return nil, fmt.Errorf("%w: compressed payload body", ErrTruncated)
	}
	body = body[:compressedSize]

	switch typ {
	case CompressionLZ4:
		out := make([]byte, uncompressedSize)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, err
		}
		return out[:n], nil
	case CompressionZSTD:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		return dec.DecodeAll(body, make([]byte, 0, uncompressedSize))
	case CompressionNone:
		// A frame with a nonzero compressed size cannot be CompressionNone.
		return nil, fmt.Errorf("%w: compressed frame with compression disabled", ErrUnknownCompression)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownCompression, typ)
	}
}
