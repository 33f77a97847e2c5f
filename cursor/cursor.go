// Package cursor implements the byte cursor consumed and produced by the
// binary codec: a sequential, seekable view over an in-memory byte sequence.
package cursor

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncated is returned when a read would run past the end of the stream.
var ErrTruncated = errors.New("truncated stream")

// ErrSeekOutOfRange is returned when seeking outside the current stream bounds.
var ErrSeekOutOfRange = errors.New("seek out of range")

// Cursor is a stateful position over a byte sequence. A cursor created with
// New reads and overwrites existing bytes; a cursor created with NewWriter
// starts empty and grows as bytes are written. Cursors are not safe for
// concurrent use; each worker owns its own cursor.
type Cursor struct {
	buf []byte
	off int
}

// New returns a cursor positioned at the start of data.
func New(data []byte) *Cursor {
	return &Cursor{buf: data}
}

// NewWriter returns an empty, growable cursor.
func NewWriter() *Cursor {
	return &Cursor{}
}

// ReadBytes returns the next n bytes and advances the cursor.
// The returned slice aliases the underlying buffer; callers must not
// retain it across writes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	if c.off+n > len(c.buf) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrTruncated, n, c.off, len(c.buf)-c.off)
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// WriteBytes appends or overwrites p at the current position and advances.
func (c *Cursor) WriteBytes(p []byte) error {
	end := c.off + len(p)
	if end > len(c.buf) {
		if end > cap(c.buf) {
			grown := make([]byte, end, growCap(cap(c.buf), end))
			copy(grown, c.buf)
			c.buf = grown
		} else {
			c.buf = c.buf[:end]
		}
	}
	copy(c.buf[c.off:], p)
	c.off = end
	return nil
}

func growCap(current, need int) int {
	next := current * 2
	if next < need {
		next = need
	}
	if next < 64 {
		next = 64
	}
	return next
}

// Tell returns the current offset.
func (c *Cursor) Tell() int64 {
	return int64(c.off)
}

// Seek moves the cursor to an absolute offset within the stream.
func (c *Cursor) Seek(pos int64) error {
	if pos < 0 || pos > int64(len(c.buf)) {
		return fmt.Errorf("%w: %d (stream length %d)", ErrSeekOutOfRange, pos, len(c.buf))
	}
	c.off = int(pos)
	return nil
}

// Len returns the total stream length.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Remaining returns the number of bytes between the cursor and stream end.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// Bytes returns the full underlying stream.
func (c *Cursor) Bytes() []byte {
	return c.buf
}

// ReadUint reads a size-byte unsigned integer in the given byte order.
// Sizes 1, 2, 4 and 8 are supported.
func (c *Cursor) ReadUint(size int, bigEndian bool) (uint64, error) {
	b, err := c.ReadBytes(size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return uint64(b[0]), nil
	case 2:
		if bigEndian {
			return uint64(binary.BigEndian.Uint16(b)), nil
		}
		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 4:
		if bigEndian {
			return uint64(binary.BigEndian.Uint32(b)), nil
		}
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		if bigEndian {
			return binary.BigEndian.Uint64(b), nil
		}
		return binary.LittleEndian.Uint64(b), nil
	default:
		return 0, fmt.Errorf("unsupported integer width %d", size)
	}
}

// WriteUint writes a size-byte unsigned integer in the given byte order.
func (c *Cursor) WriteUint(v uint64, size int, bigEndian bool) error {
	var scratch [8]byte
	b := scratch[:size]
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		if bigEndian {
			binary.BigEndian.PutUint16(b, uint16(v))
		} else {
			binary.LittleEndian.PutUint16(b, uint16(v))
		}
	case 4:
		if bigEndian {
			binary.BigEndian.PutUint32(b, uint32(v))
		} else {
			binary.LittleEndian.PutUint32(b, uint32(v))
		}
	case 8:
		if bigEndian {
			binary.BigEndian.PutUint64(b, v)
		} else {
			binary.LittleEndian.PutUint64(b, v)
		}
	default:
		return fmt.Errorf("unsupported integer width %d", size)
	}
	return c.WriteBytes(b)
}
