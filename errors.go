package forma

import (
	"errors"
	"fmt"

	"github.com/formaproject/forma/codec"
)

var (
	// ErrBadMagic is returned when a container does not start with the
	// FRMA signature.
	ErrBadMagic = errors.New("forma: bad magic")

	// ErrCorruptContainer is returned when the container header is
	// inconsistent with itself or with the payload.
	ErrCorruptContainer = errors.New("forma: corrupt container")

	// ErrUnsupportedVersion is returned when the schema does not cover
	// the container's format version.
	ErrUnsupportedVersion = codec.ErrUnsupportedVersion
)

// ContainerError adds the byte offset at which container parsing failed.
//
// The underlying error can be accessed via errors.Unwrap.
type ContainerError struct {
	Offset int64
	cause  error
}

func (e *ContainerError) Error() string {
	return fmt.Sprintf("container offset %d: %v", e.Offset, e.cause)
}

func (e *ContainerError) Unwrap() error { return e.cause }

func containerErr(offset int64, err error) error {
	if err == nil {
		return nil
	}
	return &ContainerError{Offset: offset, cause: err}
}
