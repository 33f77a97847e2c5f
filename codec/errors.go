package codec

import (
	"errors"
	"fmt"

	"github.com/formaproject/forma/cursor"
)

var (
	// ErrTruncated is returned when the stream ends inside a value. It
	// matches cursor.ErrTruncated via errors.Is.
	ErrTruncated = cursor.ErrTruncated

	// ErrInconsistentArrayLength is returned at write time when an array's
	// stored length disagrees with its evaluated dimension expression.
	// Mutating a length-governing field requires resizing the dependent
	// array before the next write.
	ErrInconsistentArrayLength = errors.New("array length inconsistent with dimension expression")

	// ErrUnsupportedVersion is returned when the requested format version
	// is not among the versions the schema declares.
	ErrUnsupportedVersion = errors.New("unsupported format version")

	// ErrMissingField is returned at write time when a field's condition
	// is true but the value tree has no member for it.
	ErrMissingField = errors.New("active field missing from value")
)

// FieldError decorates a codec failure with the field path and stream
// offset where it occurred, so a batch driver can log a per-file diagnosis
// without the codec doing any I/O of its own.
type FieldError struct {
	Path   string
	Offset int64
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s at offset %d: %v", e.Path, e.Offset, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func fieldErr(path string, offset int64, err error) error {
	var fe *FieldError
	if errors.As(err, &fe) {
		// Keep the innermost location; outer frames only add path context.
		return err
	}
	return &FieldError{Path: path, Offset: offset, Err: err}
}
