package replay

import (
	"errors"
	"fmt"
)

// ErrInsufficientData indicates that the buffer does not yet hold
// enough data to satisfy a sampling request. Callers recover by
// collecting more experience and retrying.
var ErrInsufficientData = errors.New("buffer holds no episode long " +
	"enough to sample from")

// BufferError wraps an error that occurred during a buffer operation
type BufferError struct {
	Op  string
	Err error
}

func (b *BufferError) Error() string {
	return fmt.Sprintf("%v: %v", b.Op, b.Err)
}

func (b *BufferError) Unwrap() error {
	return b.Err
}
