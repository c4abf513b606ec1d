package vecfile

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by every operation on a closed store.
	ErrClosed = errors.New("vecfile: store is closed")

	// ErrNotFound is returned by Open when the backing store does not exist
	// or holds no pages.
	ErrNotFound = errors.New("vecfile: store not found")

	// ErrCorrupt is returned when the header page cannot be decoded.
	ErrCorrupt = errors.New("vecfile: store is corrupt")

	// ErrInvalidElementSize is returned by Create for element sizes that are
	// zero, not a multiple of 4 or larger than a page.
	ErrInvalidElementSize = errors.New("vecfile: invalid element size")

	// ErrValueSize is returned by Insert when the value length differs from
	// the element size.
	ErrValueSize = errors.New("vecfile: value size does not match element size")

	// ErrInvalidKey is returned for keys that cannot be stored.
	ErrInvalidKey = errors.New("vecfile: invalid key")

	// ErrReservedValue is returned by Insert for values whose first word is
	// the empty-slot marker 0xFFFFFFFF.
	ErrReservedValue = errors.New("vecfile: value starts with the empty-slot marker")
)

// ErrElementSize describes a rejected element size.
//
// It matches ErrInvalidElementSize via errors.Is.
type ErrElementSize struct {
	Size     int
	PageSize int
}

func (e *ErrElementSize) Error() string {
	return fmt.Sprintf("vecfile: invalid element size %d for page size %d", e.Size, e.PageSize)
}

func (e *ErrElementSize) Is(target error) bool { return target == ErrInvalidElementSize }

// ErrVerify describes the first inconsistency found by Verify.
//
// It matches ErrCorrupt via errors.Is.
type ErrVerify struct {
	Problems []string
}

func (e *ErrVerify) Error() string {
	if len(e.Problems) == 1 {
		return "vecfile: verify: " + e.Problems[0]
	}
	return fmt.Sprintf("vecfile: verify: %s (and %d more)", e.Problems[0], len(e.Problems)-1)
}

func (e *ErrVerify) Is(target error) bool { return target == ErrCorrupt }
