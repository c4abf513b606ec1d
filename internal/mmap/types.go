package mmap

import "errors"

// AccessPattern is an madvise hint for a mapping.
type AccessPattern int

const (
	// AccessDefault removes any previous hint.
	AccessDefault AccessPattern = iota
	// AccessSequential suits whole-file scans such as backup archives.
	AccessSequential
	// AccessRandom suits page lookups by key.
	AccessRandom
	// AccessWillNeed asks the kernel to read ahead.
	AccessWillNeed
	// AccessDontNeed lets the kernel drop the pages.
	AccessDontNeed
)

var (
	ErrClosed        = errors.New("mmap: mapping is closed")
	ErrInvalidSize   = errors.New("mmap: invalid size")
	ErrOutOfBounds   = errors.New("mmap: range outside mapping")
	ErrInvalidOffset = errors.New("mmap: negative offset")
)
