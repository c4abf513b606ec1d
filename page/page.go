package page

import (
	"context"
	"errors"
	"math"
)

// ID identifies a page within one store. Pages are numbered from 0 without gaps.
type ID uint32

// InvalidID never names an allocated page.
const InvalidID ID = math.MaxUint32

// Priority is a buffer-replacement hint passed to Attach.
type Priority uint8

const (
	// PriorityLow pages are dropped as soon as they are detached
	// (sequential scans should not pollute the read cache).
	PriorityLow Priority = iota
	// PriorityMiddle pages are kept in the read cache after detach.
	PriorityMiddle
	// PriorityHigh pages are kept in the read cache after detach.
	PriorityHigh
)

// MinPageSize is the smallest page size a manager accepts.
const MinPageSize = 64

var (
	// ErrNotExist is returned when the backing store has not been created or was destroyed.
	ErrNotExist = errors.New("page: store does not exist")
	// ErrExists is returned by Create when the backing store already exists.
	ErrExists = errors.New("page: store already exists")
	// ErrPageNotFound is returned by Attach for a page beyond the last allocated page.
	ErrPageNotFound = errors.New("page: page not allocated")
	// ErrReadOnly is returned by mutating operations on a read-only manager.
	ErrReadOnly = errors.New("page: manager is read-only")
	// ErrPagesAttached is returned by a non-forced Clear while data pages are attached.
	ErrPagesAttached = errors.New("page: pages still attached")
	// ErrDetached is returned when a handle is used after Detach or RecoverAll.
	ErrDetached = errors.New("page: handle already detached")
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("page: manager is closed")
	// ErrInvalidPageSize is returned for page sizes below MinPageSize.
	ErrInvalidPageSize = errors.New("page: invalid page size")
)

// Handle is an attached page.
//
// Bytes exposes the page's writable buffer. Callers must not write to it
// before MarkDirty has succeeded for the handle: read-only managers hand out
// views of memory that cannot be written.
type Handle interface {
	ID() ID
	Bytes() []byte
}

// Manager allocates, attaches, detaches and commits fixed-size pages of one store.
//
// Changes made since the last FlushAll (allocations, dirty pages, structural
// clears) are pending until FlushAll commits them or RecoverAll discards them.
type Manager interface {
	// PageSize returns the usable bytes per page.
	PageSize() int

	// Create creates the empty backing store.
	Create(ctx context.Context) error
	// Exists reports whether the backing store exists.
	Exists(ctx context.Context) (bool, error)
	// PageCount returns the number of pages including pending allocations.
	PageCount(ctx context.Context) (ID, error)

	// Allocate appends the next sequential page. The page is zeroed,
	// attached and dirty.
	Allocate(ctx context.Context) (Handle, error)
	// Attach attaches an existing page for read/write.
	Attach(ctx context.Context, id ID, prio Priority) (Handle, error)
	// Detach releases a handle without forcing write-back.
	Detach(h Handle) error
	// MarkDirty flags the page for write-back at the next FlushAll.
	MarkDirty(h Handle) error

	// FlushAll commits every pending change.
	FlushAll(ctx context.Context) error
	// RecoverAll discards every pending change.
	RecoverAll(ctx context.Context) error

	// Clear drops every page except page 0. Unless force is set it fails
	// while any data page is attached.
	Clear(ctx context.Context, force bool) error
	// Destroy irrevocably removes the backing store.
	Destroy(ctx context.Context) error
	// Close releases the manager. Pending changes are lost.
	Close() error
}
