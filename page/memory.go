package page

import (
	"bytes"
	"context"

	"github.com/hupe1980/vecfile/resource"
)

var _ Manager = (*MemoryManager)(nil)

// MemoryManager is an in-memory Manager for tests and temporary stores.
// Committed pages survive RecoverAll but not the process.
type MemoryManager struct {
	*pool
}

// MemoryOption configures a MemoryManager.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	rc *resource.Controller
}

// WithMemoryResources charges resident frames against rc.
func WithMemoryResources(rc *resource.Controller) MemoryOption {
	return func(o *memoryOptions) { o.rc = rc }
}

// NewMemoryManager returns a manager whose backing store does not exist yet.
func NewMemoryManager(pageSize int, optFns ...MemoryOption) (*MemoryManager, error) {
	var o memoryOptions
	for _, fn := range optFns {
		fn(&o)
	}
	p, err := newPool(&memBackend{}, pageSize, o.rc, nil)
	if err != nil {
		return nil, err
	}
	return &MemoryManager{pool: p}, nil
}

// FailAfter makes op fail with err once it has succeeded after more times.
// A nil err injects ErrInjected. The fault stays armed until ClearFaults.
func (m *MemoryManager) FailAfter(op Op, after int, err error) {
	m.faults.arm(op, after, err)
}

// ClearFaults disarms every injected fault.
func (m *MemoryManager) ClearFaults() {
	m.faults.reset()
}

// Calls returns how many times op was invoked.
func (m *MemoryManager) Calls(op Op) int {
	return m.faults.count(op)
}

// CommittedPages returns the number of committed pages.
func (m *MemoryManager) CommittedPages() ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.committed
}

type memBackend struct {
	pages   [][]byte
	present bool
}

func (b *memBackend) create() error {
	b.present = true
	b.pages = nil
	return nil
}

func (b *memBackend) exists() (bool, error) { return b.present, nil }

func (b *memBackend) count() (ID, error) { return ID(len(b.pages)), nil }

func (b *memBackend) read(id ID, buf []byte) error {
	if int(id) >= len(b.pages) {
		return ErrPageNotFound
	}
	copy(buf, b.pages[id])
	return nil
}

func (b *memBackend) commit(_ context.Context, _, n ID, pages []pageImage) error {
	for ID(len(b.pages)) < n {
		b.pages = append(b.pages, nil)
	}
	b.pages = b.pages[:n]
	for _, pg := range pages {
		b.pages[pg.id] = bytes.Clone(pg.buf)
	}
	return nil
}

func (b *memBackend) rollback() error { return nil }

func (b *memBackend) destroy() error {
	b.present = false
	b.pages = nil
	return nil
}

func (b *memBackend) close() error { return nil }
