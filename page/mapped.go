package page

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/vecfile/internal/mmap"
)

var _ Manager = (*MappedManager)(nil)

// MappedManager is a read-only Manager over the committed pages of a store
// file. Attached pages are zero-copy views of the mapping.
type MappedManager struct {
	mu       sync.Mutex
	m        *mmap.Mapping
	pageSize int
	count    ID
	closed   bool
}

type mappedHandle struct {
	id  ID
	buf []byte
}

func (h *mappedHandle) ID() ID        { return h.id }
func (h *mappedHandle) Bytes() []byte { return h.buf }

// OpenMapped maps the store file at path.
func OpenMapped(path string, pageSize int) (*MappedManager, error) {
	if pageSize < MinPageSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("page: map %s: %w", path, err)
	}
	_ = m.Advise(mmap.AccessRandom)
	return &MappedManager{
		m:        m,
		pageSize: pageSize,
		count:    ID(m.Pages(pageSize)),
	}, nil
}

func (m *MappedManager) PageSize() int { return m.pageSize }

func (m *MappedManager) Create(context.Context) error { return ErrReadOnly }

func (m *MappedManager) Exists(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	return m.count > 0, nil
}

func (m *MappedManager) PageCount(context.Context) (ID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	return m.count, nil
}

func (m *MappedManager) Allocate(context.Context) (Handle, error) { return nil, ErrReadOnly }

func (m *MappedManager) Attach(_ context.Context, id ID, _ Priority) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if id >= m.count {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	buf, err := m.m.Page(int(id), m.pageSize)
	if err != nil {
		return nil, err
	}
	return &mappedHandle{id: id, buf: buf}, nil
}

func (m *MappedManager) Detach(Handle) error { return nil }

func (m *MappedManager) MarkDirty(Handle) error { return ErrReadOnly }

// FlushAll is a no-op: a read-only manager never has pending changes.
func (m *MappedManager) FlushAll(context.Context) error { return nil }

// RecoverAll is a no-op: a read-only manager never has pending changes.
func (m *MappedManager) RecoverAll(context.Context) error { return nil }

func (m *MappedManager) Clear(context.Context, bool) error { return ErrReadOnly }

func (m *MappedManager) Destroy(context.Context) error { return ErrReadOnly }

func (m *MappedManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.m.Close()
}
