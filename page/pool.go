package page

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/vecfile/internal/cache"
	"github.com/hupe1980/vecfile/resource"
)

// backend persists committed page images.
type backend interface {
	create() error
	exists() (bool, error)
	count() (ID, error)
	read(id ID, buf []byte) error
	// commit atomically replaces the committed image: pages are written and
	// the page count goes from old to n. On error the old image is intact,
	// or is restored by the next rollback.
	commit(ctx context.Context, old, n ID, pages []pageImage) error
	// rollback finishes undoing an interrupted commit. It is a no-op when
	// none is outstanding.
	rollback() error
	destroy() error
	close() error
}

type pageImage struct {
	id  ID
	buf []byte
}

// frame is a resident working copy of a page.
type frame struct {
	id    ID
	buf   []byte
	dirty bool
	pins  int
	prio  Priority
}

type handle struct {
	f        *frame
	detached bool
}

func (h *handle) ID() ID        { return h.f.id }
func (h *handle) Bytes() []byte { return h.f.buf }

// pool implements Manager on top of a backend. Pending changes live only in
// resident frames until FlushAll writes them through the backend.
type pool struct {
	mu       sync.Mutex
	be       backend
	pageSize int
	rc       *resource.Controller
	cache    *cache.PageCache // nil disables the clean-page read cache

	frames    map[ID]*frame
	handles   map[*handle]struct{}
	count     ID // working page count
	committed ID // persisted page count
	exists    bool
	closed    bool

	faults *faults
}

func newPool(be backend, pageSize int, rc *resource.Controller, c *cache.PageCache) (*pool, error) {
	if pageSize < MinPageSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}
	p := &pool{
		be:       be,
		pageSize: pageSize,
		rc:       rc,
		cache:    c,
		frames:   make(map[ID]*frame),
		handles:  make(map[*handle]struct{}),
		faults:   newFaults(),
	}
	ok, err := be.exists()
	if err != nil {
		return nil, err
	}
	if ok {
		n, err := be.count()
		if err != nil {
			return nil, err
		}
		p.exists = true
		p.count, p.committed = n, n
	}
	return p, nil
}

func (p *pool) PageSize() int { return p.pageSize }

func (p *pool) check() error {
	if p.closed {
		return ErrClosed
	}
	if !p.exists {
		return ErrNotExist
	}
	return nil
}

func (p *pool) Create(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.exists {
		return ErrExists
	}
	if err := p.faults.hit(OpCreate); err != nil {
		return err
	}
	if err := p.be.create(); err != nil {
		return err
	}
	p.exists = true
	p.count, p.committed = 0, 0
	return nil
}

func (p *pool) Exists(_ context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return false, ErrClosed
	}
	return p.exists, nil
}

func (p *pool) PageCount(_ context.Context) (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(); err != nil {
		return 0, err
	}
	return p.count, nil
}

func (p *pool) Allocate(_ context.Context) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(); err != nil {
		return nil, err
	}
	if p.count == InvalidID {
		return nil, fmt.Errorf("page: store is full")
	}
	if err := p.faults.hit(OpAllocate); err != nil {
		return nil, err
	}
	if err := p.rc.AcquireMemory(int64(p.pageSize)); err != nil {
		return nil, fmt.Errorf("page: allocate %d: %w", p.count, err)
	}

	f := &frame{id: p.count, buf: make([]byte, p.pageSize), dirty: true}
	p.frames[f.id] = f
	p.count++
	return p.pin(f, PriorityLow), nil
}

func (p *pool) Attach(_ context.Context, id ID, prio Priority) (Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(); err != nil {
		return nil, err
	}
	if id >= p.count {
		return nil, fmt.Errorf("%w: %d", ErrPageNotFound, id)
	}
	if err := p.faults.hit(OpAttach); err != nil {
		return nil, err
	}
	if f, ok := p.frames[id]; ok {
		return p.pin(f, prio), nil
	}

	if err := p.rc.AcquireMemory(int64(p.pageSize)); err != nil {
		return nil, fmt.Errorf("page: attach %d: %w", id, err)
	}
	buf := make([]byte, p.pageSize)
	if img, ok := p.cachedImage(id); ok {
		copy(buf, img)
	} else if err := p.be.read(id, buf); err != nil {
		p.rc.ReleaseMemory(int64(p.pageSize))
		return nil, fmt.Errorf("page: read %d: %w", id, err)
	}

	f := &frame{id: id, buf: buf}
	p.frames[id] = f
	return p.pin(f, prio), nil
}

func (p *pool) Detach(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hd, err := p.lookup(h)
	if err != nil {
		return err
	}
	p.unpin(hd)
	return nil
}

func (p *pool) MarkDirty(h Handle) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hd, err := p.lookup(h)
	if err != nil {
		return err
	}
	if err := p.faults.hit(OpMarkDirty); err != nil {
		return err
	}
	hd.f.dirty = true
	if p.cache != nil {
		p.cache.Remove(uint32(hd.f.id))
	}
	return nil
}

func (p *pool) FlushAll(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(); err != nil {
		return err
	}
	if err := p.faults.hit(OpFlush); err != nil {
		return err
	}

	dirty := p.dirtyIDs()
	if len(dirty) == 0 && p.count == p.committed {
		return nil
	}
	pages := make([]pageImage, len(dirty))
	for i, id := range dirty {
		pages[i] = pageImage{id: id, buf: p.frames[id].buf}
	}
	if err := p.be.commit(ctx, p.committed, p.count, pages); err != nil {
		return fmt.Errorf("page: commit %d pages: %w", len(pages), err)
	}

	p.committed = p.count
	for _, id := range dirty {
		f := p.frames[id]
		f.dirty = false
		if f.pins == 0 {
			p.evict(f)
		}
	}
	return nil
}

func (p *pool) RecoverAll(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(); err != nil {
		return err
	}
	if err := p.faults.hit(OpRecover); err != nil {
		return err
	}
	if err := p.be.rollback(); err != nil {
		return fmt.Errorf("page: roll back: %w", err)
	}

	for _, f := range p.frames {
		if f.dirty || f.id >= p.committed {
			p.drop(f)
		}
	}
	p.count = p.committed
	return nil
}

func (p *pool) Clear(_ context.Context, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(); err != nil {
		return err
	}
	if !force {
		for _, f := range p.frames {
			if f.id > 0 && f.pins > 0 {
				return fmt.Errorf("%w: page %d", ErrPagesAttached, f.id)
			}
		}
	}
	if err := p.faults.hit(OpClear); err != nil {
		return err
	}

	for _, f := range p.frames {
		if f.id > 0 {
			p.drop(f)
		}
	}
	if p.cache != nil {
		p.cache.Invalidate(func(id uint32) bool { return id > 0 })
	}
	p.count = min(p.count, 1)
	return nil
}

func (p *pool) Destroy(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.check(); err != nil {
		return err
	}
	if err := p.faults.hit(OpDestroy); err != nil {
		return err
	}

	for _, f := range p.frames {
		p.drop(f)
	}
	if p.cache != nil {
		p.cache.Invalidate(func(uint32) bool { return true })
	}
	if err := p.be.destroy(); err != nil {
		return err
	}
	p.exists = false
	p.count, p.committed = 0, 0
	return nil
}

func (p *pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	for _, f := range p.frames {
		p.drop(f)
	}
	if p.cache != nil {
		p.cache.Invalidate(func(uint32) bool { return true })
	}
	p.closed = true
	return p.be.close()
}

// Resident returns the number of resident frames and how many are dirty.
func (p *pool) Resident() (frames, dirty int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.frames {
		if f.dirty {
			dirty++
		}
	}
	return len(p.frames), dirty
}

func (p *pool) pin(f *frame, prio Priority) *handle {
	f.pins++
	f.prio = max(f.prio, prio)
	h := &handle{f: f}
	p.handles[h] = struct{}{}
	return h
}

func (p *pool) lookup(h Handle) (*handle, error) {
	if p.closed {
		return nil, ErrClosed
	}
	hd, ok := h.(*handle)
	if !ok {
		return nil, fmt.Errorf("page: foreign handle %T", h)
	}
	if _, live := p.handles[hd]; !live || hd.detached {
		return nil, ErrDetached
	}
	return hd, nil
}

func (p *pool) unpin(h *handle) {
	h.detached = true
	delete(p.handles, h)
	f := h.f
	f.pins--
	if f.pins == 0 && !f.dirty {
		p.evict(f)
	}
}

// evict removes a clean, unpinned frame, keeping its image in the read cache
// unless every attach asked for PriorityLow.
func (p *pool) evict(f *frame) {
	delete(p.frames, f.id)
	p.rc.ReleaseMemory(int64(p.pageSize))
	if p.cache != nil && f.prio > PriorityLow {
		p.cache.Set(uint32(f.id), f.buf)
	}
}

// drop discards a frame and invalidates every handle on it.
func (p *pool) drop(f *frame) {
	for h := range p.handles {
		if h.f == f {
			h.detached = true
			delete(p.handles, h)
		}
	}
	delete(p.frames, f.id)
	p.rc.ReleaseMemory(int64(p.pageSize))
}

func (p *pool) cachedImage(id ID) ([]byte, bool) {
	if p.cache == nil {
		return nil, false
	}
	return p.cache.Get(uint32(id))
}

func (p *pool) dirtyIDs() []ID {
	ids := make([]ID, 0, len(p.frames))
	for id, f := range p.frames {
		if f.dirty {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
