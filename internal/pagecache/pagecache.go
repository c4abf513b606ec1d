package pagecache

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/vecfile/page"
)

// entry is the cached page. A nil *entry is the empty state.
type entry struct {
	h     page.Handle
	buf   []byte
	dirty bool
}

// Cache keeps the most recently used data page attached and parks displaced
// dirty pages in a side map until the next flush or recover.
//
// Cache is not safe for concurrent use.
type Cache struct {
	mgr     page.Manager
	cur     *entry
	pending map[page.ID]page.Handle
}

// New returns an empty cache over mgr.
func New(mgr page.Manager) *Cache {
	return &Cache{
		mgr:     mgr,
		pending: make(map[page.ID]page.Handle),
	}
}

// Cached returns the ID of the cached page.
func (c *Cache) Cached() (page.ID, bool) {
	if c.cur == nil {
		return page.InvalidID, false
	}
	return c.cur.h.ID(), true
}

// Pending returns the number of dirty pages held in the side map.
func (c *Cache) Pending() int { return len(c.pending) }

// AllocateNext allocates the next page and caches it. New pages are dirty.
func (c *Cache) AllocateNext(ctx context.Context) (page.ID, error) {
	h, err := c.mgr.Allocate(ctx)
	if err != nil {
		return page.InvalidID, err
	}
	if err := c.displace(); err != nil {
		_ = c.mgr.Detach(h)
		return page.InvalidID, err
	}
	c.cur = &entry{h: h, buf: h.Bytes(), dirty: true}
	return h.ID(), nil
}

// Attach makes page id the cached page.
func (c *Cache) Attach(ctx context.Context, id page.ID) error {
	if c.cur != nil && c.cur.h.ID() == id {
		return nil
	}
	if h, ok := c.pending[id]; ok {
		delete(c.pending, id)
		if err := c.displace(); err != nil {
			c.pending[id] = h
			return err
		}
		c.cur = &entry{h: h, buf: h.Bytes(), dirty: true}
		return nil
	}

	h, err := c.mgr.Attach(ctx, id, page.PriorityLow)
	if err != nil {
		return err
	}
	if err := c.displace(); err != nil {
		_ = c.mgr.Detach(h)
		return err
	}
	c.cur = &entry{h: h, buf: h.Bytes()}
	return nil
}

// Buffer returns the raw buffer of the cached page, or nil when empty.
func (c *Cache) Buffer() []byte {
	if c.cur == nil {
		return nil
	}
	return c.cur.buf
}

// MarkDirty marks the cached page dirty. It must be called before the buffer
// is written.
func (c *Cache) MarkDirty() error {
	if c.cur == nil {
		return errors.New("pagecache: no page cached")
	}
	if c.cur.dirty {
		return nil
	}
	if err := c.mgr.MarkDirty(c.cur.h); err != nil {
		return err
	}
	c.cur.dirty = true
	return nil
}

// Drain detaches the cached page and every parked dirty page, leaving the
// cache empty. With commit set the first detach error is returned; otherwise
// the pages are about to be discarded and detach errors are ignored.
func (c *Cache) Drain(commit bool) error {
	var first error
	keep := func(err error) {
		if err != nil && commit && first == nil {
			first = err
		}
	}
	if c.cur != nil {
		keep(c.mgr.Detach(c.cur.h))
		c.cur = nil
	}
	for id, h := range c.pending {
		keep(c.mgr.Detach(h))
		delete(c.pending, id)
	}
	if first != nil {
		return fmt.Errorf("pagecache: drain: %w", first)
	}
	return nil
}

// FlushAll drains the cache and commits every pending page change.
func (c *Cache) FlushAll(ctx context.Context) error {
	if err := c.Drain(true); err != nil {
		return err
	}
	return c.mgr.FlushAll(ctx)
}

// RecoverAll drains the cache and discards every pending page change.
func (c *Cache) RecoverAll(ctx context.Context) error {
	_ = c.Drain(false)
	return c.mgr.RecoverAll(ctx)
}

// displace releases the cached page: dirty pages stay attached in the side
// map, clean pages are detached.
func (c *Cache) displace() error {
	if c.cur == nil {
		return nil
	}
	if c.cur.dirty {
		c.pending[c.cur.h.ID()] = c.cur.h
		c.cur = nil
		return nil
	}
	err := c.mgr.Detach(c.cur.h)
	c.cur = nil
	return err
}
