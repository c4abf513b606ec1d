package vecfile

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/hupe1980/vecfile/internal/layout"
	"github.com/hupe1980/vecfile/internal/pagecache"
	"github.com/hupe1980/vecfile/page"
)

// KeyMax is the "no more keys" sentinel. It is never a stored key.
const KeyMax uint32 = math.MaxUint32

// VectorFile is a fixed-stride sparse array of values keyed by uint32,
// stored in the pages of a page.Manager.
//
// Page 0 holds the header. Key k lives on data page k/ElementsPerPage+1.
// All changes are pending until FlushAllPages commits them or
// RecoverAllPages discards them.
//
// A VectorFile is not safe for concurrent use.
type VectorFile struct {
	mgr   page.Manager
	pages *pagecache.Cache
	opts  options

	hdrPage  page.Handle // nil until ensureLoaded
	hdr      layout.Header
	hdrDirty bool

	closed bool
}

func newVectorFile(mgr page.Manager, opts options) *VectorFile {
	return &VectorFile{
		mgr:   mgr,
		pages: pagecache.New(mgr),
		opts:  opts,
	}
}

// Create creates and initializes an empty store on mgr.
//
// elementSize must be a positive multiple of 4 that fits into a page. If any
// step after the backing store was created fails, pending pages are
// discarded and the backing store is destroyed, so a failed Create leaves
// nothing behind.
func Create(ctx context.Context, mgr page.Manager, elementSize int, optFns ...Option) (*VectorFile, error) {
	opts := applyOptions(optFns)

	epp, err := elementsPerPage(mgr.PageSize(), elementSize, opts.elementsPerPage)
	if err != nil {
		opts.logger.LogCreate(ctx, uint32(max(elementSize, 0)), 0, err)
		return nil, err
	}
	if err := mgr.Create(ctx); err != nil {
		opts.logger.LogCreate(ctx, uint32(elementSize), epp, err)
		return nil, fmt.Errorf("vecfile: create: %w", err)
	}

	vf := newVectorFile(mgr, opts)
	if err := vf.initialize(ctx, epp, uint32(elementSize)); err != nil {
		_ = vf.recoverAllPages(ctx)
		if derr := mgr.Destroy(ctx); derr != nil {
			opts.logger.WarnContext(ctx, "destroy after failed create", "error", derr)
		}
		opts.logger.LogCreate(ctx, uint32(elementSize), epp, err)
		return nil, err
	}

	opts.logger.LogCreate(ctx, uint32(elementSize), epp, nil)
	return vf, nil
}

func elementsPerPage(pageSize, elementSize int, limit uint32) (uint32, error) {
	if elementSize <= 0 || elementSize%4 != 0 || elementSize > pageSize {
		return 0, &ErrElementSize{Size: elementSize, PageSize: pageSize}
	}
	epp := layout.ElementsPerPage(pageSize, uint32(elementSize))
	if limit > 0 {
		if limit > epp {
			return 0, fmt.Errorf("%w: %d elements of %d bytes exceed page size %d",
				ErrInvalidElementSize, limit, elementSize, pageSize)
		}
		epp = limit
	}
	return epp, nil
}

// initialize allocates the header page, writes a fresh header and commits.
func (vf *VectorFile) initialize(ctx context.Context, epp, elementSize uint32) error {
	h, err := vf.mgr.Allocate(ctx)
	if err != nil {
		return fmt.Errorf("vecfile: allocate header page: %w", err)
	}
	if h.ID() != 0 {
		_ = vf.mgr.Detach(h)
		return fmt.Errorf("%w: header allocated as page %d", ErrCorrupt, h.ID())
	}
	vf.hdrPage = h
	if err := vf.initializeHeader(epp, elementSize); err != nil {
		return err
	}
	return vf.flushAllPages(ctx)
}

func (vf *VectorFile) initializeHeader(epp, elementSize uint32) error {
	vf.hdr = layout.New(epp, elementSize)
	return vf.markHeaderDirty()
}

// Open opens an existing store on mgr.
//
// It returns ErrNotFound if the backing store does not exist or holds no
// pages and ErrCorrupt if the header page does not decode.
func Open(ctx context.Context, mgr page.Manager, optFns ...Option) (*VectorFile, error) {
	opts := applyOptions(optFns)

	ok, err := mgr.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("vecfile: open: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	n, err := mgr.PageCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("vecfile: open: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}

	vf := newVectorFile(mgr, opts)
	if err := vf.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	if page.ID(vf.hdr.LastAllocatedPage) >= n {
		vf.releaseHeader(false)
		return nil, fmt.Errorf("%w: last allocated page %d beyond %d pages", ErrCorrupt, vf.hdr.LastAllocatedPage, n)
	}
	return vf, nil
}

// ensureLoaded attaches and decodes the header page once per flush cycle.
func (vf *VectorFile) ensureLoaded(ctx context.Context) error {
	if vf.hdrPage != nil {
		return nil
	}
	h, err := vf.mgr.Attach(ctx, 0, page.PriorityHigh)
	if err != nil {
		return fmt.Errorf("vecfile: attach header page: %w", err)
	}
	hdr, err := layout.Decode(h.Bytes())
	if err != nil {
		_ = vf.mgr.Detach(h)
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if uint64(hdr.ElementsPerPage)*uint64(hdr.ElementSize) > uint64(vf.mgr.PageSize()) {
		_ = vf.mgr.Detach(h)
		return fmt.Errorf("%w: %d elements of %d bytes exceed page size %d",
			ErrCorrupt, hdr.ElementsPerPage, hdr.ElementSize, vf.mgr.PageSize())
	}
	vf.hdrPage = h
	vf.hdr = hdr
	vf.hdrDirty = false
	return nil
}

// markHeaderDirty marks page 0 dirty and re-encodes the header into it.
func (vf *VectorFile) markHeaderDirty() error {
	if !vf.hdrDirty {
		if err := vf.mgr.MarkDirty(vf.hdrPage); err != nil {
			return fmt.Errorf("vecfile: mark header dirty: %w", err)
		}
		vf.hdrDirty = true
	}
	return vf.hdr.Encode(vf.hdrPage.Bytes())
}

// releaseHeader detaches the header page. Detach errors are only reported
// when the header is about to be committed.
func (vf *VectorFile) releaseHeader(commit bool) error {
	if vf.hdrPage == nil {
		return nil
	}
	err := vf.mgr.Detach(vf.hdrPage)
	vf.hdrPage = nil
	vf.hdrDirty = false
	if commit && err != nil {
		return fmt.Errorf("vecfile: detach header page: %w", err)
	}
	return nil
}

func (vf *VectorFile) check() error {
	if vf.closed {
		return ErrClosed
	}
	return nil
}

// Clear commits pending pages, drops every data page and resets the header.
// Unless force is set it fails while the manager has data pages attached
// elsewhere. The reset is pending until the next flush.
func (vf *VectorFile) Clear(ctx context.Context, force bool) error {
	if err := vf.check(); err != nil {
		return err
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return err
	}
	epp, size := vf.hdr.ElementsPerPage, vf.hdr.ElementSize

	if err := vf.flushAllPages(ctx); err != nil {
		return err
	}
	if err := vf.mgr.Clear(ctx, force); err != nil {
		return fmt.Errorf("vecfile: clear: %w", err)
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return err
	}
	return vf.initializeHeader(epp, size)
}

// Expand allocates every data page up to the page before the one holding
// key, filling new pages with the empty-slot marker. An intermediate commit
// is made every flush interval allocations and a final one at the end.
func (vf *VectorFile) Expand(ctx context.Context, key uint32) error {
	if err := vf.check(); err != nil {
		return err
	}
	if key == KeyMax {
		return ErrInvalidKey
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return err
	}

	start := time.Now()
	from := vf.hdr.LastAllocatedPage
	allocated, err := vf.grow(ctx, layout.PageOf(key, vf.hdr.ElementsPerPage)-1)
	if err == nil {
		err = vf.flushAllPages(ctx)
	}
	vf.opts.metricsCollector.RecordExpand(allocated, time.Since(start), err)
	vf.opts.logger.LogExpand(ctx, key, from, from+uint32(allocated), err)
	return err
}

// grow allocates data pages until lastAllocatedPage reaches target. The last
// allocated page stays cached.
func (vf *VectorFile) grow(ctx context.Context, target uint32) (int, error) {
	allocated := 0
	for vf.hdr.LastAllocatedPage < target {
		id, err := vf.pages.AllocateNext(ctx)
		if err != nil {
			return allocated, fmt.Errorf("vecfile: allocate page %d: %w", vf.hdr.LastAllocatedPage+1, err)
		}
		if uint32(id) != vf.hdr.LastAllocatedPage+1 {
			return allocated, fmt.Errorf("%w: allocated page %d after %d", ErrCorrupt, id, vf.hdr.LastAllocatedPage)
		}
		layout.Fill(vf.pages.Buffer(), vf.hdr.FillByte)

		vf.hdr.LastAllocatedPage = uint32(id)
		if err := vf.markHeaderDirty(); err != nil {
			return allocated, err
		}
		allocated++

		if allocated%vf.opts.flushInterval == 0 && vf.hdr.LastAllocatedPage < target {
			if err := vf.flushAllPages(ctx); err != nil {
				return allocated, err
			}
			if err := vf.ensureLoaded(ctx); err != nil {
				return allocated, err
			}
		}
	}
	return allocated, nil
}

// Insert stores value under key, allocating data pages as needed.
//
// len(value) must equal the element size and value must not begin with the
// empty-slot marker 0xFFFFFFFF. Overwriting an occupied slot does not change
// the count.
func (vf *VectorFile) Insert(ctx context.Context, key uint32, value []byte) error {
	start := time.Now()
	err := vf.insert(ctx, key, value)
	vf.opts.metricsCollector.RecordInsert(time.Since(start), err)
	return err
}

func (vf *VectorFile) insert(ctx context.Context, key uint32, value []byte) error {
	if err := vf.check(); err != nil {
		return err
	}
	if key == KeyMax {
		return ErrInvalidKey
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return err
	}
	if len(value) != int(vf.hdr.ElementSize) {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrValueSize, len(value), vf.hdr.ElementSize)
	}
	if layout.Reserved(value) {
		return ErrReservedValue
	}

	p := layout.PageOf(key, vf.hdr.ElementsPerPage)
	if p > vf.hdr.LastAllocatedPage {
		if _, err := vf.grow(ctx, p); err != nil {
			return err
		}
	}
	if err := vf.pages.Attach(ctx, page.ID(p)); err != nil {
		return fmt.Errorf("vecfile: attach page %d: %w", p, err)
	}
	if err := vf.pages.MarkDirty(); err != nil {
		return fmt.Errorf("vecfile: mark page %d dirty: %w", p, err)
	}

	slot := vf.slot(key)
	wasEmpty := !layout.Occupied(slot)
	copy(slot, value)

	if vf.hdr.Empty() {
		vf.hdr.MinKey, vf.hdr.MaxKey = key, key
	} else {
		vf.hdr.MinKey = min(vf.hdr.MinKey, key)
		vf.hdr.MaxKey = max(vf.hdr.MaxKey, key)
	}
	if wasEmpty {
		vf.hdr.Count++
	}
	return vf.markHeaderDirty()
}

// slot returns the bytes of key's slot in the cached page.
func (vf *VectorFile) slot(key uint32) []byte {
	off := layout.ByteOffset(key, vf.hdr.ElementsPerPage, vf.hdr.ElementSize)
	return vf.pages.Buffer()[off : off+int(vf.hdr.ElementSize)]
}

// locate attaches the page holding key. It reports false when the page was
// never allocated.
func (vf *VectorFile) locate(ctx context.Context, key uint32) (bool, error) {
	if key == KeyMax {
		return false, nil
	}
	p := layout.PageOf(key, vf.hdr.ElementsPerPage)
	if p > vf.hdr.LastAllocatedPage {
		return false, nil
	}
	if err := vf.pages.Attach(ctx, page.ID(p)); err != nil {
		return false, fmt.Errorf("vecfile: attach page %d: %w", p, err)
	}
	return true, nil
}

// Expunge removes key. It reports whether a value was removed.
func (vf *VectorFile) Expunge(ctx context.Context, key uint32) (bool, error) {
	ok, err := vf.expunge(ctx, key, nil)
	vf.opts.metricsCollector.RecordExpunge(ok, err)
	return ok, err
}

// ExpungeValue removes key and returns the value it held.
func (vf *VectorFile) ExpungeValue(ctx context.Context, key uint32) ([]byte, bool, error) {
	var out []byte
	ok, err := vf.expunge(ctx, key, &out)
	vf.opts.metricsCollector.RecordExpunge(ok, err)
	return out, ok, err
}

func (vf *VectorFile) expunge(ctx context.Context, key uint32, out *[]byte) (bool, error) {
	if err := vf.check(); err != nil {
		return false, err
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return false, err
	}
	ok, err := vf.locate(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if !layout.Occupied(vf.slot(key)) {
		return false, nil
	}
	if err := vf.pages.MarkDirty(); err != nil {
		return false, fmt.Errorf("vecfile: mark page dirty: %w", err)
	}

	slot := vf.slot(key)
	if out != nil {
		*out = append([]byte(nil), slot...)
	}
	layout.Fill(slot, vf.hdr.FillByte)
	vf.hdr.Count--
	if err := vf.markHeaderDirty(); err != nil {
		return false, err
	}
	return true, nil
}

// Find returns a copy of the value stored under key.
func (vf *VectorFile) Find(ctx context.Context, key uint32) ([]byte, bool, error) {
	start := time.Now()
	v, ok, err := vf.find(ctx, key)
	vf.opts.metricsCollector.RecordFind(ok, time.Since(start))
	return v, ok, err
}

func (vf *VectorFile) find(ctx context.Context, key uint32) ([]byte, bool, error) {
	if err := vf.check(); err != nil {
		return nil, false, err
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return nil, false, err
	}
	ok, err := vf.locate(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	slot := vf.slot(key)
	if !layout.Occupied(slot) {
		return nil, false, nil
	}
	return append([]byte(nil), slot...), true, nil
}

// Next returns the first occupied key after key together with a copy of its
// value. Next(KeyMax) starts over at the smallest key. When no key follows it
// returns KeyMax and false.
func (vf *VectorFile) Next(ctx context.Context, key uint32) (uint32, []byte, bool, error) {
	if err := vf.check(); err != nil {
		return KeyMax, nil, false, err
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return KeyMax, nil, false, err
	}
	if vf.hdr.Empty() {
		return KeyMax, nil, false, nil
	}

	k := uint32(0)
	if key != KeyMax {
		k = key + 1
	}
	return vf.scan(ctx, max(k, vf.hdr.MinKey))
}

// scan returns the first occupied key at or after k.
func (vf *VectorFile) scan(ctx context.Context, k uint32) (uint32, []byte, bool, error) {
	epp := vf.hdr.ElementsPerPage
	for k <= vf.hdr.MaxKey {
		p := layout.PageOf(k, epp)
		if p > vf.hdr.LastAllocatedPage {
			break
		}
		if err := vf.pages.Attach(ctx, page.ID(p)); err != nil {
			return KeyMax, nil, false, fmt.Errorf("vecfile: attach page %d: %w", p, err)
		}
		last := min(layout.LastKey(p, epp), vf.hdr.MaxKey)
		for ; ; k++ {
			if slot := vf.slot(k); layout.Occupied(slot) {
				return k, append([]byte(nil), slot...), true, nil
			}
			if k == last {
				break
			}
		}
		if last == vf.hdr.MaxKey {
			break
		}
		k = last + 1
	}
	return KeyMax, nil, false, nil
}

// MinKey returns the smallest key ever inserted. Deletions do not lower it.
func (vf *VectorFile) MinKey(ctx context.Context) (uint32, error) {
	return vf.headerField(ctx, func(h *layout.Header) uint32 { return h.MinKey })
}

// MaxKey returns the largest key ever inserted.
func (vf *VectorFile) MaxKey(ctx context.Context) (uint32, error) {
	return vf.headerField(ctx, func(h *layout.Header) uint32 { return h.MaxKey })
}

// Count returns the number of stored values.
func (vf *VectorFile) Count(ctx context.Context) (uint32, error) {
	return vf.headerField(ctx, func(h *layout.Header) uint32 { return h.Count })
}

// LastAllocatedPage returns the highest allocated data page, 0 if none.
func (vf *VectorFile) LastAllocatedPage(ctx context.Context) (uint32, error) {
	return vf.headerField(ctx, func(h *layout.Header) uint32 { return h.LastAllocatedPage })
}

// ElementSize returns the value size in bytes.
func (vf *VectorFile) ElementSize(ctx context.Context) (uint32, error) {
	return vf.headerField(ctx, func(h *layout.Header) uint32 { return h.ElementSize })
}

// ElementsPerPage returns the number of slots per data page.
func (vf *VectorFile) ElementsPerPage(ctx context.Context) (uint32, error) {
	return vf.headerField(ctx, func(h *layout.Header) uint32 { return h.ElementsPerPage })
}

func (vf *VectorFile) headerField(ctx context.Context, get func(*layout.Header) uint32) (uint32, error) {
	if err := vf.check(); err != nil {
		return 0, err
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	return get(&vf.hdr), nil
}

// SubHeader returns the extension region of the header page that follows the
// fixed header fields. Call MarkSubHeaderDirty before writing to it. The slice
// is valid until the next flush, recover or close.
func (vf *VectorFile) SubHeader(ctx context.Context) ([]byte, error) {
	if err := vf.check(); err != nil {
		return nil, err
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	return vf.hdrPage.Bytes()[layout.SubHeaderOffset:], nil
}

// MarkSubHeaderDirty marks the header page dirty so that writes to the
// extension region are committed by the next flush.
func (vf *VectorFile) MarkSubHeaderDirty(ctx context.Context) error {
	if err := vf.check(); err != nil {
		return err
	}
	if err := vf.ensureLoaded(ctx); err != nil {
		return err
	}
	return vf.markHeaderDirty()
}

// FlushAllPages commits every pending change of the store.
func (vf *VectorFile) FlushAllPages(ctx context.Context) error {
	if err := vf.check(); err != nil {
		return err
	}
	start := time.Now()
	count, last := vf.hdr.Count, vf.hdr.LastAllocatedPage
	err := vf.flushAllPages(ctx)
	vf.opts.metricsCollector.RecordFlush(time.Since(start), err)
	vf.opts.logger.LogFlush(ctx, count, last, time.Since(start), err)
	return err
}

// SaveAllPages is FlushAllPages.
func (vf *VectorFile) SaveAllPages(ctx context.Context) error {
	return vf.FlushAllPages(ctx)
}

// RecoverAllPages discards every change made since the last flush.
func (vf *VectorFile) RecoverAllPages(ctx context.Context) error {
	if err := vf.check(); err != nil {
		return err
	}
	err := vf.recoverAllPages(ctx)
	vf.opts.metricsCollector.RecordRecover(err)
	vf.opts.logger.LogRecover(ctx, err)
	return err
}

func (vf *VectorFile) flushAllPages(ctx context.Context) error {
	if err := vf.releaseHeader(true); err != nil {
		return err
	}
	if err := vf.pages.FlushAll(ctx); err != nil {
		return fmt.Errorf("vecfile: flush: %w", err)
	}
	return nil
}

func (vf *VectorFile) recoverAllPages(ctx context.Context) error {
	_ = vf.releaseHeader(false)
	if err := vf.pages.RecoverAll(ctx); err != nil {
		return fmt.Errorf("vecfile: recover: %w", err)
	}
	return nil
}

// Close commits pending pages and closes the store handle. The manager is
// left open.
func (vf *VectorFile) Close(ctx context.Context) error {
	if vf.closed {
		return nil
	}
	err := vf.flushAllPages(ctx)
	vf.closed = true
	return err
}

// Destroy discards pending pages and removes the backing store.
func (vf *VectorFile) Destroy(ctx context.Context) error {
	if err := vf.check(); err != nil {
		return err
	}
	_ = vf.releaseHeader(false)
	_ = vf.pages.Drain(false)
	vf.closed = true
	if err := vf.mgr.Destroy(ctx); err != nil && !errors.Is(err, page.ErrNotExist) {
		return fmt.Errorf("vecfile: destroy: %w", err)
	}
	return nil
}
