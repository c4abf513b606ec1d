package vecfile

import (
	"context"
	"encoding/binary"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"testing"

	vfs "github.com/hupe1980/vecfile/internal/fs"
	"github.com/hupe1980/vecfile/internal/layout"
	"github.com/hupe1980/vecfile/page"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryManager(t *testing.T) *page.MemoryManager {
	t.Helper()
	mgr, err := page.NewMemoryManager(page.MinPageSize)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

// newStore creates a store over 64-byte memory pages.
func newStore(t *testing.T, elementSize int, opts ...Option) (*VectorFile, *page.MemoryManager) {
	t.Helper()
	mgr := newMemoryManager(t)
	vf, err := Create(context.Background(), mgr, elementSize, opts...)
	require.NoError(t, err)
	return vf, mgr
}

func u32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func value(key uint32, size int) []byte {
	b := make([]byte, size)
	for i := 0; i < size; i += 4 {
		binary.LittleEndian.PutUint32(b[i:], key*31+uint32(i))
	}
	return b
}

func mustFind(t *testing.T, vf *VectorFile, key uint32) []byte {
	t.Helper()
	v, ok, err := vf.Find(context.Background(), key)
	require.NoError(t, err)
	require.True(t, ok, "key %d", key)
	return v
}

func assertMissing(t *testing.T, vf *VectorFile, key uint32) {
	t.Helper()
	_, ok, err := vf.Find(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok, "key %d", key)
}

func header(t *testing.T, vf *VectorFile) layout.Header {
	t.Helper()
	ctx := context.Background()
	var h layout.Header
	var err error
	h.Count, err = vf.Count(ctx)
	require.NoError(t, err)
	h.MinKey, err = vf.MinKey(ctx)
	require.NoError(t, err)
	h.MaxKey, err = vf.MaxKey(ctx)
	require.NoError(t, err)
	h.LastAllocatedPage, err = vf.LastAllocatedPage(ctx)
	require.NoError(t, err)
	return h
}

func TestVectorFile_Scenario(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4, WithElementsPerPage(4))

	size, err := vf.ElementSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), size)
	epp, err := vf.ElementsPerPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), epp)

	for _, k := range []uint32{0, 5, 9} {
		require.NoError(t, vf.Insert(ctx, k, u32(k*10)))
	}

	assert.Equal(t, uint32(2), layout.PageOf(5, epp))
	assert.Equal(t, uint32(3), layout.PageOf(9, epp))

	h := header(t, vf)
	assert.Equal(t, uint32(3), h.LastAllocatedPage)
	assert.Equal(t, uint32(3), h.Count)
	assert.Equal(t, uint32(0), h.MinKey)
	assert.Equal(t, uint32(9), h.MaxKey)

	var keys, values []uint32
	it := vf.Begin(ctx)
	for k, v := range it.All(ctx) {
		keys = append(keys, k)
		values = append(values, binary.LittleEndian.Uint32(v))
	}
	require.NoError(t, it.Err())
	assert.Equal(t, []uint32{0, 5, 9}, keys)
	assert.Equal(t, []uint32{0, 50, 90}, values)

	removed, err := vf.Expunge(ctx, 5)
	require.NoError(t, err)
	assert.True(t, removed)
	assertMissing(t, vf, 5)

	n, err := vf.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)
}

func TestVectorFile_RoundTrip(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 8)
	rng := rand.New(rand.NewPCG(1, 2))

	want := make(map[uint32][]byte)
	for range 500 {
		k := rng.Uint32N(4000)
		v := value(k, 8)
		require.NoError(t, vf.Insert(ctx, k, v))
		want[k] = v
	}
	for k, v := range want {
		assert.Equal(t, v, mustFind(t, vf, k))
	}

	n, err := vf.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(len(want)), n)

	require.NoError(t, vf.FlushAllPages(ctx))
	for k, v := range want {
		assert.Equal(t, v, mustFind(t, vf, k))
	}
}

func TestVectorFile_Overwrite(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4)

	require.NoError(t, vf.Insert(ctx, 3, u32(1)))
	require.NoError(t, vf.Insert(ctx, 3, u32(2)))

	assert.Equal(t, u32(2), mustFind(t, vf, 3))
	n, err := vf.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)
}

func TestVectorFile_Deletion(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4)

	require.NoError(t, vf.Insert(ctx, 1, u32(7)))
	before, err := vf.Count(ctx)
	require.NoError(t, err)

	require.NoError(t, vf.Insert(ctx, 40, u32(8)))
	v, removed, err := vf.ExpungeValue(ctx, 40)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, u32(8), v)
	assertMissing(t, vf, 40)

	after, err := vf.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	t.Run("Missing", func(t *testing.T) {
		removed, err := vf.Expunge(ctx, 40)
		require.NoError(t, err)
		assert.False(t, removed)
	})

	t.Run("PageNeverAllocated", func(t *testing.T) {
		last, err := vf.LastAllocatedPage(ctx)
		require.NoError(t, err)

		removed, err := vf.Expunge(ctx, 1_000_000)
		require.NoError(t, err)
		assert.False(t, removed)
		assertMissing(t, vf, 1_000_000)
		assertMissing(t, vf, KeyMax)

		again, err := vf.LastAllocatedPage(ctx)
		require.NoError(t, err)
		assert.Equal(t, last, again, "read paths never allocate")
	})
}

func TestVectorFile_MinMax(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4)

	keys := []uint32{50, 20, 90, 33, 21}
	for i, k := range keys {
		require.NoError(t, vf.Insert(ctx, k, u32(k+1)))

		h := header(t, vf)
		inserted := keys[:i+1]
		assert.Equal(t, slices.Min(inserted), h.MinKey)
		assert.Equal(t, slices.Max(inserted), h.MaxKey)
	}

	// Deletions leave the bounds in place.
	_, err := vf.Expunge(ctx, 90)
	require.NoError(t, err)
	h := header(t, vf)
	assert.Equal(t, uint32(20), h.MinKey)
	assert.Equal(t, uint32(90), h.MaxKey)
}

func TestVectorFile_MonotonicGrowth(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4, WithElementsPerPage(4), WithFlushInterval(3))

	var last uint32
	step := func(op func() error) {
		t.Helper()
		require.NoError(t, op())
		got, err := vf.LastAllocatedPage(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, last)
		last = got
	}

	step(func() error { return vf.Insert(ctx, 30, u32(1)) })
	assert.Equal(t, uint32(8), last)
	step(func() error { return vf.Expand(ctx, 4) })
	step(func() error { return vf.Insert(ctx, 2, u32(1)) })
	step(func() error { return vf.Expand(ctx, 60) })
	assert.Equal(t, uint32(15), last)
	step(func() error { _, err := vf.Expunge(ctx, 30); return err })
	step(func() error { return vf.Insert(ctx, 61, u32(1)) })
	assert.Equal(t, uint32(16), last)
}

func TestVectorFile_Expand(t *testing.T) {
	ctx := context.Background()
	vf, mgr := newStore(t, 4, WithElementsPerPage(4), WithFlushInterval(2))

	require.NoError(t, vf.Expand(ctx, 20))
	last, err := vf.LastAllocatedPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), last, "pages up to the one before the key's page")

	// Expand always commits.
	assert.Equal(t, page.ID(6), mgr.CommittedPages())
	require.NoError(t, vf.RecoverAllPages(ctx))
	last, err = vf.LastAllocatedPage(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), last)

	// New pages are empty.
	for k := uint32(0); k < 20; k++ {
		assertMissing(t, vf, k)
	}
	n, err := vf.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, vf.Expand(ctx, KeyMax), ErrInvalidKey)
}

func TestVectorFile_Next(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4, WithElementsPerPage(4))

	k, v, ok, err := vf.Next(ctx, KeyMax)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, KeyMax, k)
	assert.Nil(t, v)

	for _, k := range []uint32{6, 7, 22} {
		require.NoError(t, vf.Insert(ctx, k, u32(k+100)))
	}

	tests := []struct {
		from uint32
		want uint32
		ok   bool
	}{
		{KeyMax, 6, true},
		{0, 6, true},
		{6, 7, true},
		{7, 22, true},
		{21, 22, true},
		{22, KeyMax, false},
		{1000, KeyMax, false},
	}
	for _, tt := range tests {
		k, v, ok, err := vf.Next(ctx, tt.from)
		require.NoError(t, err)
		assert.Equal(t, tt.ok, ok, "Next(%d)", tt.from)
		assert.Equal(t, tt.want, k, "Next(%d)", tt.from)
		if ok {
			assert.Equal(t, u32(k+100), v)
		}
	}
}

func TestVectorFile_SparseIteration(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4)
	rng := rand.New(rand.NewPCG(7, 11))

	set := make(map[uint32]struct{})
	for range 300 {
		k := rng.Uint32N(50_000)
		set[k] = struct{}{}
		require.NoError(t, vf.Insert(ctx, k, u32(k+1)))
	}
	want := make([]uint32, 0, len(set))
	for k := range set {
		want = append(want, k)
	}
	slices.Sort(want)

	var got []uint32
	for it := vf.Begin(ctx); it.Valid(); it.Next(ctx) {
		assert.Equal(t, u32(it.Key()+1), it.Value())
		got = append(got, it.Key())
	}
	assert.Equal(t, want, got)

	// Removing the smallest key leaves a stale minimum; Begin still finds
	// the first occupied key.
	_, err := vf.Expunge(ctx, want[0])
	require.NoError(t, err)
	it := vf.Begin(ctx)
	require.True(t, it.Valid())
	assert.Equal(t, want[1], it.Key())
}

func TestIterator_Empty(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4)

	it := vf.Begin(ctx)
	assert.False(t, it.Valid())
	assert.Equal(t, End, it.Key())
	assert.False(t, it.Next(ctx))
	assert.NoError(t, it.Err())
}

func TestIterator_Error(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4)
	require.NoError(t, vf.Insert(ctx, 1, u32(1)))
	require.NoError(t, vf.Close(ctx))

	it := vf.Begin(ctx)
	assert.False(t, it.Valid())
	assert.ErrorIs(t, it.Err(), ErrClosed)
}

func TestVectorFile_IdempotentFlush(t *testing.T) {
	ctx := context.Background()
	vf, mgr := newStore(t, 4)

	for k := uint32(0); k < 100; k += 7 {
		require.NoError(t, vf.Insert(ctx, k, u32(k+1)))
	}
	require.NoError(t, vf.FlushAllPages(ctx))
	committed := mgr.CommittedPages()
	h := header(t, vf)

	require.NoError(t, vf.SaveAllPages(ctx))
	assert.Equal(t, committed, mgr.CommittedPages())
	assert.Equal(t, h, header(t, vf))

	_, dirty := mgr.Resident()
	assert.Zero(t, dirty)
}

func TestVectorFile_Rollback(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4, WithElementsPerPage(4))

	require.NoError(t, vf.Insert(ctx, 1, u32(1)))
	require.NoError(t, vf.FlushAllPages(ctx))

	require.NoError(t, vf.Insert(ctx, 2, u32(2)))
	require.NoError(t, vf.Insert(ctx, 13, u32(13)))
	_, err := vf.Expunge(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, vf.RecoverAllPages(ctx))

	assert.Equal(t, u32(1), mustFind(t, vf, 1))
	assertMissing(t, vf, 2)
	assertMissing(t, vf, 13)

	h := header(t, vf)
	assert.Equal(t, uint32(1), h.Count)
	assert.Equal(t, uint32(1), h.LastAllocatedPage)
	assert.Equal(t, uint32(1), h.MaxKey)
}

func TestVectorFile_PeriodicFlushSurvivesRecover(t *testing.T) {
	ctx := context.Background()
	vf, mgr := newStore(t, 4, WithElementsPerPage(4), WithFlushInterval(2))

	// Key 16 lives on page 5. Pages 1-4 are committed on the way.
	require.NoError(t, vf.Insert(ctx, 16, u32(16)))
	assert.Equal(t, page.ID(5), mgr.CommittedPages())

	require.NoError(t, vf.RecoverAllPages(ctx))

	h := header(t, vf)
	assert.Equal(t, uint32(4), h.LastAllocatedPage)
	assert.Zero(t, h.Count)
	assertMissing(t, vf, 16)

	report, err := vf.Verify(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK(), report.Problems)
}

func TestVectorFile_Validation(t *testing.T) {
	ctx := context.Background()

	for _, size := range []int{0, -4, 6, 68} {
		mgr := newMemoryManager(t)
		_, err := Create(ctx, mgr, size)
		assert.ErrorIs(t, err, ErrInvalidElementSize, "size %d", size)

		var es *ErrElementSize
		require.ErrorAs(t, err, &es)
		assert.Equal(t, size, es.Size)

		ok, err := mgr.Exists(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	_, err := Create(ctx, newMemoryManager(t), 4, WithElementsPerPage(17))
	assert.ErrorIs(t, err, ErrInvalidElementSize)

	vf, _ := newStore(t, 8)
	assert.ErrorIs(t, vf.Insert(ctx, 1, u32(1)), ErrValueSize)
	assert.ErrorIs(t, vf.Insert(ctx, 1, []byte{0xFF, 0xFF, 0xFF, 0xFF, 1, 2, 3, 4}), ErrReservedValue)
	assert.ErrorIs(t, vf.Insert(ctx, KeyMax, value(1, 8)), ErrInvalidKey)

	n, err := vf.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestVectorFile_CreateExisting(t *testing.T) {
	ctx := context.Background()
	vf, mgr := newStore(t, 4)
	require.NoError(t, vf.Insert(ctx, 1, u32(1)))
	require.NoError(t, vf.Close(ctx))

	_, err := Create(ctx, mgr, 4)
	assert.ErrorIs(t, err, page.ErrExists)

	// The existing store is untouched.
	vf, err = Open(ctx, mgr)
	require.NoError(t, err)
	assert.Equal(t, u32(1), mustFind(t, vf, 1))
}

func TestVectorFile_AtomicCreate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	for _, op := range []page.Op{page.OpAllocate, page.OpMarkDirty, page.OpFlush} {
		t.Run(string(op), func(t *testing.T) {
			mgr := newMemoryManager(t)
			mgr.FailAfter(op, 0, boom)

			_, err := Create(ctx, mgr, 4)
			require.ErrorIs(t, err, boom)

			ok, err := mgr.Exists(ctx)
			require.NoError(t, err)
			assert.False(t, ok)

			_, err = Open(ctx, mgr)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("NotCreated", func(t *testing.T) {
		_, err := Open(ctx, newMemoryManager(t))
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("NoPages", func(t *testing.T) {
		mgr := newMemoryManager(t)
		require.NoError(t, mgr.Create(ctx))
		_, err := Open(ctx, mgr)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Garbage", func(t *testing.T) {
		mgr := newMemoryManager(t)
		require.NoError(t, mgr.Create(ctx))
		h, err := mgr.Allocate(ctx)
		require.NoError(t, err)
		copy(h.Bytes(), "not a vector file header")
		require.NoError(t, mgr.Detach(h))
		require.NoError(t, mgr.FlushAll(ctx))

		_, err = Open(ctx, mgr)
		assert.ErrorIs(t, err, ErrCorrupt)
		assert.ErrorIs(t, err, layout.ErrBadMagic)
	})

	t.Run("Checksum", func(t *testing.T) {
		vf, mgr := newStore(t, 4)
		require.NoError(t, vf.Close(ctx))

		h, err := mgr.Attach(ctx, 0, page.PriorityHigh)
		require.NoError(t, err)
		require.NoError(t, mgr.MarkDirty(h))
		h.Bytes()[32] ^= 0x01
		require.NoError(t, mgr.Detach(h))
		require.NoError(t, mgr.FlushAll(ctx))

		_, err = Open(ctx, mgr)
		assert.ErrorIs(t, err, ErrCorrupt)
		assert.ErrorIs(t, err, layout.ErrChecksum)
	})
}

func TestVectorFile_Clear(t *testing.T) {
	ctx := context.Background()
	vf, mgr := newStore(t, 4)

	for k := uint32(0); k < 200; k += 3 {
		require.NoError(t, vf.Insert(ctx, k, u32(k+1)))
	}
	require.NoError(t, vf.Clear(ctx, false))

	h := header(t, vf)
	assert.Zero(t, h.Count)
	assert.Zero(t, h.LastAllocatedPage)
	assertMissing(t, vf, 3)

	// The inserts were committed by Clear; the clear itself is pending.
	require.NoError(t, vf.RecoverAllPages(ctx))
	assert.Equal(t, u32(4), mustFind(t, vf, 3))

	require.NoError(t, vf.Clear(ctx, false))
	require.NoError(t, vf.FlushAllPages(ctx))
	assert.Equal(t, page.ID(1), mgr.CommittedPages())

	require.NoError(t, vf.Insert(ctx, 9, u32(9)))
	assert.Equal(t, u32(9), mustFind(t, vf, 9))
	size, err := vf.ElementSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), size)
}

func TestVectorFile_SubHeader(t *testing.T) {
	ctx := context.Background()
	mgr, err := page.NewMemoryManager(128)
	require.NoError(t, err)
	vf, err := Create(ctx, mgr, 4)
	require.NoError(t, err)

	sub, err := vf.SubHeader(ctx)
	require.NoError(t, err)
	assert.Len(t, sub, 128-layout.SubHeaderOffset)

	require.NoError(t, vf.MarkSubHeaderDirty(ctx))
	copy(sub, "btree-root=7")
	require.NoError(t, vf.Close(ctx))

	vf, err = Open(ctx, mgr)
	require.NoError(t, err)
	sub, err = vf.SubHeader(ctx)
	require.NoError(t, err)
	assert.Equal(t, "btree-root=7", string(sub[:12]))
}

func TestVectorFile_Closed(t *testing.T) {
	ctx := context.Background()
	vf, _ := newStore(t, 4)
	require.NoError(t, vf.Close(ctx))
	require.NoError(t, vf.Close(ctx))

	assert.ErrorIs(t, vf.Insert(ctx, 1, u32(1)), ErrClosed)
	_, _, err := vf.Find(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = vf.Expunge(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, _, _, err = vf.Next(ctx, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = vf.Count(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, vf.FlushAllPages(ctx), ErrClosed)
	assert.ErrorIs(t, vf.Destroy(ctx), ErrClosed)
}

func TestVectorFile_Destroy(t *testing.T) {
	ctx := context.Background()
	vf, mgr := newStore(t, 4)
	require.NoError(t, vf.Insert(ctx, 1, u32(1)))

	require.NoError(t, vf.Destroy(ctx))
	ok, err := mgr.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Open(ctx, mgr)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVectorFile_ManagerErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk on fire")
	vf, mgr := newStore(t, 4, WithElementsPerPage(4))
	require.NoError(t, vf.Insert(ctx, 1, u32(1)))
	require.NoError(t, vf.FlushAllPages(ctx))

	mgr.FailAfter(page.OpAllocate, 0, boom)
	assert.ErrorIs(t, vf.Insert(ctx, 100, u32(1)), boom)
	mgr.ClearFaults()
	require.NoError(t, vf.RecoverAllPages(ctx))

	mgr.FailAfter(page.OpAttach, 0, boom)
	_, _, err := vf.Find(ctx, 1)
	assert.ErrorIs(t, err, boom)
	mgr.ClearFaults()

	mgr.FailAfter(page.OpFlush, 0, boom)
	assert.ErrorIs(t, vf.FlushAllPages(ctx), boom)
	mgr.ClearFaults()

	assert.Equal(t, u32(1), mustFind(t, vf, 1))
}

func TestVectorFile_FileManager(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "docs.vf")

	mgr, err := page.NewFileManager(path, page.FileOptions{PageSize: 256, ReadCacheBytes: 4096})
	require.NoError(t, err)

	vf, err := Create(ctx, mgr, 16)
	require.NoError(t, err)
	for k := uint32(0); k < 1000; k += 13 {
		require.NoError(t, vf.Insert(ctx, k, value(k, 16)))
	}
	require.NoError(t, vf.Insert(ctx, 5000, value(5000, 16)))
	require.NoError(t, vf.Close(ctx))
	require.NoError(t, mgr.Close())

	mgr, err = page.NewFileManager(path, page.FileOptions{PageSize: 256})
	require.NoError(t, err)
	vf, err = Open(ctx, mgr)
	require.NoError(t, err)

	for k := uint32(0); k < 1000; k += 13 {
		assert.Equal(t, value(k, 16), mustFind(t, vf, k))
	}
	assert.Equal(t, value(5000, 16), mustFind(t, vf, 5000))
	n, err := vf.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(78), n)
	require.NoError(t, vf.Close(ctx))
	require.NoError(t, mgr.Close())

	t.Run("Mapped", func(t *testing.T) {
		mapped, err := page.OpenMapped(path, 256)
		require.NoError(t, err)
		defer mapped.Close()

		ro, err := Open(ctx, mapped)
		require.NoError(t, err)
		assert.Equal(t, value(13, 16), mustFind(t, ro, 13))

		assert.ErrorIs(t, ro.Insert(ctx, 13, value(1, 16)), page.ErrReadOnly)
		assert.ErrorIs(t, ro.Insert(ctx, 9000, value(1, 16)), page.ErrReadOnly)

		report, err := ro.Verify(ctx)
		require.NoError(t, err)
		assert.True(t, report.OK(), report.Problems)
		assert.Equal(t, uint64(78), report.Keys.GetCardinality())
		require.NoError(t, ro.Close(ctx))
	})
}

func TestVectorFile_FailedFlush(t *testing.T) {
	ctx := context.Background()
	committed := layout.Header{Count: 1, MinKey: 0, MaxKey: 0, LastAllocatedPage: 1}

	// failFlush commits key 0, inserts key 40 and fails the flush after the
	// header page was rewritten on disk. The journal and the header page fit
	// the write budget, the new data pages do not.
	failFlush := func(t *testing.T) (*VectorFile, *page.FileManager, *vfs.FaultyFS, string) {
		t.Helper()
		fsys := vfs.NewFaultyFS(nil)
		path := filepath.Join(t.TempDir(), "docs.vf")

		mgr, err := page.NewFileManager(path, page.FileOptions{PageSize: page.MinPageSize, FS: fsys})
		require.NoError(t, err)
		t.Cleanup(func() { _ = mgr.Close() })

		vf, err := Create(ctx, mgr, 4)
		require.NoError(t, err)
		require.NoError(t, vf.Insert(ctx, 0, u32(10)))
		require.NoError(t, vf.FlushAllPages(ctx))
		require.Equal(t, committed, header(t, vf))

		require.NoError(t, vf.Insert(ctx, 40, u32(400)))
		fsys.SetLimit(fsys.Written() + 3*page.MinPageSize)
		require.ErrorIs(t, vf.FlushAllPages(ctx), vfs.ErrInjected)
		require.FileExists(t, path+"-journal")
		return vf, mgr, fsys, path
	}

	t.Run("Recover", func(t *testing.T) {
		vf, _, fsys, path := failFlush(t)

		fsys.ClearRules()
		require.NoError(t, vf.RecoverAllPages(ctx))
		assert.NoFileExists(t, path+"-journal")
		assert.Equal(t, committed, header(t, vf))
		assert.Equal(t, u32(10), mustFind(t, vf, 0))
		assertMissing(t, vf, 40)

		// The store keeps working after the rollback.
		require.NoError(t, vf.Insert(ctx, 40, u32(400)))
		require.NoError(t, vf.FlushAllPages(ctx))
		assert.Equal(t, u32(400), mustFind(t, vf, 40))
	})

	t.Run("Reopen", func(t *testing.T) {
		_, mgr, _, path := failFlush(t)
		require.NoError(t, mgr.Close())

		mgr, err := page.NewFileManager(path, page.FileOptions{PageSize: page.MinPageSize})
		require.NoError(t, err)
		defer mgr.Close()
		assert.NoFileExists(t, path+"-journal")

		vf, err := Open(ctx, mgr)
		require.NoError(t, err)
		assert.Equal(t, committed, header(t, vf))
		assertMissing(t, vf, 40)

		report, err := vf.Verify(ctx)
		require.NoError(t, err)
		assert.True(t, report.OK(), report.Problems)
	})
}
