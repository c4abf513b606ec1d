package page

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hupe1980/vecfile/internal/cache"
	"github.com/hupe1980/vecfile/internal/conv"
	vfs "github.com/hupe1980/vecfile/internal/fs"
	"github.com/hupe1980/vecfile/resource"
)

var _ Manager = (*FileManager)(nil)

// DefaultPageSize is the page size used when FileOptions.PageSize is zero.
const DefaultPageSize = 4096

const journalSuffix = "-journal"

// FileOptions configures a FileManager.
type FileOptions struct {
	// PageSize is the usable bytes per page. Defaults to DefaultPageSize.
	PageSize int
	// FS is the file system. Defaults to the local file system.
	FS vfs.FileSystem
	// Resources limits resident memory and flush IO. Optional.
	Resources *resource.Controller
	// ReadCacheBytes sizes the clean-page read cache. Zero disables it.
	ReadCacheBytes int64
	// NoSync skips fsync on FlushAll.
	NoSync bool
}

// FileManager stores the pages of one store in a single file.
//
// Page i occupies bytes [i*PageSize, (i+1)*PageSize). Pending changes are kept
// in memory. FlushAll first saves the committed images it is about to
// overwrite or truncate in a rollback journal next to the file (path +
// "-journal"), then updates the file in place. A commit that fails or is cut
// short by a crash is undone by RecoverAll or by the next NewFileManager.
type FileManager struct {
	*pool
	path  string
	cache *cache.PageCache
}

// NewFileManager opens the store file at path if it exists.
// The file is created by Create.
func NewFileManager(path string, opts FileOptions) (*FileManager, error) {
	if opts.PageSize == 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.FS == nil {
		opts.FS = vfs.Default
	}

	be := &fileBackend{
		fsys:     opts.FS,
		path:     path,
		pageSize: opts.PageSize,
		rc:       opts.Resources,
		noSync:   opts.NoSync,
	}

	var c *cache.PageCache
	if opts.ReadCacheBytes > 0 {
		c = cache.NewPageCache(opts.ReadCacheBytes, opts.Resources)
	}

	ok, err := be.exists()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := be.open(); err != nil {
			return nil, err
		}
		if err := be.rollback(); err != nil {
			_ = be.close()
			return nil, fmt.Errorf("page: roll back %s: %w", path, err)
		}
	}

	p, err := newPool(be, opts.PageSize, opts.Resources, c)
	if err != nil {
		_ = be.close()
		return nil, err
	}
	return &FileManager{pool: p, path: path, cache: c}, nil
}

// Path returns the store file path.
func (m *FileManager) Path() string { return m.path }

// CacheStats returns read cache hits and misses.
func (m *FileManager) CacheStats() (hits, misses int64) {
	if m.cache == nil {
		return 0, 0
	}
	return m.cache.Stats()
}

type fileBackend struct {
	fsys     vfs.FileSystem
	path     string
	pageSize int
	rc       *resource.Controller
	noSync   bool
	f        vfs.File
}

func (b *fileBackend) open() error {
	f, err := b.fsys.OpenFile(b.path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("page: open %s: %w", b.path, err)
	}
	b.f = f
	return nil
}

func (b *fileBackend) create() error {
	if err := b.fsys.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}
	f, err := b.fsys.OpenFile(b.path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("page: create %s: %w", b.path, err)
	}
	b.f = f
	// A journal without its data file belongs to a destroyed store.
	if err := b.fsys.Remove(b.journalPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (b *fileBackend) exists() (bool, error) {
	_, err := b.fsys.Stat(b.path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (b *fileBackend) count() (ID, error) {
	info, err := b.fsys.Stat(b.path)
	if err != nil {
		return 0, err
	}
	n, err := conv.Int64ToUint32(info.Size() / int64(b.pageSize))
	if err != nil {
		return 0, fmt.Errorf("page: %s: %w", b.path, err)
	}
	return ID(n), nil
}

func (b *fileBackend) offset(id ID) int64 {
	return int64(id) * int64(b.pageSize)
}

func (b *fileBackend) read(id ID, buf []byte) error {
	n, err := b.f.ReadAt(buf, b.offset(id))
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return err
}

// commit writes an undo journal holding the pre-image of every committed
// page the commit overwrites or truncates, then updates the data file in
// place. Removing the journal is the commit point. A failed update is rolled
// back from the journal; if that fails too the journal stays behind and the
// next rollback, or the next NewFileManager, replays it.
func (b *fileBackend) commit(ctx context.Context, old, n ID, pages []pageImage) error {
	if err := b.writeJournal(old, n, pages); err != nil {
		_ = b.fsys.Remove(b.journalPath())
		return fmt.Errorf("journal: %w", err)
	}
	err := b.apply(ctx, old, n, pages)
	if err == nil {
		err = b.fsys.Remove(b.journalPath())
	}
	if err != nil {
		if rerr := b.rollback(); rerr != nil {
			return errors.Join(err, fmt.Errorf("roll back: %w", rerr))
		}
		return err
	}
	return nil
}

func (b *fileBackend) apply(ctx context.Context, old, n ID, pages []pageImage) error {
	for _, pg := range pages {
		if err := b.rc.AcquireIO(ctx, len(pg.buf)); err != nil {
			return err
		}
		if _, err := b.f.WriteAt(pg.buf, b.offset(pg.id)); err != nil {
			return fmt.Errorf("write %d: %w", pg.id, err)
		}
	}
	if n < old {
		if err := b.f.Truncate(b.offset(n)); err != nil {
			return fmt.Errorf("truncate to %d: %w", n, err)
		}
	}
	return b.sync(b.f)
}

func (b *fileBackend) journalPath() string { return b.path + journalSuffix }

func (b *fileBackend) writeJournal(old, n ID, pages []pageImage) error {
	var undo []ID
	for _, pg := range pages {
		if pg.id < old {
			undo = append(undo, pg.id)
		}
	}
	for id := n; id < old; id++ {
		undo = append(undo, id)
	}

	j := journal{pageSize: b.pageSize, committed: old, pages: make([]pageImage, len(undo))}
	for i, id := range undo {
		buf := make([]byte, b.pageSize)
		if err := b.read(id, buf); err != nil {
			return fmt.Errorf("read %d: %w", id, err)
		}
		j.pages[i] = pageImage{id: id, buf: buf}
	}

	f, err := b.fsys.OpenFile(b.journalPath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt(j.encode(), 0); err != nil {
		_ = f.Close()
		return err
	}
	if err := b.sync(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// rollback restores the pre-images of an outstanding journal. A journal that
// does not decode was torn before it was synced, so the data file was never
// touched and the journal is simply removed.
func (b *fileBackend) rollback() error {
	data, err := b.readJournal()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	j, err := decodeJournal(data, b.pageSize)
	if err != nil {
		return b.fsys.Remove(b.journalPath())
	}
	for _, pg := range j.pages {
		if _, err := b.f.WriteAt(pg.buf, b.offset(pg.id)); err != nil {
			return fmt.Errorf("restore %d: %w", pg.id, err)
		}
	}
	if err := b.f.Truncate(b.offset(j.committed)); err != nil {
		return fmt.Errorf("truncate to %d: %w", j.committed, err)
	}
	if err := b.sync(b.f); err != nil {
		return err
	}
	return b.fsys.Remove(b.journalPath())
}

func (b *fileBackend) readJournal() ([]byte, error) {
	f, err := b.fsys.OpenFile(b.journalPath(), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	data := make([]byte, info.Size())
	if _, err := f.ReadAt(data, 0); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return data, nil
}

func (b *fileBackend) sync(f vfs.File) error {
	if b.noSync {
		return nil
	}
	return f.Sync()
}

func (b *fileBackend) destroy() error {
	if b.f != nil {
		_ = b.f.Close()
		b.f = nil
	}
	if err := b.fsys.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := b.fsys.Remove(b.journalPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (b *fileBackend) close() error {
	if b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}
