package badger

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dgraph-io/badger/v4"
	"github.com/hupe1980/vecfile/blobstore"
)

// DefaultChunkSize is the size of the values a blob is split into.
const DefaultChunkSize = 1 << 20

const (
	metaPrefix  = "m:"
	chunkPrefix = "c:"
	seqKey      = "s:generation"
	metaSize    = 20 // generation, size, chunk count
)

var errBlobClosed = errors.New("badger: blob already closed")

// Option configures a Store.
type Option func(*Store)

// WithChunkSize sets the chunk size for blobs written from now on.
func WithChunkSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// Store implements blobstore.BlobStore on a Badger database.
//
// A blob is a metadata record plus chunks keyed by a per-write generation.
// New chunks are written before the metadata points at them, so readers see
// either the old or the new blob, never a mix.
type Store struct {
	db        *badger.DB
	seq       *badger.Sequence
	owned     bool
	chunkSize int
}

// New returns a store over an open database. Close does not close db.
func New(db *badger.DB, optFns ...Option) (*Store, error) {
	seq, err := db.GetSequence([]byte(seqKey), 64)
	if err != nil {
		return nil, fmt.Errorf("badger: sequence: %w", err)
	}
	s := &Store{db: db, seq: seq, chunkSize: DefaultChunkSize}
	for _, fn := range optFns {
		fn(s)
	}
	return s, nil
}

// Open opens (or creates) a database in dir and returns a store owning it.
func Open(dir string, optFns ...Option) (*Store, error) {
	return open(badger.DefaultOptions(dir).WithLogger(nil), optFns)
}

// OpenInMemory returns a store over a fresh in-memory database.
func OpenInMemory(optFns ...Option) (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), optFns)
}

func open(opts badger.Options, optFns []Option) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s, err := New(db, optFns...)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close releases the generation sequence and closes the database if the
// store opened it.
func (s *Store) Close() error {
	err := s.seq.Release()
	if s.owned {
		if cerr := s.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

type meta struct {
	gen    uint64
	size   int64
	chunks uint32
}

func (m meta) encode() []byte {
	buf := make([]byte, metaSize)
	binary.BigEndian.PutUint64(buf[0:], m.gen)
	binary.BigEndian.PutUint64(buf[8:], uint64(m.size))
	binary.BigEndian.PutUint32(buf[16:], m.chunks)
	return buf
}

func decodeMeta(buf []byte) (meta, error) {
	if len(buf) != metaSize {
		return meta{}, fmt.Errorf("badger: metadata is %d bytes, want %d", len(buf), metaSize)
	}
	return meta{
		gen:    binary.BigEndian.Uint64(buf[0:]),
		size:   int64(binary.BigEndian.Uint64(buf[8:])),
		chunks: binary.BigEndian.Uint32(buf[16:]),
	}, nil
}

func metaKey(name string) []byte {
	return []byte(metaPrefix + name)
}

// chunkKey is "c:" name 0x00 generation index, big-endian so chunks sort in
// order.
func chunkKey(name string, gen uint64, i uint32) []byte {
	key := make([]byte, 0, len(chunkPrefix)+len(name)+13)
	key = append(key, chunkPrefix...)
	key = append(key, name...)
	key = append(key, 0)
	key = binary.BigEndian.AppendUint64(key, gen)
	return binary.BigEndian.AppendUint32(key, i)
}

func getMeta(txn *badger.Txn, name string) (meta, bool, error) {
	item, err := txn.Get(metaKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return meta{}, false, nil
	}
	if err != nil {
		return meta{}, false, err
	}
	var m meta
	err = item.Value(func(val []byte) error {
		m, err = decodeMeta(val)
		return err
	})
	return m, err == nil, err
}

// Open reads the blob from a single snapshot.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		m, ok, err := getMeta(txn, name)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %s", blobstore.ErrNotFound, name)
		}
		data = make([]byte, 0, m.size)
		for i := range m.chunks {
			item, err := txn.Get(chunkKey(name, m.gen, i))
			if err != nil {
				return fmt.Errorf("badger: %s chunk %d: %w", name, i, err)
			}
			if err := item.Value(func(val []byte) error {
				data = append(data, val...)
				return nil
			}); err != nil {
				return err
			}
		}
		if int64(len(data)) != m.size {
			return fmt.Errorf("badger: %s holds %d bytes, want %d", name, len(data), m.size)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &blob{data: data}, nil
}

// Create buffers writes and stores the blob on Close.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &writableBlob{store: s, ctx: ctx, name: name}, nil
}

// Put stores data under name, replacing any previous blob.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gen, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("badger: next generation: %w", err)
	}

	next := meta{gen: gen, size: int64(len(data))}
	wb := s.db.NewWriteBatch()
	for off := 0; off < len(data); off += s.chunkSize {
		end := min(off+s.chunkSize, len(data))
		if err := wb.Set(chunkKey(name, gen, next.chunks), bytes.Clone(data[off:end])); err != nil {
			wb.Cancel()
			return fmt.Errorf("badger: put %s: %w", name, err)
		}
		next.chunks++
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("badger: put %s: %w", name, err)
	}

	var prev meta
	var replaced bool
	err = s.db.Update(func(txn *badger.Txn) error {
		var err error
		prev, replaced, err = getMeta(txn, name)
		if err != nil {
			return err
		}
		return txn.Set(metaKey(name), next.encode())
	})
	if err != nil {
		_ = s.dropChunks(name, next)
		return fmt.Errorf("badger: put %s: %w", name, err)
	}
	if replaced {
		return s.dropChunks(name, prev)
	}
	return nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var prev meta
	var found bool
	err := s.db.Update(func(txn *badger.Txn) error {
		var err error
		prev, found, err = getMeta(txn, name)
		if err != nil || !found {
			return err
		}
		return txn.Delete(metaKey(name))
	})
	if err != nil {
		return fmt.Errorf("badger: delete %s: %w", name, err)
	}
	if found {
		return s.dropChunks(name, prev)
	}
	return nil
}

func (s *Store) dropChunks(name string, m meta) error {
	wb := s.db.NewWriteBatch()
	for i := range m.chunks {
		if err := wb.Delete(chunkKey(name, m.gen, i)); err != nil {
			wb.Cancel()
			return err
		}
	}
	return wb.Flush()
}

// List returns the sorted names of the blobs with the given prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = metaKey(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			names = append(names, string(it.Item().Key()[len(metaPrefix):]))
		}
		return nil
	})
	return names, err
}

type blob struct {
	data []byte
}

func (b *blob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("badger: negative offset")
	}
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *blob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	size := int64(len(b.data))
	if off < 0 || off > size {
		return nil, io.EOF
	}
	end := min(off+length, size)
	return io.NopCloser(bytes.NewReader(b.data[off:end])), nil
}

func (b *blob) Bytes() ([]byte, error) { return b.data, nil }

func (b *blob) Size() int64 { return int64(len(b.data)) }

func (b *blob) Close() error { return nil }

type writableBlob struct {
	store  *Store
	ctx    context.Context
	name   string
	buf    bytes.Buffer
	closed bool
}

func (w *writableBlob) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errBlobClosed
	}
	return w.buf.Write(p)
}

func (w *writableBlob) Sync() error { return nil }

func (w *writableBlob) Close() error {
	if w.closed {
		return errBlobClosed
	}
	w.closed = true
	return w.store.Put(w.ctx, w.name, w.buf.Bytes())
}
