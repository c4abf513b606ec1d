package vecfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/vecfile/archive"
	"github.com/hupe1980/vecfile/blobstore"
	"github.com/hupe1980/vecfile/internal/conv"
	"github.com/hupe1980/vecfile/page"
	"github.com/hupe1980/vecfile/resource"
)

// Backup commits pending pages and writes every page of the store to the
// blob name in store as a compressed archive.
//
// Frames are compressed in batches on the background workers of the
// resource controller set with WithResources, and the archive upload is
// charged against its IO limit.
func (vf *VectorFile) Backup(ctx context.Context, store blobstore.BlobStore, name string) error {
	if err := vf.check(); err != nil {
		return err
	}
	pages, written, err := vf.backup(ctx, store, name)
	vf.opts.logger.LogBackup(ctx, name, pages, written, err)
	return err
}

func (vf *VectorFile) backup(ctx context.Context, store blobstore.BlobStore, name string) (uint32, int64, error) {
	if err := vf.flushAllPages(ctx); err != nil {
		return 0, 0, err
	}
	n, err := vf.mgr.PageCount(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("vecfile: backup: %w", err)
	}
	pageSize, err := conv.IntToUint32(vf.mgr.PageSize())
	if err != nil {
		return 0, 0, fmt.Errorf("vecfile: backup: %w", err)
	}

	w, err := store.Create(ctx, name)
	if err != nil {
		return 0, 0, fmt.Errorf("vecfile: backup: create %s: %w", name, err)
	}
	aw, err := vf.writeArchive(ctx, resource.NewRateLimitedWriter(ctx, w, vf.opts.resources), archive.Header{
		Compression: vf.opts.compression,
		PageSize:    pageSize,
		PageCount:   uint32(n),
		FramePages:  vf.opts.framePages,
	})
	if err == nil {
		err = w.Sync()
	}
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = store.Delete(ctx, name)
		return 0, 0, fmt.Errorf("vecfile: backup %s: %w", name, err)
	}
	return uint32(n), aw.BytesWritten(), nil
}

func (vf *VectorFile) writeArchive(ctx context.Context, w io.Writer, hdr archive.Header) (*archive.Writer, error) {
	bw := bufio.NewWriter(w)
	aw, err := archive.NewWriter(bw, hdr)
	if err != nil {
		return nil, err
	}
	hdr = aw.Header()

	batch := vf.opts.resources.Workers()
	frames := make([][]byte, 0, batch)
	emit := func() error {
		enc, err := archive.EncodeFrames(ctx, vf.opts.resources, frames, hdr.Compression)
		if err != nil {
			return err
		}
		for _, f := range enc {
			if err := aw.WriteFrame(f); err != nil {
				return err
			}
		}
		frames = frames[:0]
		return nil
	}

	for i := range hdr.Frames() {
		frame, err := vf.readFrame(ctx, i*hdr.FramePages, hdr.FrameLen(i))
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
		if len(frames) == batch {
			if err := emit(); err != nil {
				return nil, err
			}
		}
	}
	if len(frames) > 0 {
		if err := emit(); err != nil {
			return nil, err
		}
	}
	if err := aw.Close(); err != nil {
		return nil, err
	}
	return aw, bw.Flush()
}

// readFrame copies the committed pages starting at first into one buffer.
func (vf *VectorFile) readFrame(ctx context.Context, first uint32, size int) ([]byte, error) {
	pageSize := vf.mgr.PageSize()
	frame := make([]byte, size)
	for off := 0; off < size; off += pageSize {
		id := page.ID(first) + page.ID(off/pageSize)
		h, err := vf.mgr.Attach(ctx, id, page.PriorityLow)
		if err != nil {
			return nil, fmt.Errorf("attach page %d: %w", id, err)
		}
		copy(frame[off:off+pageSize], h.Bytes())
		if err := vf.mgr.Detach(h); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// Restore creates a store on mgr from the archive name in store and opens
// it. mgr must not hold a store yet and must use the page size of the
// archive. A failed restore destroys the partially written store.
func Restore(ctx context.Context, store blobstore.BlobStore, name string, mgr page.Manager, optFns ...Option) (*VectorFile, error) {
	opts := applyOptions(optFns)

	pages, err := restore(ctx, store, name, mgr, opts)
	var vf *VectorFile
	if err == nil {
		vf, err = Open(ctx, mgr, optFns...)
		if err != nil {
			if derr := mgr.Destroy(ctx); derr != nil {
				opts.logger.WarnContext(ctx, "destroy after failed restore", "error", derr)
			}
			err = fmt.Errorf("vecfile: restore %s: %w", name, err)
		}
	}
	opts.logger.LogRestore(ctx, name, pages, err)
	if err != nil {
		return nil, err
	}
	return vf, nil
}

func restore(ctx context.Context, store blobstore.BlobStore, name string, mgr page.Manager, opts options) (uint32, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return 0, fmt.Errorf("%w: archive %s: %w", ErrNotFound, name, err)
		}
		return 0, fmt.Errorf("vecfile: restore: open %s: %w", name, err)
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return 0, fmt.Errorf("vecfile: restore: read %s: %w", name, err)
	}
	defer rc.Close()

	ar, err := archive.NewReader(bufio.NewReader(resource.NewRateLimitedReader(ctx, rc, opts.resources)))
	if err != nil {
		return 0, fmt.Errorf("vecfile: restore %s: %w", name, err)
	}
	hdr := ar.Header()
	if int(hdr.PageSize) != mgr.PageSize() {
		return 0, fmt.Errorf("vecfile: restore %s: archive page size %d, manager page size %d",
			name, hdr.PageSize, mgr.PageSize())
	}
	if hdr.PageCount == 0 {
		return 0, fmt.Errorf("vecfile: restore %s: %w: no pages", name, archive.ErrBadArchive)
	}

	if err := mgr.Create(ctx); err != nil {
		return 0, fmt.Errorf("vecfile: restore: %w", err)
	}
	if err := copyPages(ctx, ar, mgr, opts.flushInterval); err != nil {
		_ = mgr.RecoverAll(ctx)
		if derr := mgr.Destroy(ctx); derr != nil {
			opts.logger.WarnContext(ctx, "destroy after failed restore", "error", derr)
		}
		return 0, fmt.Errorf("vecfile: restore %s: %w", name, err)
	}
	return hdr.PageCount, nil
}

// copyPages appends every archived page to mgr, committing every
// flushInterval pages and once at the end.
func copyPages(ctx context.Context, ar *archive.Reader, mgr page.Manager, flushInterval int) error {
	pageSize := mgr.PageSize()
	allocated := 0
	for {
		frame, err := ar.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		for off := 0; off < len(frame); off += pageSize {
			h, err := mgr.Allocate(ctx)
			if err != nil {
				return err
			}
			copy(h.Bytes(), frame[off:off+pageSize])
			if err := mgr.Detach(h); err != nil {
				return err
			}
			allocated++
			if allocated%flushInterval == 0 {
				if err := mgr.FlushAll(ctx); err != nil {
					return err
				}
			}
		}
	}
	return mgr.FlushAll(ctx)
}
