package archive

import (
	"fmt"
	"io"
)

// Writer writes an archive: the header followed by encoded frames.
type Writer struct {
	w       io.Writer
	hdr     Header
	frames  uint32
	written int64
}

// NewWriter writes the archive header to w.
func NewWriter(w io.Writer, hdr Header) (*Writer, error) {
	if hdr.FramePages == 0 {
		hdr.FramePages = DefaultFramePages
	}
	n, err := w.Write(hdr.Encode())
	if err != nil {
		return nil, fmt.Errorf("archive: write header: %w", err)
	}
	return &Writer{w: w, hdr: hdr, written: int64(n)}, nil
}

// Header returns the archive header.
func (w *Writer) Header() Header { return w.hdr }

// WriteFrame appends a frame produced by EncodeFrame.
func (w *Writer) WriteFrame(frame []byte) error {
	if w.frames >= w.hdr.Frames() {
		return fmt.Errorf("archive: frame %d beyond page count", w.frames)
	}
	n, err := w.w.Write(frame)
	w.written += int64(n)
	if err != nil {
		return fmt.Errorf("archive: write frame %d: %w", w.frames, err)
	}
	w.frames++
	return nil
}

// Close checks that every frame announced by the header was written.
// It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.frames != w.hdr.Frames() {
		return fmt.Errorf("archive: wrote %d of %d frames", w.frames, w.hdr.Frames())
	}
	return nil
}

// BytesWritten returns the total archive bytes written.
func (w *Writer) BytesWritten() int64 {
	return w.written
}
