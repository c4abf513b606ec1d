package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Reader reads the frames of an archive in order.
type Reader struct {
	r     io.Reader
	hdr   *Header
	frame uint32
	fh    [frameHeaderSize]byte
}

// NewReader reads and validates the archive header from r.
func NewReader(r io.Reader) (*Reader, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated header", ErrBadArchive)
		}
		return nil, err
	}
	hdr, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	return &Reader{r: r, hdr: hdr}, nil
}

// Header returns the archive header.
func (r *Reader) Header() Header { return *r.hdr }

// Next returns the uncompressed bytes of the next frame, or io.EOF after the
// last frame.
func (r *Reader) Next() ([]byte, error) {
	if r.frame >= r.hdr.Frames() {
		return nil, io.EOF
	}
	if _, err := io.ReadFull(r.r, r.fh[:]); err != nil {
		return nil, r.truncated(err)
	}
	size := binary.LittleEndian.Uint32(r.fh[0:])
	csize := binary.LittleEndian.Uint32(r.fh[4:])
	sum := binary.LittleEndian.Uint32(r.fh[8:])

	if want := r.hdr.FrameLen(r.frame); int(size) != want {
		return nil, fmt.Errorf("%w: frame %d holds %d bytes, want %d", ErrBadArchive, r.frame, size, want)
	}

	plen := size
	if csize != 0 {
		plen = csize
	}
	payload := make([]byte, plen)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, r.truncated(err)
	}

	data := make([]byte, size)
	if err := decodeFrame(payload, data, csize != 0, r.hdr.Compression); err != nil {
		return nil, fmt.Errorf("frame %d: %w", r.frame, err)
	}
	if crc32.ChecksumIEEE(data) != sum {
		return nil, fmt.Errorf("%w: frame %d", ErrChecksum, r.frame)
	}
	r.frame++
	return data, nil
}

func (r *Reader) truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: frame %d truncated", ErrBadArchive, r.frame)
	}
	return err
}
