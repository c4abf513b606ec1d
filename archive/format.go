package archive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	// MagicNumber identifies a store archive ("VFA1").
	MagicNumber = 0x31414656
	// Version is the current archive format version.
	Version = 1

	// HeaderSize is the size of the archive header in bytes.
	HeaderSize = 32

	// DefaultFramePages is the number of pages per frame when Header.FramePages is zero.
	DefaultFramePages = 64
)

var (
	// ErrBadArchive is returned for malformed archives.
	ErrBadArchive = errors.New("archive: malformed archive")
	// ErrChecksum is returned when a header or frame checksum does not match.
	ErrChecksum = errors.New("archive: checksum mismatch")
)

// Compression selects the frame compression algorithm.
type Compression uint8

const (
	// CompressionNone stores frames verbatim.
	CompressionNone Compression = 0
	// CompressionLZ4 compresses frames with LZ4 (fast).
	CompressionLZ4 Compression = 1
	// CompressionZSTD compresses frames with ZSTD (better ratio).
	CompressionZSTD Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// Header describes the pages held by an archive.
//
// Layout (little-endian):
//
//	0  Magic        4  Version
//	8  Compression  9  pad [3]
//	12 PageSize     16 PageCount
//	20 FramePages   24 reserved
//	28 CRC32 of [0:28]
type Header struct {
	Compression Compression
	PageSize    uint32
	PageCount   uint32
	FramePages  uint32
}

// Frames returns the number of frames following the header.
func (h *Header) Frames() uint32 {
	if h.FramePages == 0 {
		return 0
	}
	return (h.PageCount + h.FramePages - 1) / h.FramePages
}

// FrameLen returns the uncompressed size of frame i.
func (h *Header) FrameLen(i uint32) int {
	pages := min(h.FramePages, h.PageCount-i*h.FramePages)
	return int(pages) * int(h.PageSize)
}

// Encode returns the binary form of the header.
func (h *Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], MagicNumber)
	binary.LittleEndian.PutUint32(buf[4:], Version)
	buf[8] = byte(h.Compression)
	binary.LittleEndian.PutUint32(buf[12:], h.PageSize)
	binary.LittleEndian.PutUint32(buf[16:], h.PageCount)
	binary.LittleEndian.PutUint32(buf[20:], h.FramePages)
	binary.LittleEndian.PutUint32(buf[28:], crc32.ChecksumIEEE(buf[:28]))
	return buf
}

// DecodeHeader parses and validates an archive header.
func DecodeHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: header too small", ErrBadArchive)
	}
	if binary.LittleEndian.Uint32(buf[0:]) != MagicNumber {
		return nil, fmt.Errorf("%w: invalid magic number", ErrBadArchive)
	}
	if v := binary.LittleEndian.Uint32(buf[4:]); v != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadArchive, v)
	}
	if crc32.ChecksumIEEE(buf[:28]) != binary.LittleEndian.Uint32(buf[28:]) {
		return nil, fmt.Errorf("%w: header", ErrChecksum)
	}
	h := &Header{
		Compression: Compression(buf[8]),
		PageSize:    binary.LittleEndian.Uint32(buf[12:]),
		PageCount:   binary.LittleEndian.Uint32(buf[16:]),
		FramePages:  binary.LittleEndian.Uint32(buf[20:]),
	}
	if h.Compression > CompressionZSTD {
		return nil, fmt.Errorf("%w: unknown compression %d", ErrBadArchive, h.Compression)
	}
	if h.PageSize == 0 || h.FramePages == 0 {
		return nil, fmt.Errorf("%w: empty geometry", ErrBadArchive)
	}
	return h, nil
}
