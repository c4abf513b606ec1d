package layout

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

const (
	// Magic identifies an initialized vector file header page ("VFL1").
	Magic = 0x314C4656
	// Version is the current header format version.
	Version = 1

	// Size is the size of the fixed header region at the start of page 0.
	Size = 64
	// SubHeaderOffset is where the subclass extension region of page 0 starts.
	SubHeaderOffset = Size

	// FillByte marks every byte of an empty slot.
	FillByte = 0xFF

	// checksummed is the length of the region covered by the CRC.
	checksummed = 40
)

var (
	ErrBadMagic    = errors.New("layout: invalid magic number")
	ErrVersion     = errors.New("layout: unsupported version")
	ErrChecksum    = errors.New("layout: header checksum mismatch")
	ErrInvalid     = errors.New("layout: invalid header field")
	ErrShortBuffer = errors.New("layout: buffer too small for header")
)

// Header is the persistent record stored at the start of page 0.
//
// Layout (little-endian):
//
//	0  Magic             4  Version
//	8  MinAllocatedPage  12 LastAllocatedPage
//	16 MinKey            20 MaxKey
//	24 ElementsPerPage   28 ElementSize
//	32 Count             36 FillByte + 3 pad
//	40 CRC32 of [0:40]   44 reserved [20]byte
type Header struct {
	MinAllocatedPage  uint32
	LastAllocatedPage uint32
	MinKey            uint32
	MaxKey            uint32
	ElementsPerPage   uint32
	ElementSize       uint32 // bytes, multiple of 4
	Count             uint32
	FillByte          byte
}

// New returns the header of an empty store.
func New(elementsPerPage, elementSize uint32) Header {
	return Header{
		ElementsPerPage: elementsPerPage,
		ElementSize:     elementSize,
		FillByte:        FillByte,
	}
}

// Empty reports whether the store holds no keys.
func (h *Header) Empty() bool { return h.Count == 0 }

// Words returns the element size in 32-bit words.
func (h *Header) Words() uint32 { return h.ElementSize / 4 }

// Encode writes the header into the first Size bytes of buf.
func (h *Header) Encode(buf []byte) error {
	if len(buf) < Size {
		return ErrShortBuffer
	}
	binary.LittleEndian.PutUint32(buf[0:], Magic)
	binary.LittleEndian.PutUint32(buf[4:], Version)
	binary.LittleEndian.PutUint32(buf[8:], h.MinAllocatedPage)
	binary.LittleEndian.PutUint32(buf[12:], h.LastAllocatedPage)
	binary.LittleEndian.PutUint32(buf[16:], h.MinKey)
	binary.LittleEndian.PutUint32(buf[20:], h.MaxKey)
	binary.LittleEndian.PutUint32(buf[24:], h.ElementsPerPage)
	binary.LittleEndian.PutUint32(buf[28:], h.ElementSize)
	binary.LittleEndian.PutUint32(buf[32:], h.Count)
	buf[36] = h.FillByte
	clear(buf[37:40])
	binary.LittleEndian.PutUint32(buf[40:], crc32.ChecksumIEEE(buf[:checksummed]))
	clear(buf[44:Size])
	return nil
}

// Decode parses and validates the header at the start of buf.
func Decode(buf []byte) (Header, error) {
	if len(buf) < Size {
		return Header{}, ErrShortBuffer
	}
	if binary.LittleEndian.Uint32(buf[0:]) != Magic {
		return Header{}, ErrBadMagic
	}
	if v := binary.LittleEndian.Uint32(buf[4:]); v != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrVersion, v)
	}
	want := binary.LittleEndian.Uint32(buf[40:])
	if got := crc32.ChecksumIEEE(buf[:checksummed]); got != want {
		return Header{}, fmt.Errorf("%w: expected 0x%08x, got 0x%08x", ErrChecksum, want, got)
	}

	h := Header{
		MinAllocatedPage:  binary.LittleEndian.Uint32(buf[8:]),
		LastAllocatedPage: binary.LittleEndian.Uint32(buf[12:]),
		MinKey:            binary.LittleEndian.Uint32(buf[16:]),
		MaxKey:            binary.LittleEndian.Uint32(buf[20:]),
		ElementsPerPage:   binary.LittleEndian.Uint32(buf[24:]),
		ElementSize:       binary.LittleEndian.Uint32(buf[28:]),
		Count:             binary.LittleEndian.Uint32(buf[32:]),
		FillByte:          buf[36],
	}
	if h.ElementSize == 0 || h.ElementSize%4 != 0 {
		return Header{}, fmt.Errorf("%w: element size %d", ErrInvalid, h.ElementSize)
	}
	if h.ElementsPerPage == 0 {
		return Header{}, fmt.Errorf("%w: elements per page %d", ErrInvalid, h.ElementsPerPage)
	}
	return h, nil
}
