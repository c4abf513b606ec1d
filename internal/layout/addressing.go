package layout

import (
	"encoding/binary"
	"math"
)

// emptyWord is the first word of an unoccupied slot.
const emptyWord = 0xFFFFFFFF

// ElementsPerPage returns how many elements of elementSize bytes fit into a
// page of pageCapacity bytes.
func ElementsPerPage(pageCapacity int, elementSize uint32) uint32 {
	if elementSize == 0 || pageCapacity <= 0 {
		return 0
	}
	return uint32(pageCapacity) / elementSize
}

// PageOf returns the data page holding key. Page 0 is the header page.
func PageOf(key, elementsPerPage uint32) uint32 {
	return key/elementsPerPage + 1
}

// OffsetOf returns the word offset of key within its page.
func OffsetOf(key, elementsPerPage, elementSize uint32) uint32 {
	return (key % elementsPerPage) * (elementSize / 4)
}

// ByteOffset returns the byte offset of key within its page.
func ByteOffset(key, elementsPerPage, elementSize uint32) int {
	return int(OffsetOf(key, elementsPerPage, elementSize)) * 4
}

// FirstKey returns the smallest key stored on data page p.
func FirstKey(p, elementsPerPage uint32) uint32 {
	return (p - 1) * elementsPerPage
}

// LastKey returns the largest key stored on data page p. The last page of
// the key space may extend past 2^32-1, so the result is clamped.
func LastKey(p, elementsPerPage uint32) uint32 {
	last := uint64(FirstKey(p, elementsPerPage)) + uint64(elementsPerPage) - 1
	return uint32(min(last, math.MaxUint32))
}

// Occupied reports whether the slot starting at slot[0] holds a value.
func Occupied(slot []byte) bool {
	return binary.LittleEndian.Uint32(slot) != emptyWord
}

// Reserved reports whether value begins with the empty-slot pattern and so
// cannot be stored.
func Reserved(value []byte) bool {
	return len(value) >= 4 && !Occupied(value)
}

// Fill sets every byte of b to fill.
func Fill(b []byte, fill byte) {
	for i := range b {
		b[i] = fill
	}
}
