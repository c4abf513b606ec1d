package page

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

var journalMagic = [4]byte{'V', 'F', 'J', '1'}

const journalHeaderSize = 16

var errBadJournal = errors.New("page: bad journal")

// journal is the undo record of one commit: the page count before the commit
// and the pre-images of the committed pages it changes.
//
// Layout (little-endian): magic, page size, committed count, entry count,
// entries of (id, page bytes), CRC32 of everything before it.
type journal struct {
	pageSize  int
	committed ID
	pages     []pageImage
}

func (j *journal) encode() []byte {
	buf := make([]byte, journalHeaderSize, journalHeaderSize+len(j.pages)*(4+j.pageSize)+4)
	copy(buf, journalMagic[:])
	binary.LittleEndian.PutUint32(buf[4:], uint32(j.pageSize))
	binary.LittleEndian.PutUint32(buf[8:], uint32(j.committed))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(j.pages)))
	for _, pg := range j.pages {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(pg.id))
		buf = append(buf, pg.buf...)
	}
	return binary.LittleEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
}

func decodeJournal(data []byte, pageSize int) (*journal, error) {
	if len(data) < journalHeaderSize+4 || [4]byte(data[:4]) != journalMagic {
		return nil, errBadJournal
	}
	body := data[:len(data)-4]
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(data[len(data)-4:]) {
		return nil, fmt.Errorf("%w: checksum mismatch", errBadJournal)
	}
	if got := int(binary.LittleEndian.Uint32(body[4:])); got != pageSize {
		return nil, fmt.Errorf("%w: page size %d, want %d", errBadJournal, got, pageSize)
	}

	n := int(binary.LittleEndian.Uint32(body[12:]))
	if len(body) != journalHeaderSize+n*(4+pageSize) {
		return nil, fmt.Errorf("%w: %d bytes for %d pages", errBadJournal, len(body), n)
	}
	j := &journal{
		pageSize:  pageSize,
		committed: ID(binary.LittleEndian.Uint32(body[8:])),
		pages:     make([]pageImage, n),
	}
	off := journalHeaderSize
	for i := range j.pages {
		id := ID(binary.LittleEndian.Uint32(body[off:]))
		off += 4
		j.pages[i] = pageImage{id: id, buf: body[off : off+pageSize]}
		off += pageSize
	}
	return j, nil
}
