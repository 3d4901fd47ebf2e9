// Package wal implements the engine's journal: a side file of redo
// records (each a dirty page's new bytes) written before a
// transaction's dirty pages are applied to the data file, closed out by
// a single commit-marker record. Recovery replays the journal only when
// the commit marker is present; otherwise the partial journal is
// discarded and the data file is left as it was before the crash.
package wal

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pagefiledb/pagefile/internal/util"
	"github.com/pkg/errors"
)

// RecordType distinguishes a page image record (a page's new bytes) from
// the terminal commit marker.
type RecordType uint8

const (
	RecordPageImage RecordType = iota + 1
	RecordCommit
)

const magic uint32 = 0x4C4A4652 // "LJFR"

// recordHeaderSize covers magic(4) type(1) reserved(3) pageID(8) len(4)
// crc(4), i.e. everything before the variable-length page payload.
const recordHeaderSize = 4 + 1 + 3 + 8 + 4 + 4

// Record is one journal entry: either a page's full new-bytes image,
// keyed by PageID, or a commit marker with no payload.
type Record struct {
	Type   RecordType
	PageID uint64
	Page   []byte
}

// Encode serializes r with a CRC32 over the page ID, the length, the CRC
// slot (taken as zero) and the payload; the magic and type bytes are not
// covered. This follows the framing the pack's WAL implementations use.
func (r *Record) Encode() []byte {
	total := recordHeaderSize + len(r.Page)
	buf := make([]byte, total)

	binary.LittleEndian.PutUint32(buf[0:4], magic)
	buf[4] = byte(r.Type)
	binary.LittleEndian.PutUint64(buf[8:16], r.PageID)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(r.Page)))
	copy(buf[recordHeaderSize:], r.Page)

	crc := crc32.ChecksumIEEE(buf[8:])
	binary.LittleEndian.PutUint32(buf[20:24], crc)
	return buf
}

// ReadRecord decodes a single record from r, tolerating a torn tail
// (an incomplete final record left by a crash mid-write) by returning
// io.ErrUnexpectedEOF, which callers treat as "stop, discard the rest".
func ReadRecord(r *bufio.Reader) (*Record, error) {
	hdr := make([]byte, recordHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}

	if binary.LittleEndian.Uint32(hdr[0:4]) != magic {
		return nil, errors.Wrap(util.New(util.KindFileCorrupted, "bad journal magic"), "read record")
	}
	typ := RecordType(hdr[4])
	pageID := binary.LittleEndian.Uint64(hdr[8:16])
	payloadLen := binary.LittleEndian.Uint32(hdr[16:20])
	wantCRC := binary.LittleEndian.Uint32(hdr[20:24])

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, io.ErrUnexpectedEOF
	}

	crcInput := make([]byte, 0, 16+len(payload))
	crcInput = append(crcInput, hdr[8:20]...)
	crcInput = append(crcInput, 0, 0, 0, 0)
	crcInput = append(crcInput, payload...)
	gotCRC := crc32.ChecksumIEEE(crcInput)
	if gotCRC != wantCRC {
		return nil, io.ErrUnexpectedEOF
	}

	return &Record{Type: typ, PageID: pageID, Page: payload}, nil
}
