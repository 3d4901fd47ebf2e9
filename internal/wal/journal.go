package wal

import (
	"bufio"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Journal is the single side-file every write transaction appends its
// dirty pages' new bytes to, as redo records, before those same pages
// are written to the data file. A transaction is durable only once its
// commit marker has been flushed; recovery discards a journal that ends
// without one, and otherwise replays every record onto the data file.
type Journal struct {
	path string
	f    *os.File
	log  *logrus.Logger
}

// Open creates or truncates the journal file, ready for a fresh
// transaction's page images.
func Open(path string, log *logrus.Logger) (*Journal, error) {
	if log == nil {
		log = logrus.New()
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open journal")
	}
	return &Journal{path: path, f: f, log: log}, nil
}

// AppendPageImage writes one page's new bytes, keyed by its PageID, to
// the journal as a redo record.
func (j *Journal) AppendPageImage(pageID uint64, pageBytes []byte) error {
	rec := &Record{Type: RecordPageImage, PageID: pageID, Page: pageBytes}
	_, err := j.f.Write(rec.Encode())
	return err
}

// Commit writes the terminal commit marker and flushes the journal to
// stable storage. Only after this call returns nil is the transaction's
// redo record set considered durable.
func (j *Journal) Commit() error {
	rec := &Record{Type: RecordCommit}
	if _, err := j.f.Write(rec.Encode()); err != nil {
		return err
	}
	return j.Flush()
}

func (j *Journal) Flush() error {
	return j.f.Sync()
}

// Truncate clears the journal back to empty once its pages have been
// written to the data file and that write has itself been flushed.
func (j *Journal) Truncate() error {
	if err := j.f.Truncate(0); err != nil {
		return err
	}
	_, err := j.f.Seek(0, io.SeekStart)
	return err
}

func (j *Journal) Close() error {
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}

// ReadAll parses every complete record in the journal. It tolerates (and
// silently stops at) a torn tail record, since that is exactly the shape
// a crash mid-append leaves behind.
func ReadAll(path string) ([]*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var records []*Record
	for {
		rec, err := ReadRecord(r)
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return records, nil
			}
			return records, err
		}
		records = append(records, rec)
	}
}

// HasCommitMarker reports whether the parsed record stream ends with a
// commit marker, i.e. the transaction that wrote this journal completed.
func HasCommitMarker(records []*Record) bool {
	if len(records) == 0 {
		return false
	}
	return records[len(records)-1].Type == RecordCommit
}
