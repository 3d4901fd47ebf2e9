package wal

import "github.com/sirupsen/logrus"

// PageWriter is the narrow surface recovery needs from the data file,
// kept separate from the storage package so wal has no import cycle back
// to it.
type PageWriter interface {
	WritePageBytes(pageID uint64, data []byte) error
	Sync() error
}

// Recover replays a journal's redo records against the data file if and
// only if the journal ends with a commit marker. A journal with no
// commit marker means the writer crashed before finishing its commit
// protocol; in that case the data file was never touched for this
// transaction and the journal is simply discarded. Replay is idempotent:
// running it twice against the same data file produces the same result,
// since each record is a full page image, not a delta.
func Recover(path string, w PageWriter, log *logrus.Logger) (bool, error) {
	if log == nil {
		log = logrus.New()
	}
	records, err := ReadAll(path)
	if err != nil {
		return false, err
	}
	if !HasCommitMarker(records) {
		if len(records) > 0 {
			log.Warn("journal has no commit marker, discarding incomplete transaction")
		}
		return false, nil
	}

	applied := 0
	for _, rec := range records {
		if rec.Type != RecordPageImage {
			continue
		}
		if err := w.WritePageBytes(rec.PageID, rec.Page); err != nil {
			return false, err
		}
		applied++
	}
	if err := w.Sync(); err != nil {
		return false, err
	}
	log.WithField("pages", applied).Info("recovered committed transaction from journal")
	return true, nil
}
