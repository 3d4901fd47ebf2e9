// Package transaction implements the write path's commit protocol:
// collect every dirty page the cache is holding, write each one's new
// (post-modification) bytes to the journal as a redo record, flush the
// journal, write the commit marker, flush again, only then apply the
// dirty pages to the data file, flush once more, and truncate the
// journal. A crash before the commit marker is flushed leaves the data
// file untouched, since nothing is written to it until after the marker
// — recovery just discards the partial journal. A crash after the
// marker leaves a journal recovery can safely (re-)apply to the data
// file to finish the transaction; replay is idempotent since every
// record is a full page image.
package transaction

import (
	"github.com/pagefiledb/pagefile/internal/wal"
	"github.com/pagefiledb/pagefile/storage"
)

// Transaction is a thin handle over the shared cache/pager/journal; it
// carries no state of its own beyond which of those it talks to, since
// the cache's dirty set is itself the record of what this write touched.
type Transaction struct {
	cache   *storage.Cache
	pager   *storage.Pager
	journal *wal.Journal
}

func Begin(cache *storage.Cache, pager *storage.Pager, journal *wal.Journal) *Transaction {
	return &Transaction{cache: cache, pager: pager, journal: journal}
}

// Commit runs the full commit protocol and returns once the transaction
// is durable.
func (t *Transaction) Commit() error {
	dirty := t.cache.DirtyPages()

	for _, p := range dirty {
		if err := t.journal.AppendPageImage(uint64(p.ID), p.Data[:]); err != nil {
			return err
		}
	}
	if err := t.journal.Flush(); err != nil {
		return err
	}
	if err := t.journal.Commit(); err != nil {
		return err
	}

	if err := t.cache.FlushDirty(); err != nil {
		return err
	}

	return t.journal.Truncate()
}

// Rollback discards the transaction's in-memory changes by dropping the
// cache, so the next read goes back to disk. Because no commit marker was
// ever written, a crash during an uncommitted transaction and an explicit
// Rollback leave the data file in the same state.
func (t *Transaction) Rollback() error {
	t.cache.Clear()
	return t.journal.Truncate()
}
