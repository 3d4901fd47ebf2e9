// Package pagefile implements an embedded, single-file, schemaless
// document database.
//
// A Database owns one data file split into fixed-size pages (storage.Page)
// managed by a page cache and allocator (storage.Cache). Collections are
// stored as chains of Data/Extend pages (storage.DataBlock) indexed by
// persisted skip lists (storage.SkipList); the "_id" index is always
// present and backs full-collection scans when a query names no other
// indexed field. Writes go through a single-file journal
// (internal/wal) with a terminal commit marker, so a crash mid-write
// either recovers the whole transaction or none of it.
package pagefile

import (
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configures an opened database. Fields mirror the shape the
// embedded-engine examples in this codebase's lineage converge on:
// a path, a lock timeout, a read-only switch, a starting file size, and
// an in-memory page budget.
type Options struct {
	// Path to the data file.
	Path string

	// Timeout bounds how long Acquire* waits for the locker before
	// returning KindLockTimeout.
	Timeout time.Duration

	// ReadOnly opens the pager without write access; any mutating
	// operation fails immediately.
	ReadOnly bool

	// InitialSize, in pages, the data file is grown to on first creation.
	InitialSize int

	// CacheSize bounds how many pages the cache is expected to hold
	// before the caller should consider closing and reopening the
	// database; the cache itself does not evict (the engine has no
	// caching-policy component), so this is advisory bookkeeping exposed
	// via Database.Stats.CachedPageCount.
	CacheSize int

	// Journal enables the write-ahead journal. Disabling it is only
	// useful for throwaway/test databases that accept losing durability.
	Journal bool

	// Compress enables snappy compression of DataBlock payload bytes.
	Compress bool

	// Logger receives structured lifecycle events. A default logrus
	// logger is used if nil.
	Logger *logrus.Logger

	// AutoID selects which generator Collection.Insert uses for documents
	// with no "_id" field. Defaults to IDObjectId.
	AutoID IDKind
}

func (o *Options) idKind() IDKind { return o.AutoID }

// DefaultOptions returns sane defaults for a database rooted at path.
func DefaultOptions(path string) *Options {
	return &Options{
		Path:        path,
		Timeout:     2 * time.Second,
		InitialSize: 8,
		CacheSize:   1000,
		Journal:     true,
	}
}

func (o *Options) journalPath() string {
	return filepath.Join(filepath.Dir(o.Path), filepath.Base(o.Path)+".journal")
}
