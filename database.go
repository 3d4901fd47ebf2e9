package pagefile

import (
	"sort"
	"sync"
	"time"

	"github.com/pagefiledb/pagefile/internal/lock"
	"github.com/pagefiledb/pagefile/internal/query"
	"github.com/pagefiledb/pagefile/internal/transaction"
	"github.com/pagefiledb/pagefile/internal/util"
	"github.com/pagefiledb/pagefile/internal/wal"
	"github.com/pagefiledb/pagefile/storage"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Database is the engine's facade: one open data file, its journal, its
// locker, and the collections loaded from its header page's directory.
type Database struct {
	opts  *Options
	pager *storage.Pager
	cache *storage.Cache

	journal *wal.Journal
	locker  *lock.Locker
	log     *logrus.Logger

	mu          sync.Mutex
	header      *storage.HeaderPage
	collections map[string]*Collection
	closed      bool

	watcher *lock.ChangeWatcher
}

// Open opens (creating if absent) the data file named by opts.Path,
// replays any committed-but-unflushed journal left by a prior crash, and
// returns a ready Database.
func Open(opts *Options) (*Database, error) {
	if opts == nil {
		return nil, util.New(util.KindInvalidFormat, "nil Options")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}

	pager, err := storage.OpenPager(opts.Path, opts.ReadOnly)
	if err != nil {
		return nil, err
	}

	if opts.InitialSize > 0 && !opts.ReadOnly {
		if err := pager.Preallocate(int64(opts.InitialSize) * storage.PageSize); err != nil {
			pager.Close()
			return nil, err
		}
	}

	if opts.Journal && !opts.ReadOnly {
		recovered, err := wal.Recover(opts.journalPath(), pager, log)
		if err != nil {
			pager.Close()
			return nil, errors.Wrap(err, "replay journal")
		}
		if recovered {
			log.Info("replayed committed transaction found in journal")
		}
	}

	cache := storage.NewCache(pager, log)

	journal, err := wal.Open(opts.journalPath(), log)
	if err != nil {
		pager.Close()
		return nil, err
	}

	db := &Database{
		opts:        opts,
		pager:       pager,
		cache:       cache,
		journal:     journal,
		locker:      lock.New(),
		log:         log,
		collections: make(map[string]*Collection),
	}
	db.watcher = db.locker.NewWatcher()

	if pager.NextPageID() == 0 {
		if err := db.bootstrap(); err != nil {
			return nil, err
		}
	} else {
		p, err := cache.Get(0)
		if err != nil {
			return nil, err
		}
		db.header = storage.DecodeHeaderPage(p)
		if !db.header.IsValid() {
			return nil, util.New(util.KindInvalidDatabase, opts.Path)
		}
		cache.SetEmptyHead(db.header.FreeEmptyPageID)
	}

	log.WithField("path", opts.Path).Info("database opened")
	return db, nil
}

func (db *Database) bootstrap() error {
	page, id, err := db.cache.NewPage(storage.PageTypeHeader)
	if err != nil {
		return err
	}
	if id != 0 {
		return util.New(util.KindInvalidDatabase, "header page must be page 0")
	}
	db.header = storage.NewHeaderPage()
	db.header.Encode(page)
	return db.commitLocked()
}

// commitLocked runs the commit protocol. Readers learn of the change when
// the caller releases the locker's exclusive lock, which bumps the change
// counter. Callers must already hold db.mu and, for real write
// operations, the locker's exclusive lock.
func (db *Database) commitLocked() error {
	if !db.opts.Journal {
		return db.cache.FlushDirty()
	}
	txn := transaction.Begin(db.cache, db.pager, db.journal)
	return txn.Commit()
}

// withWriteLock runs fn under the locker's exclusive lock and commits
// afterward if fn succeeds, rolling back otherwise.
func (db *Database) withWriteLock(fn func() error) error {
	if db.opts.ReadOnly {
		return util.New(util.KindInvalidDatabase, "database is read-only")
	}
	release, err := db.locker.AcquireExclusive(db.timeout())
	if err != nil {
		return err
	}
	defer release()

	db.mu.Lock()
	defer db.mu.Unlock()

	if err := fn(); err != nil {
		txn := transaction.Begin(db.cache, db.pager, db.journal)
		_ = txn.Rollback()
		return err
	}
	return db.commitLocked()
}

// withReadLock runs fn under the locker's shared lock, first checking the
// writer's change counter and clearing the page cache if it moved since
// this database last looked (AvoidDirtyRead) — otherwise a reader could
// see a mix of pre- and post-commit pages cached from a previous read.
func (db *Database) withReadLock(fn func() error) error {
	release, err := db.locker.AcquireShared(db.timeout())
	if err != nil {
		return err
	}
	defer release()

	db.watcher.AvoidDirtyRead(db.cache.Clear)
	return fn()
}

func (db *Database) timeout() time.Duration {
	if db.opts.Timeout <= 0 {
		return 30 * time.Second
	}
	return db.opts.Timeout
}

// CreateCollection creates a new, empty collection named name.
func (db *Database) CreateCollection(name string) (*Collection, error) {
	var c *Collection
	err := db.withWriteLock(func() error {
		if _, exists := db.header.Collections[name]; exists {
			existing, err := openCollection(db, name, db.header.Collections[name])
			c = existing
			return err
		}
		created, err := createCollection(db, name)
		if err != nil {
			return err
		}
		db.header.Collections[name] = created.pageID
		if err := db.saveHeader(); err != nil {
			return err
		}
		db.collections[name] = created
		c = created
		db.log.WithField("collection", name).Info("created collection")
		return nil
	})
	return c, err
}

// GetCollection returns the named collection, creating it if absent.
func (db *Database) GetCollection(name string) (*Collection, error) {
	db.mu.Lock()
	if c, ok := db.collections[name]; ok {
		db.mu.Unlock()
		return c, nil
	}
	pageID, exists := db.header.Collections[name]
	db.mu.Unlock()
	if !exists {
		return db.CreateCollection(name)
	}

	c, err := openCollection(db, name, pageID)
	if err != nil {
		return nil, err
	}
	db.mu.Lock()
	db.collections[name] = c
	db.mu.Unlock()
	return c, nil
}

// DropCollection removes a collection from the header directory and
// returns its collection page to the empty-page list. Its data, extend
// and index pages are not reclaimed.
func (db *Database) DropCollection(name string) error {
	return db.withWriteLock(func() error {
		pageID, exists := db.header.Collections[name]
		if !exists {
			return util.New(util.KindIndexNotFound, name)
		}
		delete(db.header.Collections, name)
		delete(db.collections, name)
		if err := db.saveHeader(); err != nil {
			return err
		}
		db.log.WithField("collection", name).Info("dropped collection")
		return db.cache.DeletePage(pageID, false)
	})
}

// RenameCollection renames an existing collection in the header
// directory.
func (db *Database) RenameCollection(oldName, newName string) error {
	return db.withWriteLock(func() error {
		pageID, exists := db.header.Collections[oldName]
		if !exists {
			return util.New(util.KindIndexNotFound, oldName)
		}
		if _, taken := db.header.Collections[newName]; taken {
			return util.New(util.KindInvalidFormat, "collection name already in use")
		}
		delete(db.header.Collections, oldName)
		db.header.Collections[newName] = pageID
		if c, ok := db.collections[oldName]; ok {
			delete(db.collections, oldName)
			c.name = newName
			db.collections[newName] = c
		}
		return db.saveHeader()
	})
}

// ListCollections returns every collection name known to the header
// directory.
func (db *Database) ListCollections() []string {
	db.mu.Lock()
	defer db.mu.Unlock()
	names := make([]string, 0, len(db.header.Collections))
	for name := range db.header.Collections {
		names = append(names, name)
	}
	return names
}

func (db *Database) saveHeader() error {
	db.header.FreeEmptyPageID = db.cache.EmptyHead()
	db.header.LastPageID = db.pager.NextPageID()
	p, err := db.cache.Get(0)
	if err != nil {
		return err
	}
	db.header.Encode(p)
	return nil
}

// Insert inserts doc into the named collection under the write lock.
func (db *Database) Insert(collection string, doc storage.Document) (storage.Value, error) {
	c, err := db.GetCollection(collection)
	if err != nil {
		return storage.Value{}, err
	}
	var id storage.Value
	err = db.withWriteLock(func() error {
		var insertErr error
		id, insertErr = c.Insert(doc)
		return insertErr
	})
	return id, err
}

// Update replaces a document by "_id" under the write lock.
func (db *Database) Update(collection string, doc storage.Document) error {
	c, err := db.GetCollection(collection)
	if err != nil {
		return err
	}
	return db.withWriteLock(func() error { return c.Update(doc) })
}

// InsertMany inserts docs in batches of bufferSize documents, committing
// after each full batch. This gives "at-least-once" batch durability: if
// a later batch fails partway through, its transaction rolls back and
// its documents are not counted, but every batch that already committed
// stays on disk.
func (db *Database) InsertMany(collection string, docs []storage.Document, bufferSize int) ([]storage.Value, error) {
	if bufferSize <= 0 {
		bufferSize = len(docs)
	}
	c, err := db.GetCollection(collection)
	if err != nil {
		return nil, err
	}

	ids := make([]storage.Value, 0, len(docs))
	for start := 0; start < len(docs); start += bufferSize {
		end := start + bufferSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]
		batchIDs := make([]storage.Value, 0, len(batch))

		err := db.withWriteLock(func() error {
			for _, doc := range batch {
				id, insertErr := c.Insert(doc)
				if insertErr != nil {
					return insertErr
				}
				batchIDs = append(batchIDs, id)
			}
			return nil
		})
		if err != nil {
			return ids, err
		}
		ids = append(ids, batchIDs...)
	}
	return ids, nil
}

// UpdateMany updates docs in batches of bufferSize, with the same
// at-least-once batch durability as InsertMany.
func (db *Database) UpdateMany(collection string, docs []storage.Document, bufferSize int) error {
	if bufferSize <= 0 {
		bufferSize = len(docs)
	}
	c, err := db.GetCollection(collection)
	if err != nil {
		return err
	}

	for start := 0; start < len(docs); start += bufferSize {
		end := start + bufferSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		err := db.withWriteLock(func() error {
			for _, doc := range batch {
				if updateErr := c.Update(doc); updateErr != nil {
					return updateErr
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// runQuery executes q against the named collection under the read lock
// and passes the matching DataBlock page IDs to fn, still under that
// same lock so the documents they point at cannot be concurrently
// deleted. If q names a field with no index, the KindIndexNotFound error
// ExecuteIndex raises is caught here: the index is built under the write
// lock and the query is retried, once per distinct missing field.
func (db *Database) runQuery(collection string, q *query.Query, fn func(*Collection, map[storage.PageID]struct{}) error) error {
	c, err := db.GetCollection(collection)
	if err != nil {
		return err
	}

	tried := make(map[string]bool)
	for {
		err := db.withReadLock(func() error {
			ids, execErr := c.executeQuery(q)
			if execErr != nil {
				return execErr
			}
			return fn(c, ids)
		})
		if err == nil {
			return nil
		}

		var uerr *util.Error
		if !errors.As(err, &uerr) || uerr.Kind != util.KindIndexNotFound {
			return err
		}
		field := uerr.Context
		if tried[field] {
			return err
		}
		tried[field] = true

		if buildErr := db.withWriteLock(func() error { return c.EnsureIndex(field, false) }); buildErr != nil {
			return buildErr
		}
	}
}

// Find returns every document in collection matching q, sorted
// ascending by "_id", skipping the first skip results and bounded to at
// most limit (limit <= 0 means unbounded).
func (db *Database) Find(collection string, q *query.Query, skip, limit int) ([]storage.Document, error) {
	var docs []storage.Document
	err := db.runQuery(collection, q, func(c *Collection, ids map[storage.PageID]struct{}) error {
		docs = make([]storage.Document, 0, len(ids))
		for dataBlock := range ids {
			doc, err := storage.ReadDataBlock(db.cache, dataBlock)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		a, _ := docs[i].ID()
		b, _ := docs[j].ID()
		return storage.Compare(a, b) < 0
	})

	if skip > 0 {
		if skip >= len(docs) {
			return nil, nil
		}
		docs = docs[skip:]
	}
	if limit > 0 && limit < len(docs) {
		docs = docs[:limit]
	}
	return docs, nil
}

// Count returns the number of documents in collection matching q.
func (db *Database) Count(collection string, q *query.Query) (int, error) {
	var n int
	err := db.runQuery(collection, q, func(_ *Collection, ids map[storage.PageID]struct{}) error {
		n = len(ids)
		return nil
	})
	return n, err
}

// Exists reports whether collection has any document matching q.
func (db *Database) Exists(collection string, q *query.Query) (bool, error) {
	var found bool
	err := db.runQuery(collection, q, func(_ *Collection, ids map[storage.PageID]struct{}) error {
		found = len(ids) > 0
		return nil
	})
	return found, err
}

// Min returns the smallest value indexed for field in collection.
func (db *Database) Min(collection, field string) (storage.Value, bool, error) {
	c, err := db.GetCollection(collection)
	if err != nil {
		return storage.Value{}, false, err
	}
	return c.Min(field)
}

// Max returns the largest value indexed for field in collection.
func (db *Database) Max(collection, field string) (storage.Value, bool, error) {
	c, err := db.GetCollection(collection)
	if err != nil {
		return storage.Value{}, false, err
	}
	return c.Max(field)
}

// EnsureIndex builds a secondary index on field if one does not already
// exist.
func (db *Database) EnsureIndex(collection, field string, unique bool) error {
	c, err := db.GetCollection(collection)
	if err != nil {
		return err
	}
	return db.withWriteLock(func() error { return c.EnsureIndex(field, unique) })
}

// DropIndex removes a secondary index from collection.
func (db *Database) DropIndex(collection, field string) error {
	c, err := db.GetCollection(collection)
	if err != nil {
		return err
	}
	return db.withWriteLock(func() error { return c.DropIndex(field) })
}

// Delete removes every document in collection matching q, using the same
// auto-index-creation path as Find, and returns how many were removed.
func (db *Database) Delete(collection string, q *query.Query) (int, error) {
	var ids []storage.Value
	err := db.runQuery(collection, q, func(_ *Collection, blocks map[storage.PageID]struct{}) error {
		ids = make([]storage.Value, 0, len(blocks))
		for dataBlock := range blocks {
			doc, err := storage.ReadDataBlock(db.cache, dataBlock)
			if err != nil {
				return err
			}
			id, _ := doc.ID()
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	c, err := db.GetCollection(collection)
	if err != nil {
		return 0, err
	}

	deleted := 0
	err = db.withWriteLock(func() error {
		for _, id := range ids {
			if delErr := c.Delete(id); delErr != nil {
				return delErr
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Stats is a point-in-time snapshot of the database's size and cache
// bookkeeping.
type Stats struct {
	// PageCount is the total number of pages the data file currently
	// occupies (storage.Pager.NextPageID).
	PageCount int

	// CachedPageCount is how many pages are currently resident in the
	// in-memory cache. Compare against Options.CacheSize: the cache
	// never evicts on its own, so a CachedPageCount persistently above
	// CacheSize is the signal to call Dump and reopen, or otherwise
	// bound memory growth.
	CachedPageCount int

	// CollectionCount is the number of collections in the header
	// directory.
	CollectionCount int
}

// Stats reports the database's current page/cache/collection
// bookkeeping.
func (db *Database) Stats() Stats {
	db.mu.Lock()
	defer db.mu.Unlock()
	return Stats{
		PageCount:       int(db.pager.NextPageID()),
		CachedPageCount: db.cache.CachedPageCount(),
		CollectionCount: len(db.header.Collections),
	}
}

// Dump forces every dirty page to disk and truncates the journal,
// equivalent to committing an empty write transaction — useful for
// checkpointing a read-heavy database between bursts of writes.
func (db *Database) Dump() error {
	return db.withWriteLock(func() error { return nil })
}

// Close flushes any pending state and releases the data file and
// journal handles.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	if err := db.cache.FlushDirty(); err != nil {
		return err
	}
	if err := db.journal.Close(); err != nil {
		return err
	}
	db.log.WithField("path", db.opts.Path).Info("database closed")
	return db.pager.Close()
}
