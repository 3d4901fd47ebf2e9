package pagefile

import (
	"sync"

	"github.com/pagefiledb/pagefile/internal/query"
	"github.com/pagefiledb/pagefile/internal/util"
	"github.com/pagefiledb/pagefile/storage"
	"github.com/pkg/errors"
)

// Collection manages one named set of documents: its primary "_id"
// index (always present, always unique), any secondary indexes named by
// EnsureIndex, and the Data/Extend page chains its documents live in.
type Collection struct {
	db     *Database
	name   string
	pageID storage.PageID

	mu      sync.RWMutex
	meta    *storage.CollectionPage
	indexes map[string]*storage.SkipList // field -> open skip list
}

func openCollection(db *Database, name string, pageID storage.PageID) (*Collection, error) {
	p, err := db.cache.Get(pageID)
	if err != nil {
		return nil, err
	}
	meta := storage.DecodeCollectionPage(p)

	c := &Collection{db: db, name: name, pageID: pageID, meta: meta, indexes: make(map[string]*storage.SkipList)}
	for _, idx := range meta.Indexes {
		sl, err := storage.OpenSkipList(db.cache, idx.RootPageID)
		if err != nil {
			return nil, err
		}
		c.indexes[idx.Field] = sl
	}
	return c, nil
}

func createCollection(db *Database, name string) (*Collection, error) {
	page, pageID, err := db.cache.NewPage(storage.PageTypeCollection)
	if err != nil {
		return nil, err
	}

	primary, primaryID, err := storage.NewSkipList(db.cache, true)
	if err != nil {
		return nil, err
	}

	meta := storage.NewCollectionPage(name)
	meta.Indexes = []storage.IndexDef{{Field: "_id", RootPageID: primaryID, Unique: true}}
	meta.Encode(page)

	c := &Collection{
		db:      db,
		name:    name,
		pageID:  pageID,
		meta:    meta,
		indexes: map[string]*storage.SkipList{"_id": primary},
	}
	return c, nil
}

func (c *Collection) saveMeta() error {
	p, err := c.db.cache.Get(c.pageID)
	if err != nil {
		return err
	}
	c.meta.Encode(p)
	return nil
}

// Insert assigns an auto-id (per db.opts' id kind) if the document lacks
// one, writes its DataBlock, and inserts it into every index defined on
// the collection, including "_id".
func (c *Collection) Insert(doc storage.Document) (storage.Value, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, hasID := doc.ID()
	if !hasID {
		var err error
		id, err = assignAutoID(c.db.opts.idKind(), c.indexes["_id"])
		if err != nil {
			return storage.Value{}, err
		}
		doc.SetID(id)
	}

	dataBlock, err := storage.WriteDataBlock(c.db.cache, doc, c.db.opts.Compress, &c.meta.FreeDataHead)
	if err != nil {
		return storage.Value{}, err
	}

	for field, idx := range c.indexes {
		key := id
		if field != "_id" {
			v, ok := doc.Field(field)
			if !ok {
				continue
			}
			key = v
		}
		if err := idx.Insert(key, dataBlock); err != nil {
			return storage.Value{}, err
		}
	}

	c.meta.DocumentCount++
	if err := c.saveMeta(); err != nil {
		return storage.Value{}, err
	}

	c.db.log.WithFields(map[string]interface{}{"collection": c.name}).Debug("inserted document")
	return id, nil
}

// FindByID returns the document whose "_id" equals id.
func (c *Collection) FindByID(id storage.Value) (storage.Document, error) {
	var doc storage.Document
	err := c.db.withReadLock(func() error {
		c.mu.RLock()
		defer c.mu.RUnlock()

		dataBlock, found, err := c.indexes["_id"].FindEQ(id)
		if err != nil {
			return err
		}
		if !found {
			return util.New(util.KindIndexNotFound, "document not found")
		}
		doc, err = storage.ReadDataBlock(c.db.cache, dataBlock)
		return err
	})
	return doc, err
}

// Update rewrites the document with the same "_id" as doc in place. The
// DataBlock chain is rewritten at its existing PageID (UpdateDataBlock),
// so the "_id" index entry never needs to move; only secondary indexes
// whose field value actually changed are touched.
func (c *Collection) Update(doc storage.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, hasID := doc.ID()
	if !hasID {
		return util.New(util.KindInvalidFormat, "update requires _id")
	}

	dataBlock, found, err := c.indexes["_id"].FindEQ(id)
	if err != nil {
		return err
	}
	if !found {
		return util.New(util.KindIndexNotFound, "document not found")
	}
	oldDoc, err := storage.ReadDataBlock(c.db.cache, dataBlock)
	if err != nil {
		return err
	}

	if err := storage.UpdateDataBlock(c.db.cache, dataBlock, doc, c.db.opts.Compress, &c.meta.FreeDataHead); err != nil {
		return err
	}

	for field, idx := range c.indexes {
		if field == "_id" {
			continue
		}
		oldVal, oldOK := oldDoc.Field(field)
		newVal, newOK := doc.Field(field)
		if oldOK && newOK && storage.Compare(oldVal, newVal) == 0 {
			continue
		}
		if oldOK {
			if err := idx.Delete(oldVal, dataBlock); err != nil {
				return err
			}
		}
		if newOK {
			if err := idx.Insert(newVal, dataBlock); err != nil {
				return err
			}
		}
	}

	c.db.log.WithField("collection", c.name).Debug("updated document")
	return c.saveMeta()
}

// Delete removes the document with the given "_id" from every index and
// releases its DataBlock chain.
func (c *Collection) Delete(id storage.Value) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dataBlock, found, err := c.indexes["_id"].FindEQ(id)
	if err != nil {
		return err
	}
	if !found {
		return util.New(util.KindIndexNotFound, "document not found")
	}
	doc, err := storage.ReadDataBlock(c.db.cache, dataBlock)
	if err != nil {
		return err
	}

	for field, idx := range c.indexes {
		if field == "_id" {
			if err := idx.Delete(id, dataBlock); err != nil {
				return err
			}
			continue
		}
		if v, ok := doc.Field(field); ok {
			if err := idx.Delete(v, dataBlock); err != nil {
				return err
			}
		}
	}

	if err := storage.DeleteDataBlock(c.db.cache, dataBlock, &c.meta.FreeDataHead); err != nil {
		return err
	}
	c.meta.DocumentCount--
	return c.saveMeta()
}

// EnsureIndex creates a secondary index on field if one does not already
// exist, backfilling it from every document currently in the collection.
func (c *Collection) EnsureIndex(field string, unique bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.indexes[field]; ok {
		return nil
	}
	if len(c.meta.Indexes) >= storage.MaxIndexesPerCollection {
		return util.New(util.KindCollectionLimitSize, "index table full")
	}

	sl, rootID, err := storage.NewSkipList(c.db.cache, unique)
	if err != nil {
		return err
	}

	cur, err := c.indexes["_id"].All()
	if err != nil {
		return err
	}
	for {
		n, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		doc, err := storage.ReadDataBlock(c.db.cache, n.DataBlock)
		if err != nil {
			return err
		}
		if v, ok := doc.Field(field); ok {
			if err := sl.Insert(v, n.DataBlock); err != nil {
				return err
			}
		}
	}

	c.indexes[field] = sl
	c.meta.Indexes = append(c.meta.Indexes, storage.IndexDef{Field: field, RootPageID: rootID, Unique: unique})
	c.db.log.WithField("field", field).Info("built secondary index")
	return c.saveMeta()
}

// DropIndex removes a secondary index. Dropping "_id" is rejected.
func (c *Collection) DropIndex(field string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if field == "_id" {
		return util.New(util.KindInvalidFormat, "cannot drop primary index")
	}
	if _, ok := c.indexes[field]; !ok {
		return util.New(util.KindIndexNotFound, field)
	}
	delete(c.indexes, field)

	kept := make([]storage.IndexDef, 0, len(c.meta.Indexes))
	for _, idx := range c.meta.Indexes {
		if idx.Field != field {
			kept = append(kept, idx)
		}
	}
	c.meta.Indexes = kept
	return c.saveMeta()
}

// Count returns the number of documents in the collection.
func (c *Collection) Count() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta.DocumentCount
}

// Exists reports whether a document with the given "_id" is present.
func (c *Collection) Exists(id storage.Value) (bool, error) {
	var found bool
	err := c.db.withReadLock(func() error {
		c.mu.RLock()
		defer c.mu.RUnlock()
		var err error
		_, found, err = c.indexes["_id"].FindEQ(id)
		return err
	})
	return found, err
}

// Min returns the smallest key indexed for field (O(1) via the skip
// list's HEAD.Forward[0]).
func (c *Collection) Min(field string) (storage.Value, bool, error) {
	var key storage.Value
	var found bool
	err := c.db.withReadLock(func() error {
		c.mu.RLock()
		defer c.mu.RUnlock()
		idx, ok := c.indexes[field]
		if !ok {
			return util.New(util.KindIndexNotFound, field)
		}
		n, ok, err := idx.Min()
		if err != nil || !ok {
			return err
		}
		key, found = n.Key, true
		return nil
	})
	return key, found, err
}

// Max returns the largest key indexed for field (O(1) via TAIL.Backward).
func (c *Collection) Max(field string) (storage.Value, bool, error) {
	var key storage.Value
	var found bool
	err := c.db.withReadLock(func() error {
		c.mu.RLock()
		defer c.mu.RUnlock()
		idx, ok := c.indexes[field]
		if !ok {
			return util.New(util.KindIndexNotFound, field)
		}
		n, ok, err := idx.Max()
		if err != nil || !ok {
			return err
		}
		key, found = n.Key, true
		return nil
	})
	return key, found, err
}

// executeQuery runs q against the collection's indexes under c's own
// lock and returns the matching DataBlock page IDs. Callers are
// responsible for whatever database-level lock surrounds the call;
// Database.runQuery is the one that also retries through auto-index
// creation when q names an unindexed field.
func (c *Collection) executeQuery(q *query.Query) (map[storage.PageID]struct{}, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return query.Execute(q, c)
}

// Find executes q and returns every matching document in no particular
// order, falling back to a full scan (never erroring) when q names an
// unindexed field. Database.Find is the public entry point that instead
// builds the missing index, and additionally sorts and pages results.
func (c *Collection) Find(q *query.Query) ([]storage.Document, error) {
	var docs []storage.Document
	err := c.db.withReadLock(func() error {
		ids, err := c.executeQuery(q)
		if err != nil {
			var uerr *util.Error
			if errors.As(err, &uerr) && uerr.Kind == util.KindIndexNotFound {
				ids, err = query.ExecuteFullScan(q, c)
			}
			if err != nil {
				return err
			}
		}

		docs = make([]storage.Document, 0, len(ids))
		for dataBlock := range ids {
			doc, err := storage.ReadDataBlock(c.db.cache, dataBlock)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	return docs, err
}

// Index implements query.Resolver.
func (c *Collection) Index(field string) (*storage.SkipList, bool) {
	idx, ok := c.indexes[field]
	return idx, ok
}

// PrimaryIndex implements query.Resolver.
func (c *Collection) PrimaryIndex() *storage.SkipList {
	return c.indexes["_id"]
}

// Doc implements query.Resolver.
func (c *Collection) Doc(dataBlock storage.PageID) (storage.Document, error) {
	return storage.ReadDataBlock(c.db.cache, dataBlock)
}
