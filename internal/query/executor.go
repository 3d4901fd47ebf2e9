package query

import (
	"github.com/pagefiledb/pagefile/internal/util"
	"github.com/pagefiledb/pagefile/storage"
)

// Resolver is the narrow surface the executor needs from a collection:
// an index lookup by field name, the always-present primary index for
// full scans, and a way to materialize the document behind a DataBlock
// pointer.
type Resolver interface {
	Index(field string) (*storage.SkipList, bool)
	PrimaryIndex() *storage.SkipList
	Doc(dataBlock storage.PageID) (storage.Document, error)
}

// Execute dispatches q to ExecuteIndex when an index can serve it
// directly, or ExecuteFullScan otherwise, and returns the set of matching
// DataBlock page IDs. A leaf query naming a field with no index returns
// util.KindIndexNotFound (Context = the missing field) rather than
// silently falling back to a full scan, so the engine facade can catch
// it, build the index, and retry — the auto-index-creation path §4.F
// describes. Composite nodes propagate whichever sub-query's error
// surfaces first.
func Execute(q *Query, r Resolver) (map[storage.PageID]struct{}, error) {
	switch q.Kind {
	case KindAnd:
		return executeAnd(q, r)
	case KindOr:
		return executeOr(q, r)
	case KindNot:
		return executeNot(q, r)
	case KindAll:
		return ExecuteFullScan(q, r)
	}
	return ExecuteIndex(q, r)
}

// ExecuteIndex serves a leaf query directly from q.Field's skip-list. It
// never falls back to a scan on its own — a missing index is reported as
// an error so the caller decides whether to build the index or scan.
func ExecuteIndex(q *Query, r Resolver) (map[storage.PageID]struct{}, error) {
	idx, ok := r.Index(q.Field)
	if !ok {
		return nil, util.New(util.KindIndexNotFound, q.Field)
	}

	result := make(map[storage.PageID]struct{})
	collect := func(c *storage.Cursor) error {
		for {
			n, ok, err := c.Next()
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			result[n.DataBlock] = struct{}{}
		}
	}

	switch q.Kind {
	case KindEQ:
		c, err := idx.Between(q.Value, q.Value)
		if err != nil {
			return nil, err
		}
		return result, collect(c)
	case KindGT:
		c, err := idx.GT(q.Value)
		if err != nil {
			return nil, err
		}
		return result, collect(c)
	case KindGTE:
		c, err := idx.GTE(q.Value)
		if err != nil {
			return nil, err
		}
		return result, collect(c)
	case KindLT:
		c, err := idx.LT(q.Value)
		if err != nil {
			return nil, err
		}
		return result, collect(c)
	case KindLTE:
		c, err := idx.LTE(q.Value)
		if err != nil {
			return nil, err
		}
		return result, collect(c)
	case KindBetween:
		c, err := idx.Between(q.Value, q.Max)
		if err != nil {
			return nil, err
		}
		return result, collect(c)
	case KindStartsWith:
		c, err := idx.StartsWith(q.Value.Str)
		if err != nil {
			return nil, err
		}
		return result, collect(c)
	case KindIn:
		for _, v := range q.Values {
			c, err := idx.Between(v, v)
			if err != nil {
				return nil, err
			}
			if err := collect(c); err != nil {
				return nil, err
			}
		}
		return result, nil
	default:
		return ExecuteFullScan(q, r)
	}
}

// ExecuteFullScan walks the primary index end to end, decoding every
// document and testing q.Matches against it.
func ExecuteFullScan(q *Query, r Resolver) (map[storage.PageID]struct{}, error) {
	primary := r.PrimaryIndex()
	cur, err := primary.All()
	if err != nil {
		return nil, err
	}

	result := make(map[storage.PageID]struct{})
	for {
		n, ok, err := cur.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		doc, err := r.Doc(n.DataBlock)
		if err != nil {
			return nil, err
		}
		if q.Matches(doc) {
			result[n.DataBlock] = struct{}{}
		}
	}
	return result, nil
}

func executeAnd(q *Query, r Resolver) (map[storage.PageID]struct{}, error) {
	if len(q.Subs) == 0 {
		return ExecuteFullScan(All(), r)
	}
	acc, err := Execute(q.Subs[0], r)
	if err != nil {
		return nil, err
	}
	for _, sub := range q.Subs[1:] {
		next, err := Execute(sub, r)
		if err != nil {
			return nil, err
		}
		for id := range acc {
			if _, ok := next[id]; !ok {
				delete(acc, id)
			}
		}
	}
	return acc, nil
}

func executeOr(q *Query, r Resolver) (map[storage.PageID]struct{}, error) {
	acc := make(map[storage.PageID]struct{})
	for _, sub := range q.Subs {
		next, err := Execute(sub, r)
		if err != nil {
			return nil, err
		}
		for id := range next {
			acc[id] = struct{}{}
		}
	}
	return acc, nil
}

func executeNot(q *Query, r Resolver) (map[storage.PageID]struct{}, error) {
	universe, err := ExecuteFullScan(All(), r)
	if err != nil {
		return nil, err
	}
	excluded, err := Execute(q.Subs[0], r)
	if err != nil {
		return nil, err
	}
	for id := range excluded {
		delete(universe, id)
	}
	return universe, nil
}
