// Package query implements the query algebra and its two execution
// strategies: ExecuteIndex walks a field's skip-list directly when one
// exists, ExecuteFullScan falls back to evaluating the predicate against
// every document reachable from the collection's primary "_id" index.
package query

import (
	"strings"

	"github.com/pagefiledb/pagefile/storage"
)

// Kind is the tagged-sum discriminant for a Query node.
type Kind int

const (
	KindEQ Kind = iota
	KindGT
	KindGTE
	KindLT
	KindLTE
	KindBetween
	KindStartsWith
	KindIn
	KindAll
	KindAnd
	KindOr
	KindNot
)

// Query is a single node in the query algebra. Leaf kinds (EQ..In, All)
// carry Field/Value/Values; And/Or/Not carry Subs.
type Query struct {
	Kind   Kind
	Field  string
	Value  storage.Value
	Max    storage.Value
	Values []storage.Value
	Subs   []*Query
}

func EQ(field string, v storage.Value) *Query         { return &Query{Kind: KindEQ, Field: field, Value: v} }
func GT(field string, v storage.Value) *Query         { return &Query{Kind: KindGT, Field: field, Value: v} }
func GTE(field string, v storage.Value) *Query        { return &Query{Kind: KindGTE, Field: field, Value: v} }
func LT(field string, v storage.Value) *Query         { return &Query{Kind: KindLT, Field: field, Value: v} }
func LTE(field string, v storage.Value) *Query        { return &Query{Kind: KindLTE, Field: field, Value: v} }
func Between(field string, min, max storage.Value) *Query {
	return &Query{Kind: KindBetween, Field: field, Value: min, Max: max}
}
func StartsWith(field, prefix string) *Query {
	return &Query{Kind: KindStartsWith, Field: field, Value: storage.String(prefix)}
}
func In(field string, vs ...storage.Value) *Query { return &Query{Kind: KindIn, Field: field, Values: vs} }
func All() *Query                                  { return &Query{Kind: KindAll} }
func And(subs ...*Query) *Query                     { return &Query{Kind: KindAnd, Subs: subs} }
func Or(subs ...*Query) *Query                      { return &Query{Kind: KindOr, Subs: subs} }
func Not(sub *Query) *Query                         { return &Query{Kind: KindNot, Subs: []*Query{sub}} }

// IsIndexable reports whether q is a leaf kind ExecuteIndex can serve
// directly from a skip-list, as opposed to All or a set-algebra
// combinator.
func (q *Query) IsIndexable() bool {
	switch q.Kind {
	case KindAll, KindAnd, KindOr, KindNot:
		return false
	default:
		return true
	}
}

// Matches evaluates q directly against a decoded document, the path
// ExecuteFullScan uses when no index backs q's field.
func (q *Query) Matches(doc storage.Document) bool {
	switch q.Kind {
	case KindAll:
		return true
	case KindAnd:
		for _, s := range q.Subs {
			if !s.Matches(doc) {
				return false
			}
		}
		return true
	case KindOr:
		for _, s := range q.Subs {
			if s.Matches(doc) {
				return true
			}
		}
		return false
	case KindNot:
		return !q.Subs[0].Matches(doc)
	}

	v, ok := doc.Field(q.Field)
	if !ok {
		return false
	}
	switch q.Kind {
	case KindEQ:
		return storage.Compare(v, q.Value) == 0
	case KindGT:
		return storage.Compare(v, q.Value) > 0
	case KindGTE:
		return storage.Compare(v, q.Value) >= 0
	case KindLT:
		return storage.Compare(v, q.Value) < 0
	case KindLTE:
		return storage.Compare(v, q.Value) <= 0
	case KindBetween:
		return storage.Compare(v, q.Value) >= 0 && storage.Compare(v, q.Max) <= 0
	case KindStartsWith:
		return v.Tag == storage.TagString && strings.HasPrefix(v.Str, q.Value.Str)
	case KindIn:
		for _, cand := range q.Values {
			if storage.Compare(v, cand) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}
