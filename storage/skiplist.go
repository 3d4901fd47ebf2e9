package storage

import (
	"encoding/binary"
	"math/rand"
	"strings"

	"github.com/pagefiledb/pagefile/internal/util"
)

// MaxLevel bounds the number of forward pointers any IndexNode carries.
// P(height = k) = 2^-k, capped here — the same geometric draw every
// skip-list implementation in the literature uses.
const MaxLevel = 32

// IndexRoot is the fixed small header of an index: the HEAD/TAIL sentinel
// page IDs, the list's current height, and its free-index-page list.
type IndexRoot struct {
	Head     PageID
	Tail     PageID
	Height   int
	FreeHead PageID
	Unique   bool
}

func (r *IndexRoot) Encode(p *Page) {
	body := p.Body()
	binary.LittleEndian.PutUint64(body[0:], uint64(r.Head))
	binary.LittleEndian.PutUint64(body[8:], uint64(r.Tail))
	binary.LittleEndian.PutUint32(body[16:], uint32(r.Height))
	binary.LittleEndian.PutUint64(body[20:], uint64(r.FreeHead))
	if r.Unique {
		body[28] = 1
	} else {
		body[28] = 0
	}
	p.SetPageType(PageTypeIndex)
	p.MarkDirty()
}

func DecodeIndexRoot(p *Page) *IndexRoot {
	body := p.Body()
	return &IndexRoot{
		Head:     PageID(binary.LittleEndian.Uint64(body[0:])),
		Tail:     PageID(binary.LittleEndian.Uint64(body[8:])),
		Height:   int(binary.LittleEndian.Uint32(body[16:])),
		FreeHead: PageID(binary.LittleEndian.Uint64(body[20:])),
		Unique:   body[28] != 0,
	}
}

// IndexNode is one skip-list entry: its key, the DataBlock it points at,
// the forward pointer array (one PageID per level it participates in),
// and a single backward pointer at level 0.
type IndexNode struct {
	Key       Value
	DataBlock PageID
	Forward   []PageID
	Backward  PageID
	sentinel  bool // HEAD or TAIL carry no usable key
}

func (n *IndexNode) Encode(p *Page) {
	body := p.Body()
	off := 0
	if n.sentinel {
		body[off] = 1
	} else {
		body[off] = 0
	}
	off++
	keyBytes := Encode(n.Key)
	binary.LittleEndian.PutUint32(body[off:], uint32(len(keyBytes)))
	off += 4
	copy(body[off:], keyBytes)
	off += len(keyBytes)

	binary.LittleEndian.PutUint64(body[off:], uint64(n.DataBlock))
	off += 8
	binary.LittleEndian.PutUint64(body[off:], uint64(n.Backward))
	off += 8
	body[off] = byte(len(n.Forward))
	off++
	for _, f := range n.Forward {
		binary.LittleEndian.PutUint64(body[off:], uint64(f))
		off += 8
	}
	p.SetPageType(PageTypeIndex)
	p.SetFreeBytes(uint16(len(body) - off))
	p.MarkDirty()
}

func DecodeIndexNode(p *Page) *IndexNode {
	body := p.Body()
	off := 0
	sentinel := body[off] != 0
	off++
	keyLen := int(binary.LittleEndian.Uint32(body[off:]))
	off += 4
	key, _, _ := Decode(body[off : off+keyLen])
	off += keyLen

	n := &IndexNode{Key: key, sentinel: sentinel}
	n.DataBlock = PageID(binary.LittleEndian.Uint64(body[off:]))
	off += 8
	n.Backward = PageID(binary.LittleEndian.Uint64(body[off:]))
	off += 8
	levels := int(body[off])
	off++
	n.Forward = make([]PageID, levels)
	for i := 0; i < levels; i++ {
		n.Forward[i] = PageID(binary.LittleEndian.Uint64(body[off:]))
		off += 8
	}
	return n
}

// SkipList is a persisted, multi-level, ordered index over a single
// collection field. Every node lives in its own Index page; HEAD and TAIL
// are themselves nodes with no key, bracketing the list at level
// root.Height on both ends.
type SkipList struct {
	cache  *Cache
	rootID PageID
	root   *IndexRoot
}

// NewSkipList allocates a root, HEAD and TAIL page for a brand-new index.
func NewSkipList(cache *Cache, unique bool) (*SkipList, PageID, error) {
	rootPage, rootID, err := cache.NewPage(PageTypeIndex)
	if err != nil {
		return nil, 0, err
	}

	headPage, headID, err := cache.NewPage(PageTypeIndex)
	if err != nil {
		return nil, 0, err
	}
	tailPage, tailID, err := cache.NewPage(PageTypeIndex)
	if err != nil {
		return nil, 0, err
	}

	head := &IndexNode{sentinel: true, Forward: make([]PageID, MaxLevel), Backward: NilPageID}
	for i := range head.Forward {
		head.Forward[i] = tailID
	}
	tail := &IndexNode{sentinel: true, Forward: make([]PageID, MaxLevel), Backward: headID}

	head.Encode(headPage)
	tail.Encode(tailPage)

	root := &IndexRoot{Head: headID, Tail: tailID, Height: 1, Unique: unique}
	root.Encode(rootPage)

	return &SkipList{cache: cache, rootID: rootID, root: root}, rootID, nil
}

// OpenSkipList reattaches to an existing persisted skip list.
func OpenSkipList(cache *Cache, rootID PageID) (*SkipList, error) {
	p, err := cache.Get(rootID)
	if err != nil {
		return nil, err
	}
	return &SkipList{cache: cache, rootID: rootID, root: DecodeIndexRoot(p)}, nil
}

func randomLevel() int {
	level := 1
	for level < MaxLevel && rand.Int31n(2) == 0 {
		level++
	}
	return level
}

func (s *SkipList) node(id PageID) (*IndexNode, error) {
	p, err := s.cache.Get(id)
	if err != nil {
		return nil, err
	}
	return DecodeIndexNode(p), nil
}

func (s *SkipList) saveNode(id PageID, n *IndexNode) error {
	p, err := s.cache.Get(id)
	if err != nil {
		return err
	}
	n.Encode(p)
	return nil
}

func (s *SkipList) saveRoot() error {
	p, err := s.cache.Get(s.rootID)
	if err != nil {
		return err
	}
	s.root.Encode(p)
	return nil
}

// search walks down from HEAD at the current height, returning, for each
// level, the PageID of the rightmost node whose key is < target (the
// classic skip-list "update" trail), plus the first node whose key is >=
// target (or TAIL).
func (s *SkipList) search(target Value) ([]PageID, PageID, error) {
	update := make([]PageID, s.root.Height)
	cur := s.root.Head
	for level := s.root.Height - 1; level >= 0; level-- {
		for {
			curNode, err := s.node(cur)
			if err != nil {
				return nil, 0, err
			}
			nextID := curNode.Forward[level]
			nextNode, err := s.node(nextID)
			if err != nil {
				return nil, 0, err
			}
			if nextNode.sentinel || Compare(nextNode.Key, target) >= 0 {
				break
			}
			cur = nextID
		}
		update[level] = cur
	}
	curNode, err := s.node(cur)
	if err != nil {
		return nil, 0, err
	}
	return update, curNode.Forward[0], nil
}

// allocNode returns a page to hold a new IndexNode, preferring one
// reclaimed onto the index's own free-index list (root.FreeHead) over
// growing the file. Every node — whatever its key length or level count —
// fits in one page body (Insert rejects a key too long for that), so a
// reclaimed page's recorded FreeBytes is never the limiting
// factor; GetFree's size check just keeps this on the same contract the
// free-data list uses.
func (s *SkipList) allocNode() (*Page, PageID, error) {
	if s.root.FreeHead != NilPageID {
		p, newHead, err := s.cache.GetFree(s.root.FreeHead, 0)
		if err == nil {
			s.root.FreeHead = newHead
			p.SetPageType(PageTypeIndex)
			p.MarkDirty()
			return p, p.ID, nil
		}
	}
	return s.cache.NewPage(PageTypeIndex)
}

// Insert adds key -> dataBlock. For a unique index, inserting a key that
// already exists returns KindIndexDuplicateKey.
func (s *SkipList) Insert(key Value, dataBlock PageID) error {
	// Node layout: sentinel flag, key length, key, DataBlock, Backward,
	// level count, and up to MaxLevel forward pointers.
	if 1+4+len(Encode(key))+8+8+1+8*MaxLevel > PageSize-PageHeaderSize {
		return util.New(util.KindIndexKeyTooLong, "index key does not fit in one index page")
	}
	update, candidateID, err := s.search(key)
	if err != nil {
		return err
	}
	candidate, err := s.node(candidateID)
	if err != nil {
		return err
	}
	if !candidate.sentinel && Compare(candidate.Key, key) == 0 {
		if s.root.Unique {
			return util.New(util.KindIndexDuplicateKey, key.Str)
		}
	}

	level := randomLevel()
	if level > s.root.Height {
		head, err := s.node(s.root.Head)
		if err != nil {
			return err
		}
		for len(head.Forward) < level {
			head.Forward = append(head.Forward, s.root.Tail)
		}
		if err := s.saveNode(s.root.Head, head); err != nil {
			return err
		}
		for i := s.root.Height; i < level; i++ {
			update = append(update, s.root.Head)
		}
		s.root.Height = level
	}

	newPage, newID, err := s.allocNode()
	if err != nil {
		return err
	}
	newNode := &IndexNode{Key: key, DataBlock: dataBlock, Forward: make([]PageID, level)}

	for i := 0; i < level; i++ {
		predNode, err := s.node(update[i])
		if err != nil {
			return err
		}
		newNode.Forward[i] = predNode.Forward[i]
		predNode.Forward[i] = newID
		if err := s.saveNode(update[i], predNode); err != nil {
			return err
		}
	}

	succNode, err := s.node(newNode.Forward[0])
	if err != nil {
		return err
	}
	newNode.Backward = update[0]
	succNode.Backward = newID
	if err := s.saveNode(newNode.Forward[0], succNode); err != nil {
		return err
	}
	newNode.Encode(newPage)

	return s.saveRoot()
}

// Delete removes the node matching both key and dataBlock. A non-unique
// index can hold several nodes with the same key (one per document whose
// field has that value), in no particular relative order, so locating the
// node by key alone is not enough to identify which document's entry is
// being removed — the search below walks forward at each level past any
// same-key node whose DataBlock doesn't match, the same way Insert's
// search walks past every node strictly less than the target.
func (s *SkipList) Delete(key Value, dataBlock PageID) error {
	update := make([]PageID, s.root.Height)
	cur := s.root.Head
	for level := s.root.Height - 1; level >= 0; level-- {
		for {
			curNode, err := s.node(cur)
			if err != nil {
				return err
			}
			nextID := curNode.Forward[level]
			nextNode, err := s.node(nextID)
			if err != nil {
				return err
			}
			if nextNode.sentinel {
				break
			}
			cmp := Compare(nextNode.Key, key)
			if cmp > 0 {
				break
			}
			if cmp == 0 && nextNode.DataBlock == dataBlock {
				break
			}
			cur = nextID
		}
		update[level] = cur
	}

	curNode, err := s.node(cur)
	if err != nil {
		return err
	}
	targetID := curNode.Forward[0]
	target, err := s.node(targetID)
	if err != nil {
		return err
	}
	if target.sentinel || Compare(target.Key, key) != 0 || target.DataBlock != dataBlock {
		return util.New(util.KindIndexNotFound, "key not present")
	}

	for i := 0; i < len(target.Forward); i++ {
		predNode, err := s.node(update[i])
		if err != nil {
			return err
		}
		if predNode.Forward[i] != targetID {
			continue
		}
		predNode.Forward[i] = target.Forward[i]
		if err := s.saveNode(update[i], predNode); err != nil {
			return err
		}
	}

	succNode, err := s.node(target.Forward[0])
	if err != nil {
		return err
	}
	succNode.Backward = target.Backward
	if err := s.saveNode(target.Forward[0], succNode); err != nil {
		return err
	}

	newHead, err := s.cache.Reclaim(s.root.FreeHead, targetID)
	if err != nil {
		return err
	}
	s.root.FreeHead = newHead
	return s.saveRoot()
}

// FindEQ returns the DataBlock pointer for key, if present.
func (s *SkipList) FindEQ(key Value) (PageID, bool, error) {
	_, candidateID, err := s.search(key)
	if err != nil {
		return 0, false, err
	}
	candidate, err := s.node(candidateID)
	if err != nil {
		return 0, false, err
	}
	if candidate.sentinel || Compare(candidate.Key, key) != 0 {
		return 0, false, nil
	}
	return candidate.DataBlock, true, nil
}

// Cursor is a pull-based forward iterator over index nodes. The query
// executor drains one into a set of DataBlock IDs per leaf query and
// combines those sets for And/Or/Not.
type Cursor struct {
	list    *SkipList
	current PageID
	done    bool
	stop    func(*IndexNode) bool
}

func (c *Cursor) Next() (*IndexNode, bool, error) {
	if c.done {
		return nil, false, nil
	}
	n, err := c.list.node(c.current)
	if err != nil {
		return nil, false, err
	}
	if n.sentinel {
		c.done = true
		return nil, false, nil
	}
	if c.stop != nil && c.stop(n) {
		c.done = true
		return nil, false, nil
	}
	c.current = n.Forward[0]
	return n, true, nil
}

func (s *SkipList) cursorFrom(start PageID, stop func(*IndexNode) bool) *Cursor {
	return &Cursor{list: s, current: start, stop: stop}
}

// All returns a cursor over every node in ascending key order.
func (s *SkipList) All() (*Cursor, error) {
	head, err := s.node(s.root.Head)
	if err != nil {
		return nil, err
	}
	return s.cursorFrom(head.Forward[0], nil), nil
}

// GTE returns a cursor starting at the first key >= key.
func (s *SkipList) GTE(key Value) (*Cursor, error) {
	_, candidateID, err := s.search(key)
	if err != nil {
		return nil, err
	}
	return s.cursorFrom(candidateID, nil), nil
}

// GT returns a cursor starting at the first key > key.
func (s *SkipList) GT(key Value) (*Cursor, error) {
	_, id, err := s.search(key)
	if err != nil {
		return nil, err
	}
	for {
		node, err := s.node(id)
		if err != nil {
			return nil, err
		}
		if node.sentinel || Compare(node.Key, key) != 0 {
			return s.cursorFrom(id, nil), nil
		}
		id = node.Forward[0]
	}
}

// LT returns a cursor over every key < key, stopping before the first
// key >= key.
func (s *SkipList) LT(key Value) (*Cursor, error) {
	head, err := s.node(s.root.Head)
	if err != nil {
		return nil, err
	}
	return s.cursorFrom(head.Forward[0], func(n *IndexNode) bool {
		return Compare(n.Key, key) >= 0
	}), nil
}

// LTE returns a cursor over every key <= key.
func (s *SkipList) LTE(key Value) (*Cursor, error) {
	head, err := s.node(s.root.Head)
	if err != nil {
		return nil, err
	}
	return s.cursorFrom(head.Forward[0], func(n *IndexNode) bool {
		return Compare(n.Key, key) > 0
	}), nil
}

// Between returns a cursor over keys in [min, max] (inclusive bounds;
// callers wanting exclusive bounds filter the endpoint themselves).
func (s *SkipList) Between(min, max Value) (*Cursor, error) {
	cur, err := s.GTE(min)
	if err != nil {
		return nil, err
	}
	cur.stop = func(n *IndexNode) bool { return Compare(n.Key, max) > 0 }
	return cur, nil
}

// StartsWith returns a cursor over string keys sharing the given prefix.
func (s *SkipList) StartsWith(prefix string) (*Cursor, error) {
	cur, err := s.GTE(String(prefix))
	if err != nil {
		return nil, err
	}
	cur.stop = func(n *IndexNode) bool {
		return n.Key.Tag != TagString || !strings.HasPrefix(n.Key.Str, prefix)
	}
	return cur, nil
}

// Min returns the smallest key in the list, O(1) via HEAD.Forward[0].
func (s *SkipList) Min() (*IndexNode, bool, error) {
	head, err := s.node(s.root.Head)
	if err != nil {
		return nil, false, err
	}
	n, err := s.node(head.Forward[0])
	if err != nil {
		return nil, false, err
	}
	if n.sentinel {
		return nil, false, nil
	}
	return n, true, nil
}

// Max returns the largest key in the list, O(1) via TAIL.Backward.
func (s *SkipList) Max() (*IndexNode, bool, error) {
	tail, err := s.node(s.root.Tail)
	if err != nil {
		return nil, false, err
	}
	if tail.Backward == s.root.Head {
		return nil, false, nil
	}
	n, err := s.node(tail.Backward)
	if err != nil {
		return nil, false, err
	}
	return n, true, nil
}
