package pagefile

import (
	"crypto/rand"
	"encoding/binary"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pagefiledb/pagefile/storage"
)

// IDKind selects which auto-id generator assignAutoID uses when an
// inserted document has no "_id" field.
type IDKind int

const (
	IDObjectId IDKind = iota
	IDGuid
	IDInt32
)

var objectIDCounter uint32
var objectIDMachine = machineFingerprint()

func machineFingerprint() [5]byte {
	var fp [5]byte
	host, err := os.Hostname()
	if err == nil && len(host) > 0 {
		copy(fp[:], host)
	} else {
		rand.Read(fp[:])
	}
	return fp
}

// NewObjectID builds a 12-byte ObjectId from the current Unix time, a
// 5-byte machine fingerprint (the first bytes of the host name, or random
// bytes if it is unavailable), and a monotonic per-process
// counter, matching the shape used throughout the document-database
// lineage this engine descends from.
func NewObjectID() storage.Value {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(time.Now().Unix()))
	copy(buf[4:9], objectIDMachine[:])
	n := atomic.AddUint32(&objectIDCounter, 1)
	buf[9] = byte(n >> 16)
	buf[10] = byte(n >> 8)
	buf[11] = byte(n)
	return storage.Binary(buf[:])
}

// NewGuidID wraps google/uuid's random v4 generator.
func NewGuidID() storage.Value {
	return storage.Guid(uuid.New())
}

// NextInt32ID returns max+1 over the collection's current "_id" values,
// wrapping back to 1 on int32 overflow. Callers pass the current Max()
// of the primary index.
func NextInt32ID(max storage.Value, found bool) storage.Value {
	if !found {
		return storage.Int32(1)
	}
	var cur int32
	switch max.Tag {
	case storage.TagInt32:
		cur = max.Int32
	case storage.TagInt64:
		cur = int32(max.Int64)
	default:
		cur = 0
	}
	if cur == (1<<31)-1 {
		return storage.Int32(1)
	}
	return storage.Int32(cur + 1)
}

// assignAutoID returns a fresh id of the requested kind, using primary
// for Int32's max+1 lookup.
func assignAutoID(kind IDKind, primary *storage.SkipList) (storage.Value, error) {
	switch kind {
	case IDGuid:
		return NewGuidID(), nil
	case IDInt32:
		node, found, err := primary.Max()
		if err != nil {
			return storage.Value{}, err
		}
		if !found {
			return NextInt32ID(storage.Value{}, false), nil
		}
		return NextInt32ID(node.Key, true), nil
	default:
		return NewObjectID(), nil
	}
}
