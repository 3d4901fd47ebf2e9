package storage

import (
	"bytes"
	"encoding/binary"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Tag identifies the dynamic type carried by a Value.
type Tag byte

const (
	TagNull Tag = iota
	TagBool
	TagInt32
	TagInt64
	TagDouble
	TagString
	TagBinary
	TagDateTime
	TagGuid
	TagArray
	TagObject
)

// Value is the minimal tagged scalar/array/object union index keys and
// document fields are built from. Ordering across tags follows the
// document model's documented total order: null < bool < numbers <
// string < binary < datetime < guid < array < object.
type Value struct {
	Tag     Tag
	Bool    bool
	Int32   int32
	Int64   int64
	Double  float64
	Str     string
	Bin     []byte
	Time    time.Time
	Guid    uuid.UUID
	Array   []Value
	Object  map[string]Value
}

func Null() Value                { return Value{Tag: TagNull} }
func Bool(b bool) Value          { return Value{Tag: TagBool, Bool: b} }
func Int32(i int32) Value        { return Value{Tag: TagInt32, Int32: i} }
func Int64(i int64) Value        { return Value{Tag: TagInt64, Int64: i} }
func Double(f float64) Value     { return Value{Tag: TagDouble, Double: f} }
func String(s string) Value      { return Value{Tag: TagString, Str: s} }
func Binary(b []byte) Value      { return Value{Tag: TagBinary, Bin: b} }
func DateTime(t time.Time) Value { return Value{Tag: TagDateTime, Time: t} }
func Guid(g uuid.UUID) Value     { return Value{Tag: TagGuid, Guid: g} }
func Arr(vs ...Value) Value      { return Value{Tag: TagArray, Array: vs} }
func Obj(m map[string]Value) Value { return Value{Tag: TagObject, Object: m} }

func (v Value) IsNull() bool { return v.Tag == TagNull }

func (v Value) asFloat() (float64, bool) {
	switch v.Tag {
	case TagInt32:
		return float64(v.Int32), true
	case TagInt64:
		return float64(v.Int64), true
	case TagDouble:
		return v.Double, true
	default:
		return 0, false
	}
}

func rank(t Tag) int {
	switch t {
	case TagNull:
		return 0
	case TagBool:
		return 1
	case TagInt32, TagInt64, TagDouble:
		return 2
	case TagString:
		return 3
	case TagBinary:
		return 4
	case TagDateTime:
		return 5
	case TagGuid:
		return 6
	case TagArray:
		return 7
	case TagObject:
		return 8
	default:
		return 9
	}
}

// Compare returns -1, 0, 1 following the document model's total value
// order. Values of the same numeric family compare numerically even
// across int32/int64/double.
func Compare(a, b Value) int {
	ra, rb := rank(a.Tag), rank(b.Tag)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch a.Tag {
	case TagNull:
		return 0
	case TagBool:
		if a.Bool == b.Bool {
			return 0
		}
		if !a.Bool {
			return -1
		}
		return 1
	case TagInt32, TagInt64, TagDouble:
		af, _ := a.asFloat()
		bf, _ := b.asFloat()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case TagString:
		switch {
		case a.Str < b.Str:
			return -1
		case a.Str > b.Str:
			return 1
		default:
			return 0
		}
	case TagBinary:
		return bytes.Compare(a.Bin, b.Bin)
	case TagDateTime:
		switch {
		case a.Time.Before(b.Time):
			return -1
		case a.Time.After(b.Time):
			return 1
		default:
			return 0
		}
	case TagGuid:
		return bytes.Compare(a.Guid[:], b.Guid[:])
	case TagArray:
		for i := 0; i < len(a.Array) && i < len(b.Array); i++ {
			if c := Compare(a.Array[i], b.Array[i]); c != 0 {
				return c
			}
		}
		switch {
		case len(a.Array) < len(b.Array):
			return -1
		case len(a.Array) > len(b.Array):
			return 1
		default:
			return 0
		}
	case TagObject:
		// Objects compare by serialized byte order — total but arbitrary,
		// sufficient since object-valued index keys are rare in practice.
		return bytes.Compare(Encode(a), Encode(b))
	default:
		return 0
	}
}

// Encode serializes a Value to the tagged byte stream:
// [1-byte tag][4-byte length for variable-length kinds][payload], LE.
// Object fields are written in ascending key order, so equal objects
// always encode to the same bytes.
// Every document Insert/Update encodes, so the scratch buffer comes from
// a pool rather than a fresh allocation per call.
func Encode(v Value) []byte {
	buf := getBuffer()
	defer putBuffer(buf)
	encodeInto(buf, v)
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

func encodeInto(buf *bytes.Buffer, v Value) {
	buf.WriteByte(byte(v.Tag))
	switch v.Tag {
	case TagNull:
	case TagBool:
		if v.Bool {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case TagInt32:
		writeU32(buf, uint32(v.Int32))
	case TagInt64:
		writeU64(buf, uint64(v.Int64))
	case TagDouble:
		writeU64(buf, doubleBits(v.Double))
	case TagString:
		writeLenPrefixed(buf, []byte(v.Str))
	case TagBinary:
		writeLenPrefixed(buf, v.Bin)
	case TagDateTime:
		writeU64(buf, uint64(v.Time.UnixNano()))
	case TagGuid:
		buf.Write(v.Guid[:])
	case TagArray:
		writeU32(buf, uint32(len(v.Array)))
		for _, e := range v.Array {
			encodeInto(buf, e)
		}
	case TagObject:
		writeU32(buf, uint32(len(v.Object)))
		keys := make([]string, 0, len(v.Object))
		for k := range v.Object {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			writeLenPrefixed(buf, []byte(k))
			encodeInto(buf, v.Object[k])
		}
	}
}

// Decode parses a single Value from the front of b, returning the value
// and the number of bytes consumed.
func Decode(b []byte) (Value, int, error) {
	if len(b) < 1 {
		return Value{}, 0, errShortBuffer
	}
	tag := Tag(b[0])
	off := 1
	switch tag {
	case TagNull:
		return Null(), off, nil
	case TagBool:
		if off >= len(b) {
			return Value{}, 0, errShortBuffer
		}
		v := b[off] != 0
		return Bool(v), off + 1, nil
	case TagInt32:
		n, err := readU32(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		return Int32(int32(n)), off + 4, nil
	case TagInt64:
		n, err := readU64(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		return Int64(int64(n)), off + 8, nil
	case TagDouble:
		n, err := readU64(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		return Double(bitsToDouble(n)), off + 8, nil
	case TagString:
		data, n, err := readLenPrefixed(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		return String(string(data)), off + n, nil
	case TagBinary:
		data, n, err := readLenPrefixed(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		return Binary(data), off + n, nil
	case TagDateTime:
		n, err := readU64(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		return DateTime(time.Unix(0, int64(n)).UTC()), off + 8, nil
	case TagGuid:
		if off+16 > len(b) {
			return Value{}, 0, errShortBuffer
		}
		var g uuid.UUID
		copy(g[:], b[off:off+16])
		return Guid(g), off + 16, nil
	case TagArray:
		count, err := readU32(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		off += 4
		arr := make([]Value, 0, count)
		for i := uint32(0); i < count; i++ {
			v, n, err := Decode(b[off:])
			if err != nil {
				return Value{}, 0, err
			}
			arr = append(arr, v)
			off += n
		}
		return Arr(arr...), off, nil
	case TagObject:
		count, err := readU32(b[off:])
		if err != nil {
			return Value{}, 0, err
		}
		off += 4
		m := make(map[string]Value, count)
		for i := uint32(0); i < count; i++ {
			key, n, err := readLenPrefixed(b[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += n
			v, n2, err := Decode(b[off:])
			if err != nil {
				return Value{}, 0, err
			}
			off += n2
			m[string(key)] = v
		}
		return Obj(m), off, nil
	default:
		return Value{}, 0, errShortBuffer
	}
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.Write(tmp[:])
}

func writeLenPrefixed(buf *bytes.Buffer, data []byte) {
	writeU32(buf, uint32(len(data)))
	buf.Write(data)
}

func readU32(b []byte) (uint32, error) {
	if len(b) < 4 {
		return 0, errShortBuffer
	}
	return binary.LittleEndian.Uint32(b[:4]), nil
}

func readU64(b []byte) (uint64, error) {
	if len(b) < 8 {
		return 0, errShortBuffer
	}
	return binary.LittleEndian.Uint64(b[:8]), nil
}

func readLenPrefixed(b []byte) ([]byte, int, error) {
	n, err := readU32(b)
	if err != nil {
		return nil, 0, err
	}
	if len(b) < 4+int(n) {
		return nil, 0, errShortBuffer
	}
	out := make([]byte, n)
	copy(out, b[4:4+n])
	return out, 4 + int(n), nil
}
