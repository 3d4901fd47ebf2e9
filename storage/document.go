package storage

// Document is the in-memory value tree a collection stores and indexes
// fields off of. It is the concrete stand-in for the value model §3.1
// of the document format requires but leaves to an external collaborator.
type Document map[string]Value

// ID returns the document's "_id" field, or false if absent.
func (d Document) ID() (Value, bool) {
	v, ok := d["_id"]
	return v, ok
}

// SetID assigns the document's "_id" field.
func (d Document) SetID(id Value) {
	d["_id"] = id
}

// Field resolves a dotted path ("address.city") against nested objects.
func (d Document) Field(path string) (Value, bool) {
	cur := Value{Tag: TagObject, Object: d}
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			seg := path[start:i]
			if cur.Tag != TagObject {
				return Value{}, false
			}
			v, ok := cur.Object[seg]
			if !ok {
				return Value{}, false
			}
			cur = v
			start = i + 1
		}
	}
	return cur, true
}

// Clone deep-copies a document; Value's array/object fields are shared
// sub-trees copied by EncodeDocument/DecodeDocument round-trip, which is
// cheap enough for the document sizes this engine targets.
func (d Document) Clone() Document {
	data := EncodeDocument(d)
	clone, err := DecodeDocument(data)
	if err != nil {
		// EncodeDocument/DecodeDocument are inverses; a failure here means
		// the buffer we just produced is corrupt, which cannot happen.
		panic(err)
	}
	return clone
}

// EncodeDocument serializes a document to the tagged byte stream described
// in §6: a TagObject Value wrapping the document's fields.
func EncodeDocument(d Document) []byte {
	return Encode(Obj(d))
}

// DecodeDocument parses a document previously produced by EncodeDocument.
func DecodeDocument(data []byte) (Document, error) {
	v, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if v.Tag != TagObject {
		return nil, errShortBuffer
	}
	return Document(v.Object), nil
}

// Size returns the encoded byte size of the document, used to decide how
// many Data/Extend pages a DataBlock must span.
func (d Document) Size() int {
	return len(EncodeDocument(d))
}
