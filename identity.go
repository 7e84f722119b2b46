package dynadoc

import (
	"fmt"
	"hash/fnv"
)

// KeyTuple is the structural identity of a document: the dumped hash key
// value plus, for composite tables, the dumped range key value.
type KeyTuple struct {
	Hash     any
	Range    any
	HasRange bool
}

// KeyTuple returns the document's identity tuple. The key values are dumped
// through the declared key types so that equivalent in-memory representations
// collapse to the same tuple. Panics when the type never declared a key.
func (d *Document) KeyTuple() KeyTuple {
	pk := d.dt.PrimaryKey()
	if pk.Hash == "" {
		panic(NewArgError(fmt.Sprintf("no hash key declared for type %q", d.dt.Name),
			ErrUnknownAttribute).Error())
	}
	kt := KeyTuple{}
	kt.Hash, _ = Dump(pk.HashType, d.Get(pk.Hash))
	if pk.Range != "" {
		kt.HasRange = true
		kt.Range, _ = Dump(pk.RangeType, d.Get(pk.Range))
	}
	return kt
}

// Equals reports structural identity with another document: both must have a
// non-nil hash key value, the dumped hash values must match, and the range
// side must either be absent on both or match. Type names do not participate,
// so a parent and a subtype document with the same key are equal.
func (d *Document) Equals(other any) bool {
	o, ok := other.(*Document)
	if !ok || o == nil {
		return false
	}
	a, b := d.KeyTuple(), o.KeyTuple()
	if a.Hash == nil || b.Hash == nil {
		return false
	}
	if keyString(a.Hash) != keyString(b.Hash) {
		return false
	}
	aRange := a.HasRange && a.Range != nil
	bRange := b.HasRange && b.Range != nil
	if !aRange && !bRange {
		return true
	}
	if aRange != bRange {
		return false
	}
	return keyString(a.Range) == keyString(b.Range)
}

// HashCode returns a stable hash of the identity tuple, consistent with
// Equals: equal documents hash equally.
func (d *Document) HashCode() uint64 {
	kt := d.KeyTuple()
	h := fnv.New64a()
	h.Write([]byte(keyString(kt.Hash)))
	h.Write([]byte{'|'})
	if kt.HasRange && kt.Range != nil {
		h.Write([]byte(keyString(kt.Range)))
	}
	return h.Sum64()
}
