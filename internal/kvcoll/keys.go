package kvcoll

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// Key layout:
//
//	d <id:8>                      -> <v1:8> ... <vn:8>  (document, active field order)
//	i <k1:8> ... <kn:8> <id:8>    -> empty              (index entry, index key order)
//
// Integers are encoded big-endian with the sign bit flipped so byte order
// matches numeric order. Descending index parts store the bitwise inverse.
const (
	docPrefix   byte = 'd'
	indexPrefix byte = 'i'
	wordSize         = 8
)

var errCorrupt = errors.New("corrupt")

func encodeInt(v int) uint64 {
	return uint64(v) ^ (1 << 63)
}

func decodeInt(u uint64) int {
	return int(u ^ (1 << 63))
}

func encodePart(v int, dir idxcheck.Direction) uint64 {
	u := encodeInt(v)
	if dir == idxcheck.Descending {
		return ^u
	}

	return u
}

func decodePart(u uint64, dir idxcheck.Direction) int {
	if dir == idxcheck.Descending {
		u = ^u
	}

	return decodeInt(u)
}

func docKey(id uint64) []byte {
	key := make([]byte, 1+wordSize)
	key[0] = docPrefix
	binary.BigEndian.PutUint64(key[1:], id)

	return key
}

func docID(key []byte) (uint64, error) {
	if len(key) != 1+wordSize || key[0] != docPrefix {
		return 0, fmt.Errorf("%w: document key %x", errCorrupt, key)
	}

	return binary.BigEndian.Uint64(key[1:]), nil
}

func encodeDoc(fields []idxcheck.Field, doc idxcheck.Document) ([]byte, error) {
	val := make([]byte, wordSize*len(fields))

	for i, f := range fields {
		v, ok := doc[f]
		if !ok {
			return nil, fmt.Errorf("document missing field %q", f)
		}

		binary.BigEndian.PutUint64(val[i*wordSize:], encodeInt(v))
	}

	return val, nil
}

func decodeDoc(fields []idxcheck.Field, val []byte) (idxcheck.Document, error) {
	if len(val) != wordSize*len(fields) {
		return nil, fmt.Errorf("%w: document value has %d bytes, want %d", errCorrupt, len(val), wordSize*len(fields))
	}

	doc := make(idxcheck.Document, len(fields)+1)
	for i, f := range fields {
		doc[f] = decodeInt(binary.BigEndian.Uint64(val[i*wordSize:]))
	}

	return doc, nil
}

func indexKey(spec idxcheck.IndexSpec, doc idxcheck.Document, id uint64) []byte {
	key := make([]byte, 1+wordSize*(len(spec)+1))
	key[0] = indexPrefix

	for i, p := range spec {
		binary.BigEndian.PutUint64(key[1+i*wordSize:], encodePart(doc[p.Field], p.Direction))
	}

	binary.BigEndian.PutUint64(key[1+len(spec)*wordSize:], id)

	return key
}

// decodeIndexKey returns the indexed values (with _id set) of an index entry.
func decodeIndexKey(spec idxcheck.IndexSpec, key []byte) (idxcheck.Document, uint64, error) {
	if len(key) != 1+wordSize*(len(spec)+1) || key[0] != indexPrefix {
		return nil, 0, fmt.Errorf("%w: index key %x", errCorrupt, key)
	}

	doc := make(idxcheck.Document, len(spec)+1)
	for i, p := range spec {
		doc[p.Field] = decodePart(binary.BigEndian.Uint64(key[1+i*wordSize:]), p.Direction)
	}

	id := binary.BigEndian.Uint64(key[1+len(spec)*wordSize:])

	return doc, id, nil
}

// leadingKey returns the index key prefix for value v of the first index part.
func leadingKey(part idxcheck.KeyPart, v int) []byte {
	key := make([]byte, 1+wordSize)
	key[0] = indexPrefix
	binary.BigEndian.PutUint64(key[1:], encodePart(v, part.Direction))

	return key
}

// prefixEnd returns the smallest key greater than every key with prefix p.
func prefixEnd(p []byte) []byte {
	end := make([]byte, len(p))
	copy(end, p)

	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}

	return nil // p is all 0xff: no upper bound
}
