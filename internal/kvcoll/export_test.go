package kvcoll

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// CorruptDropDocument deletes the document with id but leaves its index
// entry behind.
func (c *Collection) CorruptDropDocument(id uint64) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(id))
	})
}

// CorruptAddIndexEntry writes an index entry for doc under id without
// storing the document.
func (c *Collection) CorruptAddIndexEntry(doc idxcheck.Document, id uint64) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(indexKey(c.index, doc, id), nil)
	})
}

// CorruptDocumentValue overwrites the stored value of document id with raw.
func (c *Collection) CorruptDocumentValue(id uint64, raw []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(id), raw)
	})
}

var (
	ScanBounds = scanBounds
	IndexOrder = indexOrder
	PrefixEnd  = prefixEnd

	IndexKeyForTest = indexKey
)
