// Package kvcoll implements [idxcheck.Collection] on top of Badger, with a
// hand-built compound secondary index.
//
// Documents and index entries live in the same key space (see keys.go).
// The index path seeks on the bounds of the leading index field, filters the
// remaining clauses from the covering index key and returns rows in index
// order when the requested sort is the index order or its exact reverse;
// otherwise it sorts explicitly. The natural path scans documents in
// insertion order and always sorts.
package kvcoll

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// ErrNoIndex is returned when a query hints an index that does not exist.
var ErrNoIndex = errors.New("kvcoll: index not found")

// Options configures [Open].
type Options struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory.
	InMemory bool

	// MemTableSize overrides Badger's memtable size in bytes when positive.
	MemTableSize int64

	// Logger receives Badger's internal log output at debug level.
	// Defaults to a no-op logger.
	Logger *zap.Logger
}

// Collection is a Badger-backed [idxcheck.Collection].
type Collection struct {
	db     *badger.DB
	logger *zap.Logger

	fields []idxcheck.Field
	index  idxcheck.IndexSpec
	nextID uint64
}

var _ idxcheck.Collection = (*Collection)(nil)

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Collection, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("open badger: path is required for persistent database")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}

	bopts = bopts.
		WithSyncWrites(false).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{s: logger.Sugar()})

	if opts.MemTableSize > 0 {
		bopts = bopts.WithMemTableSize(opts.MemTableSize)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Collection{db: db, logger: logger}, nil
}

// Close releases the database.
func (c *Collection) Close() error {
	err := c.db.Close()
	if err != nil {
		return fmt.Errorf("close badger: %w", err)
	}

	return nil
}

// Reset implements [idxcheck.Collection].
func (c *Collection) Reset(_ context.Context, fields []idxcheck.Field) error {
	err := c.db.DropAll()
	if err != nil {
		return fmt.Errorf("reset: %w", err)
	}

	c.fields = slices.Clone(fields)
	c.index = nil
	c.nextID = 0

	return nil
}

// CreateIndex implements [idxcheck.Collection]. Existing documents are
// indexed in one batch.
func (c *Collection) CreateIndex(_ context.Context, spec idxcheck.IndexSpec) error {
	if c.index != nil {
		return errors.New("create index: index already exists")
	}

	for _, p := range spec {
		if !slices.Contains(c.fields, p.Field) {
			return fmt.Errorf("create index: unknown field %q", p.Field)
		}
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	err := c.scanDocs(func(id uint64, doc idxcheck.Document) error {
		return wb.Set(indexKey(spec, doc, id), nil)
	})
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}

	err = wb.Flush()
	if err != nil {
		return fmt.Errorf("create index: flush: %w", err)
	}

	c.index = slices.Clone(spec)

	return nil
}

// Insert implements [idxcheck.Collection].
func (c *Collection) Insert(_ context.Context, doc idxcheck.Document) error {
	val, err := encodeDoc(c.fields, doc)
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	id := c.nextID + 1

	err = c.db.Update(func(txn *badger.Txn) error {
		setErr := txn.Set(docKey(id), val)
		if setErr != nil {
			return setErr
		}

		if c.index == nil {
			return nil
		}

		return txn.Set(indexKey(c.index, doc, id), nil)
	})
	if err != nil {
		return fmt.Errorf("insert: %w", err)
	}

	c.nextID = id

	return nil
}

// DeleteByExample implements [idxcheck.Collection].
func (c *Collection) DeleteByExample(_ context.Context, template idxcheck.Document) (int, error) {
	type victim struct {
		id  uint64
		doc idxcheck.Document
	}

	var victims []victim

	err := c.scanDocs(func(id uint64, doc idxcheck.Document) error {
		if doc.Matches(template) {
			victims = append(victims, victim{id: id, doc: doc})
		}

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	if len(victims) == 0 {
		return 0, nil
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()

	for _, v := range victims {
		err = wb.Delete(docKey(v.id))
		if err != nil {
			return 0, fmt.Errorf("delete: %w", err)
		}

		if c.index != nil {
			err = wb.Delete(indexKey(c.index, v.doc, v.id))
			if err != nil {
				return 0, fmt.Errorf("delete: %w", err)
			}
		}
	}

	err = wb.Flush()
	if err != nil {
		return 0, fmt.Errorf("delete: flush: %w", err)
	}

	return len(victims), nil
}

// Query implements [idxcheck.Collection].
func (c *Collection) Query(_ context.Context, q idxcheck.Query) ([]idxcheck.Document, error) {
	var (
		out []idxcheck.Document
		err error
	)

	if q.Hint.Natural() {
		out, err = c.queryNatural(q)
	} else {
		if c.index == nil || !slices.Equal(c.index, q.Hint.Index()) {
			return nil, fmt.Errorf("%w: %s", ErrNoIndex, q.Hint)
		}

		out, err = c.queryIndex(q)
	}

	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	if q.ExcludeID {
		for i, d := range out {
			out[i] = d.WithoutID()
		}
	}

	return out, nil
}

func (c *Collection) queryNatural(q idxcheck.Query) ([]idxcheck.Document, error) {
	out := make([]idxcheck.Document, 0)

	err := c.scanDocs(func(_ uint64, doc idxcheck.Document) error {
		if q.Predicate.Matches(doc) {
			out = append(out, doc)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(out, q.Sort.Compare)

	return out, nil
}

func (c *Collection) queryIndex(q idxcheck.Query) ([]idxcheck.Document, error) {
	out := make([]idxcheck.Document, 0)

	start, end, ok := scanBounds(c.index[0], q.Predicate)
	if !ok {
		return out, nil
	}

	inOrder, reverse := indexOrder(c.index, q.Sort)
	covering := len(c.index) == len(c.fields)

	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = inOrder && reverse

		it := txn.NewIterator(opts)
		defer it.Close()

		seek := start
		if opts.Reverse {
			seek = end
		}

		for it.Seek(seek); it.Valid(); it.Next() {
			key := it.Item().Key()

			if opts.Reverse && bytes.Compare(key, start) < 0 {
				break
			}

			if !opts.Reverse && bytes.Compare(key, end) >= 0 {
				break
			}

			doc, id, err := decodeIndexKey(c.index, key)
			if err != nil {
				return err
			}

			if !covering {
				doc, err = c.loadDoc(txn, id)
				if err != nil {
					return err
				}
			}

			doc[idxcheck.IDField] = int(id)

			if q.Predicate.Matches(doc) {
				out = append(out, doc)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	if !inOrder {
		slices.SortStableFunc(out, q.Sort.Compare)
	}

	return out, nil
}

func (c *Collection) loadDoc(txn *badger.Txn, id uint64) (idxcheck.Document, error) {
	item, err := txn.Get(docKey(id))
	if err != nil {
		return nil, fmt.Errorf("load document %d: %w", id, err)
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, fmt.Errorf("load document %d: %w", id, err)
	}

	return decodeDoc(c.fields, val)
}

// scanDocs calls fn for every document in insertion order. The document
// carries its _id.
func (c *Collection) scanDocs(fn func(id uint64, doc idxcheck.Document) error) error {
	return c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{docPrefix}

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			id, err := docID(item.Key())
			if err != nil {
				return err
			}

			val, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read document %d: %w", id, err)
			}

			doc, err := decodeDoc(c.fields, val)
			if err != nil {
				return fmt.Errorf("document %d: %w", id, err)
			}

			doc[idxcheck.IDField] = int(id)

			err = fn(id, doc)
			if err != nil {
				return err
			}
		}

		return nil
	})
}

// scanBounds returns the [start, end) index key range that can contain
// matches for the leading index part. ok is false when nothing can match.
func scanBounds(lead idxcheck.KeyPart, pred idxcheck.Predicate) ([]byte, []byte, bool) {
	lo, hi := math.MinInt, math.MaxInt
	bounded := false

	for _, clause := range pred {
		if clause.Field != lead.Field {
			continue
		}

		bounded = true

		switch cond := clause.Condition.(type) {
		case idxcheck.Range:
			lo, hi = cond.Lower, cond.Upper
			if !cond.LowerInclusive {
				lo++
			}

			if !cond.UpperInclusive {
				hi--
			}
		case idxcheck.Membership:
			if len(cond.Values) == 0 {
				return nil, nil, false
			}

			lo, hi = slices.Min(cond.Values), slices.Max(cond.Values)
		default:
			bounded = false
		}
	}

	if !bounded {
		return []byte{indexPrefix}, []byte{indexPrefix + 1}, true
	}

	if lo > hi {
		return nil, nil, false
	}

	first, last := lo, hi
	if lead.Direction == idxcheck.Descending {
		first, last = hi, lo
	}

	return leadingKey(lead, first), prefixEnd(leadingKey(lead, last)), true
}

// indexOrder reports whether iterating the index yields sort order directly,
// and whether it must be iterated backwards to do so.
func indexOrder(index idxcheck.IndexSpec, sort idxcheck.SortSpec) (bool, bool) {
	if len(sort) > len(index) {
		return false, false
	}

	if len(sort) == 0 {
		return true, false
	}

	same := sort[0].Direction == index[0].Direction

	for i, p := range sort {
		if p.Field != index[i].Field || (p.Direction == index[i].Direction) != same {
			return false, false
		}
	}

	return true, !same
}
