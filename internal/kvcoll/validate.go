package kvcoll

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// errInvalid stops the validation scan at the first inconsistency.
var errInvalid = errors.New("invalid")

// Validate implements [idxcheck.Collection]. It decodes every document and
// every index entry and checks that they correspond one to one: every entry
// points at a live document with the same indexed values, and the entry
// count equals the document count.
func (c *Collection) Validate(_ context.Context) (idxcheck.Validation, error) {
	var details string

	invalid := func(format string, args ...any) error {
		details = fmt.Sprintf(format, args...)

		return errInvalid
	}

	docs := make(map[uint64]idxcheck.Document)

	err := c.scanDocs(func(id uint64, doc idxcheck.Document) error {
		docs[id] = doc

		return nil
	})
	if errors.Is(err, errCorrupt) {
		return idxcheck.Validation{Details: err.Error()}, nil
	}

	if err != nil {
		return idxcheck.Validation{}, fmt.Errorf("validate: %w", err)
	}

	entries := 0
	seen := make(map[uint64]bool, len(docs))

	err = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{indexPrefix}

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if c.index == nil {
				return invalid("index entry %x without index", it.Item().Key())
			}

			indexed, id, decodeErr := decodeIndexKey(c.index, it.Item().Key())
			if decodeErr != nil {
				return invalid("%v", decodeErr)
			}

			doc, ok := docs[id]
			if !ok {
				return invalid("index entry for missing document %d", id)
			}

			if seen[id] {
				return invalid("duplicate index entry for document %d", id)
			}

			seen[id] = true

			for _, p := range c.index {
				if indexed[p.Field] != doc[p.Field] {
					return invalid("index entry for document %d has %s=%d, document has %d",
						id, p.Field, indexed[p.Field], doc[p.Field])
				}
			}

			entries++
		}

		return nil
	})

	if errors.Is(err, errInvalid) {
		return idxcheck.Validation{Details: details}, nil
	}

	if err != nil {
		return idxcheck.Validation{}, fmt.Errorf("validate: %w", err)
	}

	if c.index != nil && entries != len(docs) {
		return idxcheck.Validation{
			Details: fmt.Sprintf("%d documents, %d index entries", len(docs), entries),
		}, nil
	}

	return idxcheck.Validation{
		Valid:   true,
		Details: fmt.Sprintf("%d documents, %d index entries", len(docs), entries),
	}, nil
}
