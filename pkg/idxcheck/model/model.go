// Package model provides a deliberately simple, in-memory reference
// implementation of [idxcheck.Collection].
//
// The model is intentionally easy to audit: both query hints share a single
// filter-then-sort code path, so index and scan results can only differ if
// the driver or oracle is broken. It favors clarity over performance.
package model

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// ErrNoIndex is returned when a query hints an index that was never created.
var ErrNoIndex = errors.New("model: index not found")

// ErrSchema is returned when a document or index does not fit the active fields.
var ErrSchema = errors.New("model: schema mismatch")

// Collection is an in-memory [idxcheck.Collection].
type Collection struct {
	fields []idxcheck.Field
	index  idxcheck.IndexSpec
	docs   []idxcheck.Document // insertion order, each carries _id
	nextID int
}

var _ idxcheck.Collection = (*Collection)(nil)

// New returns an empty collection with no active fields.
func New() *Collection {
	return &Collection{}
}

// Reset implements [idxcheck.Collection].
func (c *Collection) Reset(_ context.Context, fields []idxcheck.Field) error {
	c.fields = slices.Clone(fields)
	c.index = nil
	c.docs = nil
	c.nextID = 0

	return nil
}

// CreateIndex implements [idxcheck.Collection].
func (c *Collection) CreateIndex(_ context.Context, spec idxcheck.IndexSpec) error {
	if len(spec) == 0 {
		return fmt.Errorf("%w: empty index", ErrSchema)
	}

	seen := make(map[idxcheck.Field]bool, len(spec))

	for _, part := range spec {
		if !slices.Contains(c.fields, part.Field) || seen[part.Field] {
			return fmt.Errorf("%w: index field %q", ErrSchema, part.Field)
		}

		seen[part.Field] = true
	}

	c.index = slices.Clone(spec)

	return nil
}

// Insert implements [idxcheck.Collection].
func (c *Collection) Insert(_ context.Context, doc idxcheck.Document) error {
	stored := make(idxcheck.Document, len(c.fields)+1)

	for _, f := range c.fields {
		v, ok := doc[f]
		if !ok {
			return fmt.Errorf("%w: document missing field %q", ErrSchema, f)
		}

		stored[f] = v
	}

	c.nextID++
	stored[idxcheck.IDField] = c.nextID
	c.docs = append(c.docs, stored)

	return nil
}

// DeleteByExample implements [idxcheck.Collection].
func (c *Collection) DeleteByExample(_ context.Context, template idxcheck.Document) (int, error) {
	before := len(c.docs)

	c.docs = slices.DeleteFunc(c.docs, func(d idxcheck.Document) bool {
		return d.Matches(template)
	})

	return before - len(c.docs), nil
}

// Query implements [idxcheck.Collection].
func (c *Collection) Query(_ context.Context, q idxcheck.Query) ([]idxcheck.Document, error) {
	if !q.Hint.Natural() && (c.index == nil || !slices.Equal(c.index, q.Hint.Index())) {
		return nil, fmt.Errorf("%w: %s", ErrNoIndex, q.Hint)
	}

	out := make([]idxcheck.Document, 0)

	for _, d := range c.docs {
		if !q.Predicate.Matches(d) {
			continue
		}

		if q.ExcludeID {
			out = append(out, d.WithoutID())
		} else {
			out = append(out, maps.Clone(d))
		}
	}

	slices.SortStableFunc(out, q.Sort.Compare)

	return out, nil
}

// Validate implements [idxcheck.Collection].
func (c *Collection) Validate(_ context.Context) (idxcheck.Validation, error) {
	lastID := 0

	for i, d := range c.docs {
		id := d[idxcheck.IDField]
		if id <= lastID {
			return idxcheck.Validation{Details: fmt.Sprintf("document %d: _id %d not increasing", i, id)}, nil
		}

		lastID = id

		if len(d) != len(c.fields)+1 {
			return idxcheck.Validation{Details: fmt.Sprintf("document %d: %d fields, want %d", i, len(d)-1, len(c.fields))}, nil
		}
	}

	return idxcheck.Validation{Valid: true, Details: fmt.Sprintf("%d documents", len(c.docs))}, nil
}

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	return len(c.docs)
}
