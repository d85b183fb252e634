// Package idxchecktest provides fault injection, event recording and a
// shared behavior suite for [idxcheck.Collection] implementations.
package idxchecktest

import (
	"context"
	"errors"

	"github.com/calvinalkan/idxcheck/pkg/idxcheck"
)

// ErrInjected marks a failure injected by [Faulty].
var ErrInjected = errors.New("injected fault")

// Faults selects which misbehaviors a [Faulty] collection exhibits.
// The zero value injects nothing.
type Faults struct {
	// Invalid makes Validate report an invalid collection with Details.
	Invalid bool
	Details string

	// DropIndexedRow makes index-hinted queries lose their last row.
	DropIndexedRow bool

	// ReverseIndexed makes index-hinted queries return rows reversed.
	ReverseIndexed bool

	// FailOp names an operation ("reset", "create_index", "insert",
	// "delete", "query", "validate") that fails with [ErrInjected] once it
	// has been called more than FailAfter times.
	FailOp    string
	FailAfter int
}

// Faulty wraps a collection and injects the configured [Faults].
type Faulty struct {
	Inner  idxcheck.Collection
	Faults Faults

	// Calls counts invocations per operation name.
	Calls map[string]int
}

var _ idxcheck.Collection = (*Faulty)(nil)

// NewFaulty wraps inner with no faults enabled.
func NewFaulty(inner idxcheck.Collection) *Faulty {
	return &Faulty{Inner: inner, Calls: make(map[string]int)}
}

func (f *Faulty) call(op string) error {
	f.Calls[op]++

	if f.Faults.FailOp == op && f.Calls[op] > f.Faults.FailAfter {
		return ErrInjected
	}

	return nil
}

func (f *Faulty) Reset(ctx context.Context, fields []idxcheck.Field) error {
	err := f.call("reset")
	if err != nil {
		return err
	}

	return f.Inner.Reset(ctx, fields)
}

func (f *Faulty) CreateIndex(ctx context.Context, spec idxcheck.IndexSpec) error {
	err := f.call("create_index")
	if err != nil {
		return err
	}

	return f.Inner.CreateIndex(ctx, spec)
}

func (f *Faulty) Insert(ctx context.Context, doc idxcheck.Document) error {
	err := f.call("insert")
	if err != nil {
		return err
	}

	return f.Inner.Insert(ctx, doc)
}

func (f *Faulty) DeleteByExample(ctx context.Context, template idxcheck.Document) (int, error) {
	err := f.call("delete")
	if err != nil {
		return 0, err
	}

	return f.Inner.DeleteByExample(ctx, template)
}

func (f *Faulty) Query(ctx context.Context, q idxcheck.Query) ([]idxcheck.Document, error) {
	err := f.call("query")
	if err != nil {
		return nil, err
	}

	docs, err := f.Inner.Query(ctx, q)
	if err != nil || q.Hint.Natural() {
		return docs, err
	}

	if f.Faults.DropIndexedRow && len(docs) > 0 {
		docs = docs[:len(docs)-1]
	}

	if f.Faults.ReverseIndexed {
		for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
			docs[i], docs[j] = docs[j], docs[i]
		}
	}

	return docs, nil
}

func (f *Faulty) Validate(ctx context.Context) (idxcheck.Validation, error) {
	err := f.call("validate")
	if err != nil {
		return idxcheck.Validation{}, err
	}

	if f.Faults.Invalid {
		return idxcheck.Validation{Valid: false, Details: f.Faults.Details}, nil
	}

	return f.Inner.Validate(ctx)
}
