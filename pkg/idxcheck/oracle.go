package idxcheck

import (
	"context"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Oracle compares indexed query results against a natural-order scan.
type Oracle struct {
	coll Collection
	gen  *Generator
}

// NewOracle returns an oracle that draws predicates and sort orders from gen.
func NewOracle(coll Collection, gen *Generator) *Oracle {
	return &Oracle{coll: coll, gen: gen}
}

// Check validates the collection, then runs one fresh random predicate and
// sort order through index and scan and requires identical ordered results.
//
// Returns a *[Violation] wrapping [ErrIntegrity] if validation fails (no
// query is issued), a *[Violation] wrapping [ErrEquivalence] if the results
// differ, or an error wrapping [ErrStore] if the collection fails.
func (o *Oracle) Check(ctx context.Context, fields []Field, index IndexSpec) error {
	validation, err := o.coll.Validate(ctx)
	if err != nil {
		return storeErr("validate", err)
	}

	if !validation.Valid {
		return &Violation{Kind: ErrIntegrity, Details: validation.Details, Index: index}
	}

	pred := o.gen.Predicate(fields)
	sort := o.gen.SortSpec(fields)

	indexed, err := o.coll.Query(ctx, Query{Predicate: pred, Sort: sort, Hint: UseIndex(index), ExcludeID: true})
	if err != nil {
		return storeErr("indexed query", err)
	}

	scanned, err := o.coll.Query(ctx, Query{Predicate: pred, Sort: sort, Hint: NaturalOrder, ExcludeID: true})
	if err != nil {
		return storeErr("natural query", err)
	}

	diff := cmp.Diff(indexed, scanned, cmpopts.EquateEmpty())
	if diff == "" {
		return nil
	}

	return &Violation{
		Kind:      ErrEquivalence,
		Index:     index,
		Predicate: pred,
		Sort:      sort,
		Indexed:   indexed,
		Scanned:   scanned,
		Diff:      diff,
	}
}
