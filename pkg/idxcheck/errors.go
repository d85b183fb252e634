package idxcheck

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Every failure of a run wraps exactly one of the first
// three; callers use [errors.Is] to classify.
var (
	// ErrStore indicates the collection itself failed an operation.
	ErrStore = errors.New("idxcheck: store error")

	// ErrIntegrity indicates the collection reported invalid structure.
	ErrIntegrity = errors.New("idxcheck: integrity violation")

	// ErrEquivalence indicates indexed and scanned results differ.
	ErrEquivalence = errors.New("idxcheck: equivalence violation")

	// ErrInvalidConfig indicates a [Config] failed validation.
	ErrInvalidConfig = errors.New("idxcheck: invalid config")
)

// Violation is the diagnostic payload of an integrity or equivalence failure.
//
// Use [errors.As] to extract it:
//
//	var v *idxcheck.Violation
//	if errors.As(err, &v) {
//	    fmt.Println(v.Report())
//	}
type Violation struct {
	// Kind is [ErrIntegrity] or [ErrEquivalence].
	Kind error

	// Details carries the collection's validation output for integrity failures.
	Details string

	Index     IndexSpec
	Predicate Predicate
	Sort      SortSpec

	// Indexed and Scanned are the two result sequences (equivalence only).
	Indexed []Document
	Scanned []Document

	// Diff is a go-cmp diff of Indexed against Scanned.
	Diff string

	// Trial context, filled in by the [Driver].
	Trial     int
	Seed      uint64
	Phase     Phase
	Iteration int
}

// Error formats as "<kind>: index=... predicate=... (trial=N seed=S)".
func (v *Violation) Error() string {
	if v == nil {
		return ""
	}

	var b strings.Builder

	b.WriteString(v.Kind.Error())

	if v.Kind == ErrIntegrity {
		fmt.Fprintf(&b, ": %s", v.Details)
	} else {
		fmt.Fprintf(&b, ": index=%s predicate=%s sort=%s indexed=%d scanned=%d",
			v.Index, v.Predicate, v.Sort, len(v.Indexed), len(v.Scanned))
	}

	fmt.Fprintf(&b, " (trial=%d seed=%d phase=%s iteration=%d)", v.Trial, v.Seed, v.Phase, v.Iteration)

	return b.String()
}

// Unwrap returns Kind for use with [errors.Is].
func (v *Violation) Unwrap() error {
	if v == nil {
		return nil
	}

	return v.Kind
}

// Report renders the full multi-line diagnostic shown to operators.
func (v *Violation) Report() string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", v.Kind)
	fmt.Fprintf(&b, "  seed:      %d\n", v.Seed)
	fmt.Fprintf(&b, "  trial:     %d (%s, iteration %d)\n", v.Trial, v.Phase, v.Iteration)
	fmt.Fprintf(&b, "  index:     %s\n", v.Index)

	if v.Kind == ErrIntegrity {
		fmt.Fprintf(&b, "  details:   %s\n", v.Details)

		return b.String()
	}

	fmt.Fprintf(&b, "  predicate: %s\n", v.Predicate)
	fmt.Fprintf(&b, "  sort:      %s\n", v.Sort)
	fmt.Fprintf(&b, "  indexed (%d): %s\n", len(v.Indexed), formatDocs(v.Indexed))
	fmt.Fprintf(&b, "  scanned (%d): %s\n", len(v.Scanned), formatDocs(v.Scanned))

	if v.Diff != "" {
		fmt.Fprintf(&b, "  diff (-indexed +scanned):\n%s", v.Diff)
	}

	return b.String()
}

func formatDocs(docs []Document) string {
	parts := make([]string, len(docs))
	for i, d := range docs {
		parts[i] = d.String()
	}

	return "[" + strings.Join(parts, ", ") + "]"
}

// storeErr wraps a collaborator failure as [ErrStore].
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStore, op, err)
}
