package idxcheck

import "context"

// Collection is the store under test.
//
// Implementations are driven from a single goroutine; every call completes
// before the next one is issued.
type Collection interface {
	// Reset drops all documents and indexes and prepares the collection for
	// documents over fields.
	Reset(ctx context.Context, fields []Field) error

	// CreateIndex builds the compound index described by spec.
	CreateIndex(ctx context.Context, spec IndexSpec) error

	// Insert stores doc under a fresh identity.
	Insert(ctx context.Context, doc Document) error

	// DeleteByExample removes every document whose fields equal template's
	// and returns how many were removed. Zero matches is not an error.
	DeleteByExample(ctx context.Context, template Document) (int, error)

	// Query returns the documents matching q.Predicate ordered by q.Sort,
	// executed the way q.Hint forces.
	Query(ctx context.Context, q Query) ([]Document, error)

	// Validate checks the structural integrity of the collection and its
	// indexes.
	Validate(ctx context.Context) (Validation, error)
}

// Query is a single find request.
type Query struct {
	Predicate Predicate
	Sort      SortSpec
	Hint      Hint

	// ExcludeID drops [IDField] from returned documents.
	ExcludeID bool
}

// Hint forces the execution path of a query: either a full natural-order
// scan or a specific index.
type Hint struct {
	natural bool
	index   IndexSpec
}

// NaturalOrder forces an unindexed full collection scan.
var NaturalOrder = Hint{natural: true}

// UseIndex forces the query through the index built from spec.
func UseIndex(spec IndexSpec) Hint {
	return Hint{index: spec}
}

// Natural reports whether h forces a natural-order scan.
func (h Hint) Natural() bool {
	return h.natural
}

// Index returns the forced index. Only meaningful when !h.Natural().
func (h Hint) Index() IndexSpec {
	return h.index
}

func (h Hint) String() string {
	if h.natural {
		return "{$natural: 1}"
	}

	return h.index.String()
}

// Validation is the outcome of [Collection.Validate].
type Validation struct {
	Valid   bool
	Details string
}
