package idxcheck

const (
	// MaxValue bounds document and query values to [0, MaxValue).
	MaxValue = 10

	// MaxMembership bounds the length of generated $in lists to [0, MaxMembership).
	MaxMembership = 15
)

// Generator derives schemas, indexes, documents, predicates and sort orders
// from a [Source]. It holds no other state.
type Generator struct {
	src Source
}

// NewGenerator returns a generator drawing from src.
func NewGenerator(src Source) *Generator {
	return &Generator{src: src}
}

// Schema picks the active fields for a trial: the first 1 to 5 fields of
// the universe, in universe order.
func (g *Generator) Schema() []Field {
	n := 1 + g.src.Int(len(universe))

	return Universe()[:n]
}

// IndexSpec picks an independent direction for each field.
func (g *Generator) IndexSpec(fields []Field) IndexSpec {
	return IndexSpec(g.keyParts(fields))
}

// SortSpec picks an independent direction for each field. It never looks at
// the index, so the two routinely disagree.
func (g *Generator) SortSpec(fields []Field) SortSpec {
	return SortSpec(g.keyParts(fields))
}

func (g *Generator) keyParts(fields []Field) []KeyPart {
	parts := make([]KeyPart, len(fields))

	for i, f := range fields {
		dir := Descending
		if g.src.Bool(0.5) {
			dir = Ascending
		}

		parts[i] = KeyPart{Field: f, Direction: dir}
	}

	return parts
}

// Value draws a single value from the document value range.
func (g *Generator) Value() int {
	return g.src.Int(MaxValue)
}

// Document draws one value per field. The same shape serves as an insert
// payload and as a delete-by-example template.
func (g *Generator) Document(fields []Field) Document {
	doc := make(Document, len(fields))
	for _, f := range fields {
		doc[f] = g.Value()
	}

	return doc
}

// Predicate picks, per field, either a [Range] or a [Membership] condition
// over the document value range.
func (g *Generator) Predicate(fields []Field) Predicate {
	pred := make(Predicate, len(fields))

	for i, f := range fields {
		var cond Condition
		if g.src.Bool(0.5) {
			cond = g.rangeCondition()
		} else {
			cond = g.membership()
		}

		pred[i] = Clause{Field: f, Condition: cond}
	}

	return pred
}

func (g *Generator) rangeCondition() Range {
	lo, hi := g.Value(), g.Value()
	if lo > hi {
		lo, hi = hi, lo
	}

	return Range{
		Lower:          lo,
		LowerInclusive: g.src.Bool(0.5),
		Upper:          hi,
		UpperInclusive: g.src.Bool(0.5),
	}
}

func (g *Generator) membership() Membership {
	n := g.src.Int(MaxMembership)

	values := make([]int, n)
	for i := range values {
		values[i] = g.Value()
	}

	return Membership{Values: values}
}
