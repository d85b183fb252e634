package idxcheck

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Field names a document field.
type Field string

// IDField is the identity field collaborators assign to stored documents.
// Queries that exclude identity never return it.
const IDField Field = "_id"

var universe = []Field{"a", "b", "c", "d", "e"}

// Universe returns the fixed, ordered set of fields a trial draws from.
func Universe() []Field {
	return slices.Clone(universe)
}

// Direction is a key order.
type Direction int

const (
	Ascending  Direction = 1
	Descending Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "1"
	case Descending:
		return "-1"
	default:
		panic(fmt.Sprintf("idxcheck: invalid direction %d", int(d)))
	}
}

// KeyPart is one field of an index or sort specification.
type KeyPart struct {
	Field     Field
	Direction Direction
}

// IndexSpec is the ordered key of a compound index.
type IndexSpec []KeyPart

// Fields returns the indexed fields in key order.
func (s IndexSpec) Fields() []Field {
	return keyFields(s)
}

func (s IndexSpec) String() string {
	return formatKey(s)
}

// SortSpec is the ordered sort requested by a query. It may disagree with
// the index direction for any field.
type SortSpec []KeyPart

// Fields returns the sorted fields in key order.
func (s SortSpec) Fields() []Field {
	return keyFields(s)
}

func (s SortSpec) String() string {
	return formatKey(s)
}

// Compare orders a and b by s. Fields missing from a document compare as 0.
func (s SortSpec) Compare(a, b Document) int {
	for _, part := range s {
		c := a[part.Field] - b[part.Field]
		if c == 0 {
			continue
		}

		if c < 0 {
			return -int(part.Direction)
		}

		return int(part.Direction)
	}

	return 0
}

func keyFields(parts []KeyPart) []Field {
	fields := make([]Field, len(parts))
	for i, p := range parts {
		fields[i] = p.Field
	}

	return fields
}

func formatKey(parts []KeyPart) string {
	var b strings.Builder

	b.WriteByte('{')

	for i, p := range parts {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(string(p.Field))
		b.WriteString(": ")
		b.WriteString(p.Direction.String())
	}

	b.WriteByte('}')

	return b.String()
}

// Document maps fields to small non-negative integers.
type Document map[Field]int

// Values returns the document's values for fields, in order.
func (d Document) Values(fields []Field) []int {
	out := make([]int, len(fields))
	for i, f := range fields {
		out[i] = d[f]
	}

	return out
}

// WithoutID returns a copy of d with [IDField] removed.
func (d Document) WithoutID() Document {
	out := make(Document, len(d))

	for f, v := range d {
		if f != IDField {
			out[f] = v
		}
	}

	return out
}

// Matches reports whether every field of template has the same value in d.
func (d Document) Matches(template Document) bool {
	for f, v := range template {
		got, ok := d[f]
		if !ok || got != v {
			return false
		}
	}

	return true
}

// String renders the document with fields in universe order, then _id.
func (d Document) String() string {
	var b strings.Builder

	b.WriteByte('{')

	first := true
	write := func(f Field, v int) {
		if !first {
			b.WriteString(", ")
		}

		first = false

		b.WriteString(string(f))
		b.WriteString(": ")
		b.WriteString(strconv.Itoa(v))
	}

	for _, f := range universe {
		if v, ok := d[f]; ok {
			write(f, v)
		}
	}

	if v, ok := d[IDField]; ok {
		write(IDField, v)
	}

	b.WriteByte('}')

	return b.String()
}

// Condition is a per-field query condition: either a [Range] or a [Membership].
type Condition interface {
	Matches(v int) bool
	String() string

	condition()
}

// Range matches values between Lower and Upper. Lower <= Upper always holds
// for generated ranges.
type Range struct {
	Lower          int
	LowerInclusive bool
	Upper          int
	UpperInclusive bool
}

func (Range) condition() {}

// Matches implements [Condition].
func (r Range) Matches(v int) bool {
	if r.LowerInclusive {
		if v < r.Lower {
			return false
		}
	} else if v <= r.Lower {
		return false
	}

	if r.UpperInclusive {
		return v <= r.Upper
	}

	return v < r.Upper
}

// LowerOp returns the query operator for the lower bound ($gte or $gt).
func (r Range) LowerOp() string {
	if r.LowerInclusive {
		return "$gte"
	}

	return "$gt"
}

// UpperOp returns the query operator for the upper bound ($lte or $lt).
func (r Range) UpperOp() string {
	if r.UpperInclusive {
		return "$lte"
	}

	return "$lt"
}

func (r Range) String() string {
	return fmt.Sprintf("{%s: %d, %s: %d}", r.LowerOp(), r.Lower, r.UpperOp(), r.Upper)
}

// Membership matches values equal to any listed value. An empty list matches
// nothing; duplicates are allowed.
type Membership struct {
	Values []int
}

func (Membership) condition() {}

// Matches implements [Condition].
func (m Membership) Matches(v int) bool {
	return slices.Contains(m.Values, v)
}

func (m Membership) String() string {
	parts := make([]string, len(m.Values))
	for i, v := range m.Values {
		parts[i] = strconv.Itoa(v)
	}

	return "{$in: [" + strings.Join(parts, ", ") + "]}"
}

// Clause binds a condition to a field.
type Clause struct {
	Field     Field
	Condition Condition
}

// Predicate is a conjunction of one clause per active field.
type Predicate []Clause

// Matches reports whether doc satisfies every clause. A missing field never
// matches.
func (p Predicate) Matches(doc Document) bool {
	for _, c := range p {
		v, ok := doc[c.Field]
		if !ok || !c.Condition.Matches(v) {
			return false
		}
	}

	return true
}

func (p Predicate) String() string {
	var b strings.Builder

	b.WriteByte('{')

	for i, c := range p {
		if i > 0 {
			b.WriteString(", ")
		}

		b.WriteString(string(c.Field))
		b.WriteString(": ")
		b.WriteString(c.Condition.String())
	}

	b.WriteByte('}')

	return b.String()
}
