package idxcheck

import (
	"fmt"
	"math/rand/v2"
)

// Source supplies the randomness for every generator.
//
// Implementations must be deterministic for a given starting state.
type Source interface {
	// Int returns a value in [0, bound). Panics if bound <= 0.
	Int(bound int) int

	// Bool returns true with probability p.
	Bool(p float64) bool
}

// Rand is a reseedable [Source] backed by a PCG generator.
//
// Not safe for concurrent use.
type Rand struct {
	seed uint64
	rng  *rand.Rand
}

// NewRand returns a source seeded with seed.
func NewRand(seed uint64) *Rand {
	r := &Rand{}
	r.Reseed(seed)

	return r
}

// Seed returns the seed the source was last (re)seeded with.
func (r *Rand) Seed() uint64 {
	return r.seed
}

// Reseed resets the source to the start of the sequence for seed.
func (r *Rand) Reseed(seed uint64) {
	r.seed = seed
	r.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Int implements [Source].
func (r *Rand) Int(bound int) int {
	if bound <= 0 {
		panic(fmt.Sprintf("idxcheck: Int bound must be positive, got %d", bound))
	}

	return r.rng.IntN(bound)
}

// Bool implements [Source].
func (r *Rand) Bool(p float64) bool {
	return r.rng.Float64() < p
}

// ByteStream is a [Source] that reads values sequentially from a byte slice.
//
// Used by fuzz tests to derive generator output from fuzz input. When the
// stream is exhausted all reads return zero values, so the same input always
// produces the same sequence.
type ByteStream struct {
	bytes []byte
	pos   int
}

// NewByteStream creates a stream over b.
func NewByteStream(b []byte) *ByteStream {
	return &ByteStream{bytes: b}
}

// HasMore reports whether unread bytes remain.
func (s *ByteStream) HasMore() bool {
	return s.pos < len(s.bytes)
}

// NextByte returns the next byte, or 0 if exhausted.
func (s *ByteStream) NextByte() byte {
	if s.pos >= len(s.bytes) {
		return 0
	}

	v := s.bytes[s.pos]
	s.pos++

	return v
}

// Int implements [Source].
func (s *ByteStream) Int(bound int) int {
	if bound <= 0 {
		panic(fmt.Sprintf("idxcheck: Int bound must be positive, got %d", bound))
	}

	return int(s.NextByte()) % bound
}

// Bool implements [Source]. The byte is compared against p scaled to 256.
func (s *ByteStream) Bool(p float64) bool {
	return float64(s.NextByte()) < p*256
}
