package constraint

import (
	"hash/fnv"
	"slices"

	"strata/internal/sym"
)

// Set is an immutable mapping from symbol to its feasible value range.
// Absence of an entry means the full range. Sets are shared between
// program states; they are never mutated after construction.
type Set struct {
	ranges map[sym.SymbolID]Range
	digest uint64
}

func newSet(ranges map[sym.SymbolID]Range) *Set {
	s := &Set{ranges: ranges}
	s.digest = s.computeDigest()
	return s
}

// Digest returns a structural hash of the constraint contents.
func (s *Set) Digest() uint64 {
	if s == nil {
		return 0
	}
	return s.digest
}

func (s *Set) computeDigest() uint64 {
	ids := make([]sym.SymbolID, 0, len(s.ranges))
	for id := range s.ranges {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	h := fnv.New64a()
	var buf [8]byte
	put := func(v uint64) {
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
		h.Write(buf[:])
	}
	for _, id := range ids {
		r := s.ranges[id]
		put(uint64(id))
		put(uint64(r.Lo))
		put(uint64(r.Hi))
	}
	return h.Sum64()
}

// Range returns the feasible range for a symbol. Unconstrained symbols
// get the full range.
func (s *Set) Range(id sym.SymbolID) Range {
	if s != nil {
		if r, ok := s.ranges[id]; ok {
			return r
		}
	}
	return FullRange()
}

// Constrained reports whether the set carries an entry for the symbol.
func (s *Set) Constrained(id sym.SymbolID) bool {
	if s == nil {
		return false
	}
	_, ok := s.ranges[id]
	return ok
}

// CanBeZero reports whether zero is still feasible for the symbol.
func (s *Set) CanBeZero(id sym.SymbolID) bool {
	return s.Range(id).Contains(0)
}

// IsZero reports whether the symbol is pinned to exactly zero.
func (s *Set) IsZero(id sym.SymbolID) bool {
	p, ok := s.Range(id).Point()
	return ok && p == 0
}

// Len returns the number of constrained symbols.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ranges)
}

// ConstrainedSymbols returns the symbols carrying entries, in ascending
// order.
func (s *Set) ConstrainedSymbols() []sym.SymbolID {
	if s == nil {
		return nil
	}
	out := make([]sym.SymbolID, 0, len(s.ranges))
	for id := range s.ranges {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Equal compares constraint contents structurally.
func (s *Set) Equal(other *Set) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil {
		return s.Len() == 0 && other.Len() == 0
	}
	if len(s.ranges) != len(other.ranges) {
		return false
	}
	for id, r := range s.ranges {
		if or, ok := other.ranges[id]; !ok || or != r {
			return false
		}
	}
	return true
}

// withRange returns a copy of the set carrying the given range. Returns
// the receiver when nothing changes.
func (s *Set) withRange(id sym.SymbolID, r Range) *Set {
	if existing, ok := s.ranges[id]; ok && existing == r {
		return s
	}
	next := make(map[sym.SymbolID]Range, len(s.ranges)+1)
	for k, v := range s.ranges {
		next[k] = v
	}
	next[id] = r
	return newSet(next)
}

// Without returns a copy of the set with entries for the given symbols
// removed. Returns the receiver when none are present.
func (s *Set) Without(ids map[sym.SymbolID]struct{}) *Set {
	if s == nil || len(ids) == 0 {
		return s
	}
	touched := false
	for id := range ids {
		if _, ok := s.ranges[id]; ok {
			touched = true
			break
		}
	}
	if !touched {
		return s
	}
	next := make(map[sym.SymbolID]Range, len(s.ranges))
	for k, v := range s.ranges {
		if _, dead := ids[k]; !dead {
			next[k] = v
		}
	}
	return newSet(next)
}
