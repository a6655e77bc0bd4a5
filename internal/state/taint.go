package state

import (
	"hash/fnv"
	"slices"

	"strata/internal/sym"
)

// TaintKind classifies the untrusted source a value came from. Checkers
// pick their own kinds; zero is reserved.
type TaintKind uint16

// TaintGeneric is the default classification.
const TaintGeneric TaintKind = 1

// taintMap is the taint trait: an immutable symbol→kind map stored in
// the generic data map.
type taintMap struct {
	m      map[sym.SymbolID]TaintKind
	digest uint64
}

func newTaintMap(m map[sym.SymbolID]TaintKind) *taintMap {
	t := &taintMap{m: m}
	t.digest = t.computeDigest()
	return t
}

func (t *taintMap) Digest() uint64 { return t.digest }

func (t *taintMap) Equal(other GenericValue) bool {
	o, ok := other.(*taintMap)
	if !ok || len(t.m) != len(o.m) {
		return false
	}
	for k, v := range t.m {
		if ov, ok := o.m[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func (t *taintMap) computeDigest() uint64 {
	ids := make([]sym.SymbolID, 0, len(t.m))
	for id := range t.m {
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
		put(uint64(id))
		put(uint64(t.m[id]))
	}
	return h.Sum64()
}

func (m *Manager) taintOf(s *ProgramState) *taintMap {
	if v, ok := s.Trait(m.taintKey); ok {
		return v.(*taintMap)
	}
	return nil
}

// AddTaint tags a symbol with a taint kind, producing a new state.
func (m *Manager) AddTaint(s *ProgramState, id sym.SymbolID, kind TaintKind) *ProgramState {
	if id == sym.NoSymbolID || kind == 0 {
		return s
	}
	existing := m.taintOf(s)
	if existing != nil {
		if k, ok := existing.m[id]; ok && k == kind {
			return s
		}
	}
	next := make(map[sym.SymbolID]TaintKind, 1)
	if existing != nil {
		for k, v := range existing.m {
			next[k] = v
		}
	}
	next[id] = kind
	return s.WithTrait(m.taintKey, newTaintMap(next))
}

// PruneTaint retires taint entries for symbols that no longer exist,
// typically the invalidated or reaped set from a sweep.
func (m *Manager) PruneTaint(s *ProgramState, dead []sym.SymbolID) *ProgramState {
	existing := m.taintOf(s)
	if existing == nil {
		return s
	}
	doomed := 0
	for _, id := range dead {
		if _, ok := existing.m[id]; ok {
			doomed++
		}
	}
	if doomed == 0 {
		return s
	}
	if doomed == len(existing.m) {
		return s.WithoutTrait(m.taintKey)
	}
	next := make(map[sym.SymbolID]TaintKind, len(existing.m)-doomed)
	for k, v := range existing.m {
		next[k] = v
	}
	for _, id := range dead {
		delete(next, id)
	}
	return s.WithTrait(m.taintKey, newTaintMap(next))
}

// IsTainted answers the taint query for any value. Symbols recurse
// through derived-symbol parent chains and expression operands; region
// pointers recurse through parent regions and element index expressions.
func (m *Manager) IsTainted(s *ProgramState, v sym.SVal, kind TaintKind) bool {
	switch v.Kind {
	case sym.ValSym:
		return m.IsTaintedSymbol(s, v.Sym, kind)
	case sym.ValRegion:
		return m.IsTaintedRegion(s, v.Reg, kind)
	default:
		return false
	}
}

// IsTaintedSymbol reports whether the symbol is tainted with kind,
// directly or through its parents.
func (m *Manager) IsTaintedSymbol(s *ProgramState, id sym.SymbolID, kind TaintKind) bool {
	if id == sym.NoSymbolID {
		return false
	}
	if tm := m.taintOf(s); tm != nil {
		if k, ok := tm.m[id]; ok && k == kind {
			return true
		}
	}
	desc, ok := m.syms.Symbol(id)
	if !ok {
		return false
	}
	switch desc.Kind {
	case sym.SymDerived:
		return m.IsTaintedSymbol(s, desc.Parent, kind)
	case sym.SymBinOp:
		return m.IsTaintedSymbol(s, desc.LHS, kind) || m.IsTaintedSymbol(s, desc.RHSSym, kind)
	default:
		return false
	}
}

// IsTaintedRegion reports whether a compound region is tainted: either
// its parent region is, or its index expression is.
func (m *Manager) IsTaintedRegion(s *ProgramState, id sym.RegionID, kind TaintKind) bool {
	desc, ok := m.syms.Region(id)
	if !ok {
		return false
	}
	if desc.Kind == sym.RegionElem && m.IsTainted(s, desc.Index, kind) {
		return true
	}
	if desc.Parent != sym.NoRegionID {
		return m.IsTaintedRegion(s, desc.Parent, kind)
	}
	return false
}
