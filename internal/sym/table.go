package sym

import (
	"fmt"

	"fortio.org/safecast"
)

// Table interns symbols and regions by structural descriptor and hands out
// stable uint32 IDs. One Table serves one analysis; it is not safe for
// concurrent use.
type Table struct {
	symbols  []Symbol
	symIndex map[Symbol]SymbolID
	regions  []Region
	regIndex map[Region]RegionID
	children map[RegionID][]RegionID

	conjureSeq uint32
	heapSeq    uint32
}

// NewTable constructs an empty table. ID 0 of each space is reserved as
// the invalid sentinel.
func NewTable() *Table {
	t := &Table{
		symIndex: make(map[Symbol]SymbolID, 64),
		regIndex: make(map[Region]RegionID, 64),
		children: make(map[RegionID][]RegionID),
	}
	t.symbols = append(t.symbols, Symbol{})
	t.regions = append(t.regions, Region{})
	return t
}

func (t *Table) internSymbol(s Symbol) SymbolID {
	if id, ok := t.symIndex[s]; ok {
		return id
	}
	lenSyms, err := safecast.Conv[uint32](len(t.symbols))
	if err != nil {
		panic(fmt.Errorf("len(symbols) overflow: %w", err))
	}
	id := SymbolID(lenSyms)
	t.symbols = append(t.symbols, s)
	t.symIndex[s] = id
	return id
}

func (t *Table) internRegion(r Region) RegionID {
	if id, ok := t.regIndex[r]; ok {
		return id
	}
	lenRegs, err := safecast.Conv[uint32](len(t.regions))
	if err != nil {
		panic(fmt.Errorf("len(regions) overflow: %w", err))
	}
	id := RegionID(lenRegs)
	t.regions = append(t.regions, r)
	t.regIndex[r] = id
	if r.Parent != NoRegionID {
		t.children[r.Parent] = append(t.children[r.Parent], id)
	}
	return id
}

// Conjure creates a fresh unknown symbol for the given program point.
// Repeated calls for the same point yield distinct symbols.
func (t *Table) Conjure(origin uint32) SymbolID {
	t.conjureSeq++
	return t.internSymbol(Symbol{Kind: SymConjured, Origin: origin, Seq: t.conjureSeq})
}

// Derived returns the symbol standing for the value read from region
// through the given parent symbol. Interned: same parent and region give
// the same symbol.
func (t *Table) Derived(parent SymbolID, region RegionID) SymbolID {
	if parent == NoSymbolID || region == NoRegionID {
		return NoSymbolID
	}
	return t.internSymbol(Symbol{Kind: SymDerived, Parent: parent, Region: region})
}

// Extent returns the symbol standing for the size of a region.
func (t *Table) Extent(region RegionID) SymbolID {
	if region == NoRegionID {
		return NoSymbolID
	}
	return t.internSymbol(Symbol{Kind: SymExtent, Region: region})
}

// BinOp returns the symbolic expression "lhs op rhs" with a constant
// right operand.
func (t *Table) BinOp(lhs SymbolID, op Op, rhs int64) SymbolID {
	if lhs == NoSymbolID || op == OpInvalid {
		return NoSymbolID
	}
	return t.internSymbol(Symbol{Kind: SymBinOp, LHS: lhs, Op: op, RHS: rhs})
}

// BinOpSym returns the symbolic expression "lhs op rhs" with a symbolic
// right operand.
func (t *Table) BinOpSym(lhs SymbolID, op Op, rhs SymbolID) SymbolID {
	if lhs == NoSymbolID || rhs == NoSymbolID || op == OpInvalid {
		return NoSymbolID
	}
	return t.internSymbol(Symbol{Kind: SymBinOp, LHS: lhs, Op: op, RHSSym: rhs})
}

// Symbol returns the descriptor for an ID.
func (t *Table) Symbol(id SymbolID) (Symbol, bool) {
	if id == NoSymbolID || int(id) >= len(t.symbols) {
		return Symbol{}, false
	}
	return t.symbols[id], true
}

// MustSymbol panics when id is invalid.
func (t *Table) MustSymbol(id SymbolID) Symbol {
	s, ok := t.Symbol(id)
	if !ok {
		panic("sym: invalid SymbolID")
	}
	return s
}

// VarRegion returns the region for a named slot in a stack frame.
func (t *Table) VarRegion(name string, frame uint32) RegionID {
	return t.internRegion(Region{Kind: RegionVar, Name: name, Frame: frame})
}

// GlobalRegion returns the region for package-level storage.
func (t *Table) GlobalRegion(name string) RegionID {
	return t.internRegion(Region{Kind: RegionGlobal, Name: name})
}

// FieldRegion returns the region for a named field of parent.
func (t *Table) FieldRegion(parent RegionID, name string) RegionID {
	if parent == NoRegionID {
		return NoRegionID
	}
	return t.internRegion(Region{Kind: RegionField, Parent: parent, Name: name})
}

// ElemRegion returns the region for an indexed element of parent.
func (t *Table) ElemRegion(parent RegionID, index SVal) RegionID {
	if parent == NoRegionID {
		return NoRegionID
	}
	return t.internRegion(Region{Kind: RegionElem, Parent: parent, Index: index})
}

// HeapRegion creates a region for an allocation site. Every call yields a
// distinct region so separate allocations never alias.
func (t *Table) HeapRegion(origin uint32) RegionID {
	t.heapSeq++
	return t.internRegion(Region{Kind: RegionHeap, Origin: origin, Seq: t.heapSeq})
}

// Region returns the descriptor for an ID.
func (t *Table) Region(id RegionID) (Region, bool) {
	if id == NoRegionID || int(id) >= len(t.regions) {
		return Region{}, false
	}
	return t.regions[id], true
}

// MustRegion panics when id is invalid.
func (t *Table) MustRegion(id RegionID) Region {
	r, ok := t.Region(id)
	if !ok {
		panic("sym: invalid RegionID")
	}
	return r
}

// SubRegions returns the regions directly derived from parent, in
// creation order.
func (t *Table) SubRegions(parent RegionID) []RegionID {
	return t.children[parent]
}

// Base follows the parent chain to the outermost region.
func (t *Table) Base(id RegionID) RegionID {
	for {
		r, ok := t.Region(id)
		if !ok || r.Parent == NoRegionID {
			return id
		}
		id = r.Parent
	}
}

// IsSubRegionOf reports whether id is ancestor itself or lies anywhere
// under it.
func (t *Table) IsSubRegionOf(id, ancestor RegionID) bool {
	for id != NoRegionID {
		if id == ancestor {
			return true
		}
		r, ok := t.Region(id)
		if !ok {
			return false
		}
		id = r.Parent
	}
	return false
}

// SymbolCount returns the number of interned symbols, sentinel included.
func (t *Table) SymbolCount() int { return len(t.symbols) }

// RegionCount returns the number of interned regions, sentinel included.
func (t *Table) RegionCount() int { return len(t.regions) }
