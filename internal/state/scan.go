package state

import (
	"slices"

	"strata/internal/sym"
)

// ScanVisitor receives every symbol and region reachable from the scan
// roots. Returning false from VisitSymbol aborts the whole scan and that
// result propagates out of ScanReachable. A nil callback accepts
// everything.
type ScanVisitor struct {
	VisitSymbol func(sym.SymbolID) bool
	VisitRegion func(sym.RegionID) bool
}

// ScanReachable enumerates, depth-first, every symbol and region
// transitively reachable from the given values through state bindings.
// Each symbol and region is visited exactly once, so aliasing cycles in
// the store terminate. For a fixed state the traversal order is
// deterministic: a region's own value is explored before its sub-region
// bindings, and sub-regions are taken in ascending region order.
// Returns false when the visitor aborted the scan.
func (m *Manager) ScanReachable(s *ProgramState, roots []sym.SVal, v ScanVisitor) bool {
	sc := &scanner{
		mgr:         m,
		state:       s,
		visitor:     v,
		visitedSyms: make(map[sym.SymbolID]struct{}),
		visitedRegs: make(map[sym.RegionID]struct{}),
	}
	for _, root := range roots {
		if !sc.scanVal(root) {
			return false
		}
	}
	return true
}

type scanner struct {
	mgr         *Manager
	state       *ProgramState
	visitor     ScanVisitor
	visitedSyms map[sym.SymbolID]struct{}
	visitedRegs map[sym.RegionID]struct{}
}

func (sc *scanner) scanVal(v sym.SVal) bool {
	switch v.Kind {
	case sym.ValSym:
		return sc.scanSymbol(v.Sym)
	case sym.ValRegion:
		return sc.scanRegion(v.Reg)
	default:
		return true
	}
}

func (sc *scanner) scanSymbol(id sym.SymbolID) bool {
	if id == sym.NoSymbolID {
		return true
	}
	if _, seen := sc.visitedSyms[id]; seen {
		return true
	}
	sc.visitedSyms[id] = struct{}{}

	if sc.visitor.VisitSymbol != nil && !sc.visitor.VisitSymbol(id) {
		return false
	}

	desc, ok := sc.mgr.syms.Symbol(id)
	if !ok {
		return true
	}
	switch desc.Kind {
	case sym.SymDerived:
		if !sc.scanSymbol(desc.Parent) {
			return false
		}
		return sc.scanRegion(desc.Region)
	case sym.SymExtent:
		return sc.scanRegion(desc.Region)
	case sym.SymBinOp:
		if !sc.scanSymbol(desc.LHS) {
			return false
		}
		return sc.scanSymbol(desc.RHSSym)
	default:
		return true
	}
}

func (sc *scanner) scanRegion(id sym.RegionID) bool {
	if id == sym.NoRegionID {
		return true
	}
	if _, seen := sc.visitedRegs[id]; seen {
		return true
	}
	sc.visitedRegs[id] = struct{}{}

	if sc.visitor.VisitRegion != nil && !sc.visitor.VisitRegion(id) {
		return false
	}

	desc, ok := sc.mgr.syms.Region(id)
	if !ok {
		return true
	}
	// A live sub-region keeps its ancestors and its index expression
	// reachable.
	if desc.Parent != sym.NoRegionID {
		if !sc.scanRegion(desc.Parent) {
			return false
		}
	}
	if desc.Kind == sym.RegionElem {
		if !sc.scanVal(desc.Index) {
			return false
		}
	}

	// The region's own value first, then values bound under it.
	if val, ok := sc.mgr.storeMgr.Lookup(sc.state.store, id); ok {
		if !sc.scanVal(val) {
			return false
		}
	}
	return sc.scanSubBindings(id)
}

func (sc *scanner) scanSubBindings(id sym.RegionID) bool {
	var subs []sym.RegionID
	for bound := range sc.state.store.bindings {
		if bound != id && sc.mgr.syms.IsSubRegionOf(bound, id) {
			subs = append(subs, bound)
		}
	}
	slices.Sort(subs)
	for _, sub := range subs {
		if !sc.scanRegion(sub) {
			return false
		}
	}
	return true
}
