package state

import (
	"slices"

	"strata/internal/sym"
)

// SymbolReaper carries liveness information into RemoveDeadBindings and
// carries the results back out: the reaped store and the symbols whose
// bindings were dropped, so checkers can retire per-symbol bookkeeping
// against the same sweep.
type SymbolReaper struct {
	liveNodes map[uint32]struct{}
	liveSyms  map[sym.SymbolID]struct{}
	liveRegs  map[sym.RegionID]struct{}

	dead   map[sym.SymbolID]struct{}
	reaped *Store
}

// NewSymbolReaper constructs a reaper with empty live sets.
func NewSymbolReaper() *SymbolReaper {
	return &SymbolReaper{
		liveNodes: make(map[uint32]struct{}),
		liveSyms:  make(map[sym.SymbolID]struct{}),
		liveRegs:  make(map[sym.RegionID]struct{}),
		dead:      make(map[sym.SymbolID]struct{}),
	}
}

// MarkLiveNode declares an expression node still reachable.
func (r *SymbolReaper) MarkLiveNode(node uint32) { r.liveNodes[node] = struct{}{} }

func (r *SymbolReaper) IsLiveNode(node uint32) bool {
	_, ok := r.liveNodes[node]
	return ok
}

// MarkLiveSymbol declares a symbol live for this sweep.
func (r *SymbolReaper) MarkLiveSymbol(id sym.SymbolID) { r.liveSyms[id] = struct{}{} }

func (r *SymbolReaper) IsLiveSymbol(id sym.SymbolID) bool {
	_, ok := r.liveSyms[id]
	return ok
}

// MarkLiveRegion declares a region live for this sweep.
func (r *SymbolReaper) MarkLiveRegion(id sym.RegionID) { r.liveRegs[id] = struct{}{} }

func (r *SymbolReaper) IsLiveRegion(id sym.RegionID) bool {
	_, ok := r.liveRegs[id]
	return ok
}

func (r *SymbolReaper) noteDead(id sym.SymbolID) {
	if _, live := r.liveSyms[id]; !live {
		r.dead[id] = struct{}{}
	}
}

// DeadSymbols returns the symbols reaped by the sweep, in ascending
// order.
func (r *SymbolReaper) DeadSymbols() []sym.SymbolID {
	out := make([]sym.SymbolID, 0, len(r.dead))
	for id := range r.dead {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

func (r *SymbolReaper) deadSet() map[sym.SymbolID]struct{} { return r.dead }

// ReapedStore returns the store left after the sweep. Nil before
// RemoveDeadBindings ran.
func (r *SymbolReaper) ReapedStore() *Store { return r.reaped }

func (r *SymbolReaper) setReapedStore(s *Store) { r.reaped = s }
