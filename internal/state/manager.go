package state

import (
	"fmt"
	"slices"

	"strata/internal/constraint"
	"strata/internal/sym"
)

// RegionChangeListener is the optional capability an attached exploration
// engine implements to react to region invalidation. The manager probes
// WantsRegionChanges before routing anything through it.
type RegionChangeListener interface {
	WantsRegionChanges() bool
	// ProcessRegionChanges receives the pre-invalidation state, the
	// invalidated regions, and the post-invalidation state, and may
	// derive a further state (e.g. to drop dependent caches).
	ProcessRegionChanges(old *ProgramState, regions []sym.RegionID, next *ProgramState) *ProgramState
}

type stateKey struct {
	env, store, gen, cons uint64
}

// Manager is the single authority for creating, transforming, and
// interning program states. Every transform returns an already-interned
// state and never mutates its input; "the same pointer back" is the
// no-information signal, never an error. One Manager serves one
// single-threaded exploration.
type Manager struct {
	syms     *sym.Table
	storeMgr StoreManager
	consMgr  *constraint.Manager
	listener RegionChangeListener

	intern map[stateKey][]*ProgramState
	recent []*ProgramState
	free   []*ProgramState
	nextID StateID

	taintKey *TraitKey
}

// NewManager wires the sub-managers together. The listener may be nil.
func NewManager(syms *sym.Table, storeMgr StoreManager, consMgr *constraint.Manager, listener RegionChangeListener) *Manager {
	return &Manager{
		syms:     syms,
		storeMgr: storeMgr,
		consMgr:  consMgr,
		listener: listener,
		intern:   make(map[stateKey][]*ProgramState, 256),
		taintKey: NewTraitKey("taint"),
	}
}

// Symbols returns the symbol table the manager operates on.
func (m *Manager) Symbols() *sym.Table { return m.syms }

// StoreManager returns the attached store manager.
func (m *Manager) StoreManager() StoreManager { return m.storeMgr }

// InitialState returns the canonical state with an empty environment,
// the store manager's initial store, and no constraints. Never fails.
func (m *Manager) InitialState() *ProgramState {
	return m.persist(emptyEnv, m.storeMgr.Initial(), emptyGenerics, m.consMgr.EmptySet())
}

// persist is the interning primitive: the only path by which a state
// becomes visible. Structurally equal content always resolves to the one
// canonical instance.
func (m *Manager) persist(env *Environment, store *Store, gen *generics, cons *constraint.Set) *ProgramState {
	key := stateKey{env: env.Digest(), store: store.Digest(), gen: gen.digest, cons: cons.Digest()}
	for _, st := range m.intern[key] {
		if st.equalContents(env, store, gen, cons) {
			return st
		}
	}

	var st *ProgramState
	if n := len(m.free); n > 0 {
		st = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		st = new(ProgramState)
	}
	m.nextID++
	*st = ProgramState{mgr: m, env: env, store: store, gen: gen, cons: cons, id: m.nextID}
	m.intern[key] = append(m.intern[key], st)
	m.recent = append(m.recent, st)
	return st
}

// derive re-interns changed content, or returns s itself when nothing
// changed.
func (m *Manager) derive(s *ProgramState, env *Environment, store *Store, gen *generics, cons *constraint.Set) *ProgramState {
	if env == s.env && store == s.store && gen == s.gen && cons == s.cons {
		return s
	}
	return m.persist(env, store, gen, cons)
}

// BindNode records the value computed for an expression node.
func (m *Manager) BindNode(s *ProgramState, node uint32, val sym.SVal) *ProgramState {
	return m.derive(s, s.env.Bind(node, val), s.store, s.gen, s.cons)
}

// UnbindNode drops the environment entry for a node.
func (m *Manager) UnbindNode(s *ProgramState, node uint32) *ProgramState {
	return m.derive(s, s.env.Remove(node), s.store, s.gen, s.cons)
}

// BindLoc binds val at the location. An unknown location degrades to a
// no-op; a non-region location is a caller bug. The attached engine gets
// a chance to react to the region change.
func (m *Manager) BindLoc(s *ProgramState, loc, val sym.SVal) *ProgramState {
	if loc.IsUnknownOrUndef() {
		return s
	}
	region, ok := loc.AsRegion()
	if !ok {
		panic(fmt.Sprintf("state: BindLoc on non-location value %v", loc))
	}
	next := m.derive(s, s.env, m.storeMgr.Bind(s.store, region, val), s.gen, s.cons)
	return m.notifyRegionChanges(s, []sym.RegionID{region}, next)
}

// BindDefault establishes a default binding covering a whole aggregate.
func (m *Manager) BindDefault(s *ProgramState, loc, val sym.SVal) *ProgramState {
	if loc.IsUnknownOrUndef() {
		return s
	}
	region, ok := loc.AsRegion()
	if !ok {
		panic(fmt.Sprintf("state: BindDefault on non-location value %v", loc))
	}
	next := m.derive(s, s.env, m.storeMgr.BindDefault(s.store, region, val), s.gen, s.cons)
	return m.notifyRegionChanges(s, []sym.RegionID{region}, next)
}

// UnbindLoc removes the direct binding for a scalar location. Locations
// with tracked sub-structure must go through InvalidateRegions instead;
// violating that is a caller bug, not a runtime condition.
func (m *Manager) UnbindLoc(s *ProgramState, loc sym.SVal) *ProgramState {
	if loc.IsUnknownOrUndef() {
		return s
	}
	region, ok := loc.AsRegion()
	if !ok {
		panic(fmt.Sprintf("state: UnbindLoc on non-location value %v", loc))
	}
	if len(m.syms.SubRegions(region)) > 0 {
		panic(fmt.Sprintf("state: UnbindLoc on tracked region #%d; use InvalidateRegions", region))
	}
	return m.derive(s, s.env, m.storeMgr.Unbind(s.store, region), s.gen, s.cons)
}

// InvalidateRegions conservatively destroys all knowledge about the
// given regions, appending the retired symbols to invalidated so
// checkers can cross-reference stale facts. The attached engine is
// routed the old region list and the new state before it is returned.
func (m *Manager) InvalidateRegions(s *ProgramState, regions []sym.RegionID, origin uint32, invalidated *[]sym.SymbolID, globals bool) *ProgramState {
	if len(regions) == 0 && !globals {
		return s
	}
	store := m.storeMgr.InvalidateRegions(s.store, regions, origin, invalidated, globals)
	next := m.derive(s, s.env, store, s.gen, s.cons)
	return m.notifyRegionChanges(s, regions, next)
}

func (m *Manager) notifyRegionChanges(old *ProgramState, regions []sym.RegionID, next *ProgramState) *ProgramState {
	if m.listener == nil || !m.listener.WantsRegionChanges() {
		return next
	}
	if processed := m.listener.ProcessRegionChanges(old, regions, next); processed != nil {
		return processed
	}
	return next
}

// RemoveDeadBindings is the mark-and-sweep pass keeping state size
// bounded: starting from nodes and regions declared live on the reaper,
// it keeps only reachable bindings, compacts the store, prunes
// constraints on reaped symbols, and records the reaped store on the
// reaper for checkers to consult.
func (m *Manager) RemoveDeadBindings(s *ProgramState, reaper *SymbolReaper) *ProgramState {
	// Mark phase. Roots are the values of live nodes plus regions the
	// caller declared live up front.
	marker := ScanVisitor{
		VisitSymbol: func(id sym.SymbolID) bool {
			reaper.MarkLiveSymbol(id)
			return true
		},
		VisitRegion: func(id sym.RegionID) bool {
			reaper.MarkLiveRegion(id)
			return true
		},
	}
	roots := make([]sym.SVal, 0, len(reaper.liveRegs)+s.env.Len())
	for _, region := range sortedRegions(reaper.liveRegs) {
		roots = append(roots, sym.RegionVal(region))
	}
	env := s.env
	for _, node := range s.env.Nodes() {
		val, _ := s.env.Lookup(node)
		if reaper.IsLiveNode(node) {
			roots = append(roots, val)
		} else {
			env = env.Remove(node)
		}
	}
	m.ScanReachable(s, roots, marker)

	// Sweep phase.
	store := m.storeMgr.RemoveDeadBindings(s.store, reaper)
	reaper.setReapedStore(store)

	dead := reaper.deadSet()
	for _, id := range s.cons.ConstrainedSymbols() {
		if !reaper.IsLiveSymbol(id) {
			dead[id] = struct{}{}
		}
	}
	cons := s.cons.Without(dead)

	return m.derive(s, env, store, s.gen, cons)
}

// ExitFrame drops every binding rooted in a variable of the given stack
// frame, modeling a function return.
func (m *Manager) ExitFrame(s *ProgramState, frame uint32) *ProgramState {
	store := s.store
	for _, region := range s.store.Regions() {
		base, ok := m.syms.Region(m.syms.Base(region))
		if ok && base.Kind == sym.RegionVar && base.Frame == frame {
			store = m.storeMgr.Unbind(store, region)
		}
	}
	return m.derive(s, s.env, store, s.gen, s.cons)
}

// Assume refines the state with cond holding (per sense). Returns the
// input unchanged when nothing is learned, nil when infeasible.
func (m *Manager) Assume(s *ProgramState, cond sym.SVal, sense bool) *ProgramState {
	cons := m.consMgr.Assume(s.cons, cond, sense)
	if cons == nil {
		return nil
	}
	return m.derive(s, s.env, s.store, s.gen, cons)
}

// AssumeBoth forks the state on a condition. Either result may be nil
// when that branch is infeasible.
func (m *Manager) AssumeBoth(s *ProgramState, cond sym.SVal) (ifTrue, ifFalse *ProgramState) {
	return m.Assume(s, cond, true), m.Assume(s, cond, false)
}

// AssumeInBound derives a state asserting (or denying) 0 <= index <
// upperBound. Under-constrained operands never fail: the original state
// comes back unchanged, reference-equal.
func (m *Manager) AssumeInBound(s *ProgramState, index, upperBound sym.SVal, assumption bool) *ProgramState {
	if index.IsUnknownOrUndef() || upperBound.IsUnknownOrUndef() {
		return s
	}

	if i, iok := index.AsInt(); iok {
		if b, bok := upperBound.AsInt(); bok {
			inBound := i >= 0 && i < b
			if inBound == assumption {
				return s
			}
			return nil
		}
		// Concrete index, symbolic bound: in-bound reduces to bound > i.
		if i < 0 {
			if assumption {
				return nil
			}
			return s
		}
		boundSym, ok := upperBound.AsSymbol()
		if !ok {
			return s
		}
		return m.Assume(s, sym.SymVal(m.syms.BinOp(boundSym, sym.OpGT, i)), assumption)
	}

	idxSym, ok := index.AsSymbol()
	if !ok {
		return s
	}
	lower := sym.SymVal(m.syms.BinOp(idxSym, sym.OpGE, 0))
	var upper sym.SVal
	if b, bok := upperBound.AsInt(); bok {
		upper = sym.SymVal(m.syms.BinOp(idxSym, sym.OpLT, b))
	} else if boundSym, sok := upperBound.AsSymbol(); sok {
		upper = sym.SymVal(m.syms.BinOpSym(idxSym, sym.OpLT, boundSym))
	} else {
		return s
	}

	if assumption {
		st := m.Assume(s, lower, true)
		if st == nil {
			return nil
		}
		return m.Assume(st, upper, true)
	}
	// Out-of-bound is a disjunction the range model cannot carry whole;
	// prefer the upper violation, fall back to the lower one.
	if st := m.Assume(s, upper, false); st != nil {
		return st
	}
	return m.Assume(s, lower, false)
}

// RecycleUnusedStates sweeps states allocated since the last sweep and
// returns unreferenced ones to the free list. An amortization device,
// not a correctness requirement; safe at any point between exploration
// steps.
func (m *Manager) RecycleUnusedStates() int {
	recycled := 0
	kept := m.recent[:0]
	for _, st := range m.recent {
		if st.refs > 0 {
			kept = append(kept, st)
			continue
		}
		m.dropFromIntern(st)
		*st = ProgramState{}
		m.free = append(m.free, st)
		recycled++
	}
	m.recent = kept
	return recycled
}

func (m *Manager) dropFromIntern(st *ProgramState) {
	key := stateKey{env: st.env.Digest(), store: st.store.Digest(), gen: st.gen.digest, cons: st.cons.Digest()}
	bucket := m.intern[key]
	for i, cand := range bucket {
		if cand == st {
			bucket[i] = bucket[len(bucket)-1]
			bucket = bucket[:len(bucket)-1]
			break
		}
	}
	if len(bucket) == 0 {
		delete(m.intern, key)
	} else {
		m.intern[key] = bucket
	}
}

// LiveStateCount returns the number of canonical states currently
// interned.
func (m *Manager) LiveStateCount() int {
	n := 0
	for _, bucket := range m.intern {
		n += len(bucket)
	}
	return n
}

func sortedRegions(set map[sym.RegionID]struct{}) []sym.RegionID {
	out := make([]sym.RegionID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
