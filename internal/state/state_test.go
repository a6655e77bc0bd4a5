package state

import (
	"testing"

	"strata/internal/constraint"
	"strata/internal/sym"
)

func newTestManager() (*Manager, *sym.Table) {
	tbl := sym.NewTable()
	return NewManager(tbl, NewFlatStoreManager(tbl), constraint.NewManager(tbl), nil), tbl
}

func TestInterningIdempotence(t *testing.T) {
	m, tbl := newTestManager()
	x := tbl.VarRegion("x", 0)
	y := tbl.VarRegion("y", 0)

	// Two different transform orders with identical structural content
	// must converge on the same canonical instance.
	a := m.BindLoc(m.InitialState(), sym.RegionVal(x), sym.IntVal(1))
	a = m.BindLoc(a, sym.RegionVal(y), sym.IntVal(2))

	b := m.BindLoc(m.InitialState(), sym.RegionVal(y), sym.IntVal(2))
	b = m.BindLoc(b, sym.RegionVal(x), sym.IntVal(1))

	if a != b {
		t.Fatalf("structurally equal states must be the same object")
	}
}

func TestBindUnbindInverse(t *testing.T) {
	m, tbl := newTestManager()
	loc := sym.RegionVal(tbl.VarRegion("x", 0))

	st := m.BindLoc(m.InitialState(), loc, sym.IntVal(5))
	if got := st.RegionValue(loc.Reg); got != sym.IntVal(5) {
		t.Fatalf("expected 5, got %v", got)
	}
	st = m.UnbindLoc(st, loc)
	if got := st.RegionValue(loc.Reg); !got.IsUnknown() {
		t.Fatalf("unbound location should read unknown, got %v", got)
	}
}

func TestUnbindTrackedRegionPanics(t *testing.T) {
	m, tbl := newTestManager()
	base := tbl.VarRegion("s", 0)
	tbl.FieldRegion(base, "f") // gives the base sub-structure

	defer func() {
		if recover() == nil {
			t.Fatalf("expected a contract-violation panic")
		}
	}()
	m.UnbindLoc(m.InitialState(), sym.RegionVal(base))
}

func TestBindLocUnknownLocationIsNoOp(t *testing.T) {
	m, _ := newTestManager()
	st := m.InitialState()
	if m.BindLoc(st, sym.UnknownVal(), sym.IntVal(1)) != st {
		t.Fatalf("binding through an unknown location must degrade to a no-op")
	}
}

func TestDeadBindingMonotonicity(t *testing.T) {
	m, tbl := newTestManager()
	x := tbl.VarRegion("x", 0)
	y := tbl.VarRegion("y", 0)

	st := m.BindLoc(m.InitialState(), sym.RegionVal(x), sym.IntVal(5))
	st = m.BindLoc(st, sym.RegionVal(y), sym.IntVal(6))

	reaper := NewSymbolReaper()
	reaper.MarkLiveRegion(x)
	st = m.RemoveDeadBindings(st, reaper)

	if got := st.RegionValue(x); got != sym.IntVal(5) {
		t.Fatalf("live binding must survive, got %v", got)
	}
	if got := st.RegionValue(y); !got.IsUnknown() {
		t.Fatalf("dead binding must be swept, got %v", got)
	}
	if reaper.ReapedStore() != st.StoreHandle() {
		t.Fatalf("reaper must record the reaped store")
	}
}

func TestRemoveDeadBindingsSweepsDeadNodes(t *testing.T) {
	m, _ := newTestManager()
	st := m.BindNode(m.InitialState(), 1, sym.IntVal(10))
	st = m.BindNode(st, 2, sym.IntVal(20))

	reaper := NewSymbolReaper()
	reaper.MarkLiveNode(1)
	st = m.RemoveDeadBindings(st, reaper)

	if got := st.NodeValue(1); got != sym.IntVal(10) {
		t.Fatalf("live node binding must survive, got %v", got)
	}
	if got := st.NodeValue(2); !got.IsUnknown() {
		t.Fatalf("dead node binding must be swept, got %v", got)
	}
}

func TestInvalidateConservativeness(t *testing.T) {
	m, tbl := newTestManager()
	r := tbl.VarRegion("p", 0)
	field := tbl.FieldRegion(r, "f")
	bound := tbl.Conjure(1)

	st := m.BindLoc(m.InitialState(), sym.RegionVal(field), sym.SymVal(bound))

	var invalidated []sym.SymbolID
	st = m.InvalidateRegions(st, []sym.RegionID{r}, 2, &invalidated, false)

	got := st.RegionValue(field)
	if got == sym.SymVal(bound) {
		t.Fatalf("invalidated region must not keep its old value")
	}
	if got.IsUnknown() {
		// Acceptable per the contract, but the flat store conjures a
		// fresh default, so reads should see a symbol.
		t.Fatalf("expected a fresh symbol from the default cover, got unknown")
	}
	if len(invalidated) != 1 || invalidated[0] != bound {
		t.Fatalf("expected the old symbol reported invalidated, got %v", invalidated)
	}
}

func TestAssumeInBoundDegeneracy(t *testing.T) {
	m, _ := newTestManager()
	st := m.InitialState()
	if m.AssumeInBound(st, sym.UnknownVal(), sym.IntVal(10), true) != st {
		t.Fatalf("unknown index must return the state unchanged, reference-equal")
	}
}

func TestAssumeInBoundNarrowsIndex(t *testing.T) {
	m, tbl := newTestManager()
	idx := tbl.Conjure(1)
	st := m.AssumeInBound(m.InitialState(), sym.SymVal(idx), sym.IntVal(10), true)
	if st == nil {
		t.Fatalf("in-bound assumption should be feasible")
	}
	r := st.Constraints().Range(idx)
	if r.Lo != 0 || r.Hi != 9 {
		t.Fatalf("expected [0, 9], got %v", r)
	}
}

func TestAssumeInBoundConcrete(t *testing.T) {
	m, _ := newTestManager()
	st := m.InitialState()
	if m.AssumeInBound(st, sym.IntVal(3), sym.IntVal(10), true) != st {
		t.Fatalf("concrete in-bound should be the same state")
	}
	if m.AssumeInBound(st, sym.IntVal(12), sym.IntVal(10), true) != nil {
		t.Fatalf("concrete out-of-bound under true sense must be infeasible")
	}
}

func TestAssumeForkContradiction(t *testing.T) {
	m, tbl := newTestManager()
	s := tbl.Conjure(1)
	cond := sym.SymVal(tbl.BinOp(s, sym.OpGT, 0))

	st := m.Assume(m.InitialState(), cond, true)
	if st == nil {
		t.Fatalf("positive branch should be feasible")
	}
	if m.Assume(st, cond, false) != nil {
		t.Fatalf("assuming both senses of one condition must contradict")
	}
}

func TestTraitRoundTrip(t *testing.T) {
	m, _ := newTestManager()
	key := NewTraitKey("test-trait")
	val := newTaintMap(map[sym.SymbolID]TaintKind{1: TaintGeneric})

	st := m.InitialState().WithTrait(key, val)
	got, ok := st.Trait(key)
	if !ok || !got.Equal(val) {
		t.Fatalf("trait should round-trip")
	}
	if st.WithTrait(key, val) != st {
		t.Fatalf("re-attaching an equal fact must be a no-op")
	}
	cleared := st.WithoutTrait(key)
	if _, ok := cleared.Trait(key); ok {
		t.Fatalf("trait should be removable")
	}
}

func TestRecycleUnusedStates(t *testing.T) {
	m, tbl := newTestManager()
	x := tbl.VarRegion("x", 0)

	keep := m.BindLoc(m.InitialState(), sym.RegionVal(x), sym.IntVal(1))
	keep.Retain()
	m.BindLoc(keep, sym.RegionVal(x), sym.IntVal(2)) // unreferenced

	before := m.LiveStateCount()
	recycled := m.RecycleUnusedStates()
	if recycled == 0 {
		t.Fatalf("expected at least one state recycled")
	}
	if m.LiveStateCount() >= before {
		t.Fatalf("recycling should shrink the interning table")
	}

	// The retained state stays canonical.
	again := m.BindLoc(m.InitialState(), sym.RegionVal(x), sym.IntVal(1))
	if again != keep {
		t.Fatalf("retained state must remain the canonical instance")
	}
}

type recordingListener struct {
	calls   int
	regions []sym.RegionID
}

func (l *recordingListener) WantsRegionChanges() bool { return true }

func (l *recordingListener) ProcessRegionChanges(old *ProgramState, regions []sym.RegionID, next *ProgramState) *ProgramState {
	l.calls++
	l.regions = append(l.regions, regions...)
	return next
}

func TestRegionChangeNotification(t *testing.T) {
	tbl := sym.NewTable()
	listener := &recordingListener{}
	m := NewManager(tbl, NewFlatStoreManager(tbl), constraint.NewManager(tbl), listener)

	r := tbl.VarRegion("x", 0)
	st := m.BindLoc(m.InitialState(), sym.RegionVal(r), sym.IntVal(1))
	if listener.calls != 1 {
		t.Fatalf("BindLoc should notify the listener once, got %d", listener.calls)
	}

	var invalidated []sym.SymbolID
	m.InvalidateRegions(st, []sym.RegionID{r}, 9, &invalidated, false)
	if listener.calls != 2 {
		t.Fatalf("InvalidateRegions should notify the listener, got %d calls", listener.calls)
	}
	if len(listener.regions) == 0 || listener.regions[len(listener.regions)-1] != r {
		t.Fatalf("listener should see the invalidated region list")
	}
}

func TestExitFrameDropsFrameLocals(t *testing.T) {
	m, tbl := newTestManager()
	inner := tbl.VarRegion("local", 2)
	outer := tbl.VarRegion("result", 1)

	st := m.BindLoc(m.InitialState(), sym.RegionVal(inner), sym.IntVal(7))
	st = m.BindLoc(st, sym.RegionVal(outer), sym.IntVal(8))
	st = m.ExitFrame(st, 2)

	if !st.RegionValue(inner).IsUnknown() {
		t.Fatalf("frame-local binding must be dropped on exit")
	}
	if st.RegionValue(outer) != sym.IntVal(8) {
		t.Fatalf("caller bindings must survive frame exit")
	}
}

func TestBindDefaultCoversAggregate(t *testing.T) {
	tbl := sym.NewTable()
	listener := &recordingListener{}
	m := NewManager(tbl, NewFlatStoreManager(tbl), constraint.NewManager(tbl), listener)

	base := tbl.VarRegion("s", 0)
	f := tbl.FieldRegion(base, "f")
	g := tbl.FieldRegion(base, "g")
	whole := tbl.Conjure(1)

	st := m.BindDefault(m.InitialState(), sym.RegionVal(base), sym.SymVal(whole))
	if listener.calls != 1 {
		t.Fatalf("BindDefault should notify the listener once, got %d", listener.calls)
	}
	if len(listener.regions) != 1 || listener.regions[0] != base {
		t.Fatalf("listener should see the defaulted region, got %v", listener.regions)
	}

	// Reads through the default derive a per-field symbol from the
	// covering one, stable per field and distinct across fields.
	fv := st.RegionValue(f)
	fs, ok := fv.AsSymbol()
	if !ok || fs != tbl.Derived(whole, f) {
		t.Fatalf("field read should derive from the default symbol, got %v", fv)
	}
	if st.RegionValue(f) != fv {
		t.Fatalf("repeated default reads must intern to the same symbol")
	}
	gv := st.RegionValue(g)
	gs, ok := gv.AsSymbol()
	if !ok || gs == fs {
		t.Fatalf("distinct fields must derive distinct symbols, got %v and %v", fv, gv)
	}

	// A direct binding shadows the default for its region only.
	st = m.BindLoc(st, sym.RegionVal(f), sym.IntVal(7))
	if got := st.RegionValue(f); got != sym.IntVal(7) {
		t.Fatalf("direct binding should win over the default, got %v", got)
	}
	if got := st.RegionValue(g); got != gv {
		t.Fatalf("sibling field should still read through the default, got %v", got)
	}
}

func TestBindDefaultUnknownLocationIsNoOp(t *testing.T) {
	m, _ := newTestManager()
	st := m.InitialState()
	if m.BindDefault(st, sym.UnknownVal(), sym.IntVal(1)) != st {
		t.Fatalf("unknown location must come back as the identical state")
	}
}
