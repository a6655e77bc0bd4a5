package state

import (
	"testing"

	"strata/internal/sym"
)

const (
	taintNetwork TaintKind = iota + 1
	taintFile
)

func TestTaintPropagation(t *testing.T) {
	m, tbl := newTestManager()
	s := tbl.Conjure(1)

	st := m.AddTaint(m.InitialState(), s, taintNetwork)
	if !m.IsTaintedSymbol(st, s, taintNetwork) {
		t.Fatalf("directly tagged symbol must be tainted")
	}
	if m.IsTaintedSymbol(st, s, taintFile) {
		t.Fatalf("taint must not leak across kinds")
	}

	region := tbl.FieldRegion(tbl.VarRegion("p", 0), "f")
	derived := tbl.Derived(s, region)
	if !m.IsTaintedSymbol(st, derived, taintNetwork) {
		t.Fatalf("derived symbol must inherit its parent's taint")
	}

	expr := tbl.BinOp(derived, sym.OpAdd, 1)
	if !m.IsTaintedSymbol(st, expr, taintNetwork) {
		t.Fatalf("expressions over tainted operands must be tainted")
	}
}

func TestTaintAddIsIdempotent(t *testing.T) {
	m, tbl := newTestManager()
	s := tbl.Conjure(1)
	st := m.AddTaint(m.InitialState(), s, taintNetwork)
	if m.AddTaint(st, s, taintNetwork) != st {
		t.Fatalf("re-tagging with the same kind must be a no-op")
	}
}

func TestTaintedElementRegion(t *testing.T) {
	m, tbl := newTestManager()
	idx := tbl.Conjure(1)
	st := m.AddTaint(m.InitialState(), idx, taintNetwork)

	arr := tbl.VarRegion("buf", 0)
	elem := tbl.ElemRegion(arr, sym.SymVal(idx))
	if !m.IsTaintedRegion(st, elem, taintNetwork) {
		t.Fatalf("element with a tainted index must be tainted")
	}
	if m.IsTaintedRegion(st, arr, taintNetwork) {
		t.Fatalf("the base region itself is not tainted")
	}

	field := tbl.FieldRegion(elem, "f")
	if !m.IsTaintedRegion(st, field, taintNetwork) {
		t.Fatalf("sub-regions of a tainted region must be tainted")
	}
}

func TestPruneTaint(t *testing.T) {
	m, tbl := newTestManager()
	a := tbl.Conjure(1)
	b := tbl.Conjure(2)

	st := m.AddTaint(m.InitialState(), a, taintNetwork)
	st = m.AddTaint(st, b, taintFile)

	pruned := m.PruneTaint(st, []sym.SymbolID{a})
	if m.IsTaintedSymbol(pruned, a, taintNetwork) {
		t.Fatalf("pruned symbol must lose its taint")
	}
	if !m.IsTaintedSymbol(pruned, b, taintFile) {
		t.Fatalf("surviving symbols keep their taint")
	}
	if m.PruneTaint(st, []sym.SymbolID{tbl.Conjure(3)}) != st {
		t.Fatalf("pruning unrelated symbols must be a no-op")
	}

	// Dropping the last entry removes the trait entirely.
	all := m.PruneTaint(pruned, []sym.SymbolID{b})
	if _, ok := all.Trait(m.taintKey); ok {
		t.Fatalf("empty taint map should leave no trait behind")
	}
}
