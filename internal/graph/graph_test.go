package graph

import (
	"testing"

	"strata/internal/constraint"
	"strata/internal/state"
	"strata/internal/sym"
)

func newTestState() *state.ProgramState {
	tbl := sym.NewTable()
	m := state.NewManager(tbl, state.NewFlatStoreManager(tbl), constraint.NewManager(tbl), nil)
	return m.InitialState()
}

func TestNodeDeduplication(t *testing.T) {
	g := New()
	st := newTestState()
	root := g.AddRoot(ProgramPoint{Kind: PointEntry}, st)

	p := ProgramPoint{Kind: PointPost, Node: 1}
	a, fresh := g.AddNode(p, st, root)
	if !fresh {
		t.Fatalf("first (point, state) pair must be new")
	}
	b, fresh := g.AddNode(p, st, root)
	if fresh || a != b {
		t.Fatalf("same (point, state) pair must reuse the node")
	}
	if g.Len() != 2 {
		t.Fatalf("expected 2 nodes, got %d", g.Len())
	}
	if len(a.Preds()) != 2 {
		t.Fatalf("converging edges must accumulate, got %d preds", len(a.Preds()))
	}
}

func TestPathToRootPrefersShortestPath(t *testing.T) {
	g := New()
	st := newTestState()
	root := g.AddRoot(ProgramPoint{Kind: PointEntry}, st)

	// Long way round: root -> a -> b -> sink. Short way: root -> sink.
	a, _ := g.AddNode(ProgramPoint{Kind: PointPost, Node: 1}, st, root)
	b, _ := g.AddNode(ProgramPoint{Kind: PointPost, Node: 2}, st, a)
	sink, _ := g.AddNode(ProgramPoint{Kind: PointPost, Node: 3}, st, b)
	g.AddNode(ProgramPoint{Kind: PointPost, Node: 3}, st, root)

	path := PathToRoot(sink)
	if len(path) != 2 {
		t.Fatalf("expected the 2-node short path, got %d nodes", len(path))
	}
	if path[0] != sink || path[1] != root {
		t.Fatalf("path must run error-node-first to the root")
	}
}

func TestPathToRootSingleNode(t *testing.T) {
	g := New()
	st := newTestState()
	root := g.AddRoot(ProgramPoint{Kind: PointEntry}, st)
	path := PathToRoot(root)
	if len(path) != 1 || path[0] != root {
		t.Fatalf("root path should be the root itself")
	}
}
