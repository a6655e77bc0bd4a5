package checkers

import (
	"testing"

	"strata/internal/engine"
	"strata/internal/graph"
	"strata/internal/report"
	"strata/internal/sym"
)

func block(idx int, instrs ...Instr) *engine.Block {
	return &engine.Block{Index: idx, Instrs: instrs}
}

type Instr = engine.Instr

func runWith(fn *engine.Function, build func(reg *report.Registry) []engine.Checker) (*report.Reporter, engine.Result) {
	reg := report.NewRegistry()
	gen := &report.GraphPathGenerator{Describe: fn.Describe, SpanOf: fn.SpanOf}
	rep := report.NewReporter(reg, gen)
	e := engine.New(sym.NewTable(), rep, build(reg), nil, engine.Limits{MaxSteps: 1000, MaxNodes: 1000})
	res := e.Run(fn)
	return rep, res
}

func TestTaintSourceToSink(t *testing.T) {
	fn := &engine.Function{
		Name: "leak",
		Blocks: []*engine.Block{
			block(0,
				Instr{ID: 1, Kind: engine.OpCall, Callee: "input"},
				Instr{ID: 2, Kind: engine.OpCall, Callee: "exec", Args: []uint32{1}},
				Instr{ID: 3, Kind: engine.OpRet},
			),
		},
	}
	fn.Index()

	rep, _ := runWith(fn, func(reg *report.Registry) []engine.Checker {
		return []engine.Checker{NewTaintflow(reg, []string{"input"}, []string{"exec"})}
	})

	diags := rep.Flush()
	if len(diags) != 1 {
		t.Fatalf("tainted value into a sink must report once, got %d", len(diags))
	}
	if diags[0].Type.Name != "tainted data reaches sink" {
		t.Fatalf("wrong bug type %q", diags[0].Type.Name)
	}
}

func TestUntaintedArgumentIsQuiet(t *testing.T) {
	fn := &engine.Function{
		Name: "clean",
		Blocks: []*engine.Block{
			block(0,
				Instr{ID: 1, Kind: engine.OpConst, Const: 7},
				Instr{ID: 2, Kind: engine.OpCall, Callee: "exec", Args: []uint32{1}},
				Instr{ID: 3, Kind: engine.OpRet},
			),
		},
	}
	fn.Index()

	rep, _ := runWith(fn, func(reg *report.Registry) []engine.Checker {
		return []engine.Checker{NewTaintflow(reg, []string{"input"}, []string{"exec"})}
	})

	if diags := rep.Flush(); len(diags) != 0 {
		t.Fatalf("clean data must not report, got %d", len(diags))
	}
}

func TestInvalidationRetiresTaint(t *testing.T) {
	// input's result is stored through x, then an opaque call through x
	// invalidates it, which retires the taint before the sink call.
	fn := &engine.Function{
		Name: "retired",
		Blocks: []*engine.Block{
			block(0,
				Instr{ID: 1, Kind: engine.OpAlloc, Var: "x"},
				Instr{ID: 2, Kind: engine.OpCall, Callee: "input"},
				Instr{ID: 3, Kind: engine.OpStore, X: 1, Y: 2},
				Instr{ID: 4, Kind: engine.OpCall, Callee: "mutate", Args: []uint32{1}},
				Instr{ID: 5, Kind: engine.OpCall, Callee: "exec", Args: []uint32{2}},
				Instr{ID: 6, Kind: engine.OpRet},
			),
		},
	}
	fn.Index()

	rep, _ := runWith(fn, func(reg *report.Registry) []engine.Checker {
		return []engine.Checker{NewTaintflow(reg, []string{"input"}, []string{"exec"})}
	})

	if diags := rep.Flush(); len(diags) != 0 {
		t.Fatalf("invalidated taint must not fire at the sink, got %d", len(diags))
	}
}

func TestNilDerefLiteral(t *testing.T) {
	fn := &engine.Function{
		Name: "literal",
		Blocks: []*engine.Block{
			block(0,
				Instr{ID: 1, Kind: engine.OpConst, Const: 0},
				Instr{ID: 2, Kind: engine.OpLoad, X: 1},
				Instr{ID: 3, Kind: engine.OpRet},
			),
		},
	}
	fn.Index()

	rep, res := runWith(fn, func(reg *report.Registry) []engine.Checker {
		return []engine.Checker{NewNilDeref(reg)}
	})

	diags := rep.Flush()
	if len(diags) != 1 {
		t.Fatalf("literal nil deref must report, got %d", len(diags))
	}
	for _, n := range res.Graph.Nodes() {
		if n.Point.Kind == graph.PointExit {
			t.Fatalf("path must end at the fatal dereference")
		}
	}
}

func TestNilDerefByConstraintAnnotatesOrigin(t *testing.T) {
	// if p == 0 { load *p }
	fn := &engine.Function{
		Name:   "guarded",
		Params: []engine.Param{{Node: 1, Name: "p"}},
		Blocks: []*engine.Block{
			block(0,
				Instr{ID: 2, Kind: engine.OpConst, Const: 0},
				Instr{ID: 3, Kind: engine.OpBinOp, Op: sym.OpEQ, X: 1, Y: 2},
				Instr{ID: 4, Kind: engine.OpBranch, X: 3, True: 1, False: 2, Text: "p == nil"},
			),
			block(1,
				Instr{ID: 5, Kind: engine.OpLoad, X: 1},
				Instr{ID: 6, Kind: engine.OpRet},
			),
			block(2, Instr{ID: 7, Kind: engine.OpRet}),
		},
	}
	fn.Index()

	rep, _ := runWith(fn, func(reg *report.Registry) []engine.Checker {
		return []engine.Checker{NewNilDeref(reg)}
	})

	diags := rep.Flush()
	if len(diags) != 1 {
		t.Fatalf("constrained nil deref must report once, got %d", len(diags))
	}
	d := diags[0]
	if d.PointOnly() {
		t.Fatalf("path-sensitive report must carry path pieces")
	}

	var sawOrigin, sawControl bool
	for _, p := range d.Pieces {
		switch p.Kind {
		case report.PieceEvent:
			if p.Msg == "Pointer is assumed nil here" {
				sawOrigin = true
			}
		case report.PieceControl:
			sawControl = true
		}
	}
	if !sawOrigin {
		t.Fatalf("seeded visitor must mark where the pointer became nil")
	}
	if !sawControl {
		t.Fatalf("built-in branch visitor must annotate the guarding branch")
	}
	if last := d.Pieces[len(d.Pieces)-1]; last.Kind != report.PieceEndOfPath {
		t.Fatalf("terminal piece must close the path")
	}
}

func TestNilDerefFalseEdgeIsQuiet(t *testing.T) {
	// if p != 0 { load *p } else { return }
	fn := &engine.Function{
		Name:   "checked",
		Params: []engine.Param{{Node: 1, Name: "p"}},
		Blocks: []*engine.Block{
			block(0,
				Instr{ID: 2, Kind: engine.OpConst, Const: 0},
				Instr{ID: 3, Kind: engine.OpBinOp, Op: sym.OpNE, X: 1, Y: 2},
				Instr{ID: 4, Kind: engine.OpBranch, X: 3, True: 1, False: 2},
			),
			block(1,
				Instr{ID: 5, Kind: engine.OpLoad, X: 1},
				Instr{ID: 6, Kind: engine.OpRet},
			),
			block(2, Instr{ID: 7, Kind: engine.OpRet}),
		},
	}
	fn.Index()

	rep, _ := runWith(fn, func(reg *report.Registry) []engine.Checker {
		return []engine.Checker{NewNilDeref(reg)}
	})

	if diags := rep.Flush(); len(diags) != 0 {
		t.Fatalf("deref behind a non-nil guard must not report, got %d", len(diags))
	}
}
