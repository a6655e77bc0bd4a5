package frontend

import (
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"testing"

	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"strata/internal/checkers"
	"strata/internal/engine"
	"strata/internal/report"
	"strata/internal/source"
	"strata/internal/sym"
)

func buildSSA(t *testing.T, src string) (*ssa.Package, *token.FileSet) {
	t.Helper()
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "main.go", src, 0)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	pkg := types.NewPackage("p", "p")
	ssaPkg, _, err := ssautil.BuildPackage(
		&types.Config{}, fset, pkg, []*ast.File{f}, ssa.SanityCheckFunctions)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return ssaPkg, fset
}

func lowered(t *testing.T, src, name string) (*engine.Function, *source.FileSet) {
	t.Helper()
	ssaPkg, fset := buildSSA(t, src)
	fn := ssaPkg.Func(name)
	if fn == nil {
		t.Fatalf("function %s not found", name)
	}
	files := source.NewFileSet()
	files.AddVirtual("main.go", []byte(src))
	return Lower(fn, files, fset), files
}

func kinds(fn *engine.Function) map[engine.OpKind]int {
	m := make(map[engine.OpKind]int)
	for _, b := range fn.Blocks {
		for _, in := range b.Instrs {
			m[in.Kind]++
		}
	}
	return m
}

func TestLowerGuardedDeref(t *testing.T) {
	src := `package p

func deref(p *int) int {
	if p == nil {
		return *p
	}
	return 0
}
`
	fn, _ := lowered(t, src, "deref")
	if len(fn.Params) != 1 {
		t.Fatalf("expected 1 param, got %d", len(fn.Params))
	}
	k := kinds(fn)
	if k[engine.OpBranch] != 1 {
		t.Fatalf("expected 1 branch, got %d", k[engine.OpBranch])
	}
	if k[engine.OpLoad] != 1 {
		t.Fatalf("expected 1 load, got %d", k[engine.OpLoad])
	}
	if k[engine.OpBinOp] != 1 {
		t.Fatalf("expected 1 binop, got %d", k[engine.OpBinOp])
	}
	if k[engine.OpConst] == 0 {
		t.Fatalf("nil literal must lower to a zero constant")
	}
}

func TestLoweredDerefReportsThroughEngine(t *testing.T) {
	src := `package p

func deref(p *int) int {
	if p == nil {
		return *p
	}
	return 0
}
`
	fn, _ := lowered(t, src, "deref")

	reg := report.NewRegistry()
	gen := &report.GraphPathGenerator{Describe: fn.Describe, SpanOf: fn.SpanOf}
	rep := report.NewReporter(reg, gen)
	e := engine.New(sym.NewTable(), rep,
		[]engine.Checker{checkers.NewNilDeref(reg)}, nil,
		engine.Limits{MaxSteps: 1000, MaxNodes: 1000})
	e.Run(fn)

	diags := rep.Flush()
	if len(diags) != 1 {
		t.Fatalf("lowered guarded deref must report once, got %d", len(diags))
	}
	if diags[0].Type.Name != "nil dereference" {
		t.Fatalf("wrong bug type %q", diags[0].Type.Name)
	}
	if diags[0].PointOnly() {
		t.Fatalf("diagnostic must carry the branch path")
	}
}

func TestLowerFieldAndIndexAddressing(t *testing.T) {
	src := `package p

type pair struct {
	a, b int
}

func fields(xs []int) int {
	var pr pair
	pr.a = 1
	xs[0] = 2
	return pr.a
}
`
	fn, _ := lowered(t, src, "fields")
	k := kinds(fn)
	if k[engine.OpField] == 0 {
		t.Fatalf("struct field access must lower to a field address")
	}
	if k[engine.OpIndex] == 0 {
		t.Fatalf("slice element access must lower to an index address")
	}
	if k[engine.OpAlloc] == 0 {
		t.Fatalf("local aggregate must lower to an alloc")
	}
}

func TestLowerOpaqueCall(t *testing.T) {
	src := `package p

func source() int { return 0 }

func flows() int {
	v := source()
	return v + 1
}
`
	fn, _ := lowered(t, src, "flows")
	var call *engine.Instr
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			if b.Instrs[i].Kind == engine.OpCall {
				call = &b.Instrs[i]
			}
		}
	}
	if call == nil {
		t.Fatalf("call must survive lowering")
	}
	if call.Callee != "p.source" {
		t.Fatalf("static callee must be fully qualified, got %q", call.Callee)
	}
}

func TestLowerSpansPointIntoSource(t *testing.T) {
	src := `package p

func deref(p *int) int {
	return *p
}
`
	fn, files := lowered(t, src, "deref")
	var load *engine.Instr
	for _, b := range fn.Blocks {
		for i := range b.Instrs {
			if b.Instrs[i].Kind == engine.OpLoad {
				load = &b.Instrs[i]
			}
		}
	}
	if load == nil {
		t.Fatalf("missing load")
	}
	if load.Span.Empty() {
		t.Fatalf("lowered load must carry a source span")
	}
	start, _ := files.Resolve(load.Span)
	if start.Line != 4 {
		t.Fatalf("deref span must land on line 4, got %d", start.Line)
	}
}
