package frontend

import (
	"errors"
	"fmt"
	"go/token"
	"sort"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"

	"strata/internal/engine"
	"strata/internal/source"
)

// ErrNoPackages means the load patterns matched nothing usable.
var ErrNoPackages = errors.New("frontend: no loadable packages")

// Program is a loaded and SSA-built set of packages ready for lowering.
type Program struct {
	Fset      *token.FileSet
	Files     *source.FileSet
	SSA       *ssa.Program
	Functions []*ssa.Function
}

// Load resolves patterns relative to dir, type-checks the matched
// packages, and builds SSA for their function bodies. Packages with
// type errors are kept: their healthy functions still lower.
func Load(dir string, patterns ...string) (*Program, error) {
	fset := token.NewFileSet()
	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedCompiledGoFiles |
			packages.NeedImports |
			packages.NeedDeps |
			packages.NeedTypes |
			packages.NeedSyntax |
			packages.NeedTypesInfo,
		Dir:   dir,
		Fset:  fset,
		Tests: false,
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("frontend: load packages: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, ErrNoPackages
	}

	prog, ssaPkgs := ssautil.Packages(pkgs, ssa.BuilderMode(0))
	prog.Build()

	var fns []*ssa.Function
	for _, p := range ssaPkgs {
		if p == nil {
			continue
		}
		for _, member := range p.Members {
			fn, ok := member.(*ssa.Function)
			if !ok {
				continue
			}
			fns = append(fns, collect(fn, nil)...)
		}
	}
	if len(fns) == 0 {
		return nil, ErrNoPackages
	}
	sort.Slice(fns, func(i, j int) bool { return fns[i].String() < fns[j].String() })

	return &Program{
		Fset:      fset,
		Files:     source.NewFileSet(),
		SSA:       prog,
		Functions: fns,
	}, nil
}

// collect gathers a function and its anonymous children, skipping
// synthetic wrappers and bodiless declarations.
func collect(fn *ssa.Function, acc []*ssa.Function) []*ssa.Function {
	if len(fn.Blocks) > 0 && fn.Synthetic == "" {
		acc = append(acc, fn)
	}
	for _, anon := range fn.AnonFuncs {
		acc = collect(anon, acc)
	}
	return acc
}

// Lowered translates every collected function to the analyzed form.
func (p *Program) Lowered() []*engine.Function {
	out := make([]*engine.Function, 0, len(p.Functions))
	for _, fn := range p.Functions {
		out = append(out, Lower(fn, p.Files, p.Fset))
	}
	return out
}
