// Package checkers holds the analysis rules built on the exploration
// engine: taint flow tracking and nil-pointer dereference detection.
package checkers

import (
	"fmt"

	"strata/internal/engine"
	"strata/internal/report"
	"strata/internal/state"
	"strata/internal/sym"
)

// Taintflow flags data that flows from a configured source call into a
// configured sink argument without sanitization.
type Taintflow struct {
	engine.NopChecker

	sources map[string]struct{}
	sinks   map[string]struct{}
	bugType report.BugTypeID
	kind    state.TaintKind
}

// NewTaintflow builds the checker around source and sink callee names.
func NewTaintflow(reg *report.Registry, sources, sinks []string) *Taintflow {
	c := &Taintflow{
		sources: make(map[string]struct{}, len(sources)),
		sinks:   make(map[string]struct{}, len(sinks)),
		bugType: reg.Register("tainted data reaches sink", "security"),
		kind:    state.TaintGeneric,
	}
	for _, s := range sources {
		c.sources[s] = struct{}{}
	}
	for _, s := range sinks {
		c.sinks[s] = struct{}{}
	}
	return c
}

func (c *Taintflow) Name() string { return "taintflow" }

// PreCall reports every tainted value passed to a sink.
func (c *Taintflow) PreCall(ctx *engine.Context, st *state.ProgramState, args []sym.SVal) *state.ProgramState {
	if _, ok := c.sinks[ctx.Instr.Callee]; !ok {
		return st
	}
	for i, arg := range args {
		if !ctx.Mgr.IsTainted(st, arg, c.kind) {
			continue
		}
		r := report.New(
			c.bugType,
			"tainted value reaches "+ctx.Instr.Callee,
			fmt.Sprintf("Untrusted data flows into %s (argument %d)", ctx.Instr.Callee, i+1),
			ctx.Instr.Span,
			ctx.Node,
		)
		if argInstr := ctx.Fn.InstrAt(ctx.Instr.Args[i]); argInstr != nil {
			r.AddRange(argInstr.Span)
		}
		ctx.Reporter.EmitReport(r)
	}
	return st
}

// PostCall taints source results and retires taint on symbols the call
// invalidated.
func (c *Taintflow) PostCall(ctx *engine.Context, st *state.ProgramState, ret sym.SVal, invalidated []sym.SymbolID) *state.ProgramState {
	if len(invalidated) > 0 {
		st = ctx.Mgr.PruneTaint(st, invalidated)
	}
	if _, ok := c.sources[ctx.Instr.Callee]; !ok {
		return st
	}
	if id, ok := ret.AsSymbol(); ok {
		st = ctx.Mgr.AddTaint(st, id, c.kind)
	}
	return st
}

// DeadSymbols drops taint bookkeeping for reaped symbols.
func (c *Taintflow) DeadSymbols(ctx *engine.Context, st *state.ProgramState, dead []sym.SymbolID) *state.ProgramState {
	return ctx.Mgr.PruneTaint(st, dead)
}
