package engine

import (
	"strata/internal/graph"
	"strata/internal/report"
	"strata/internal/state"
	"strata/internal/sym"
)

// Context is what a checker callback sees: the managers, the reporter,
// and the graph node for the point being checked.
type Context struct {
	Mgr      *state.Manager
	Syms     *sym.Table
	Reporter *report.Reporter
	Fn       *Function
	Node     *graph.Node
	Instr    *Instr
}

// Checker observes exploration and refines states. Every callback
// returns the state to continue with: the input unchanged when the
// checker has nothing to add, a refined state to attach facts, or nil
// to kill the path (after reporting a fatal finding).
type Checker interface {
	Name() string

	// PostAssign runs after a value-producing instruction bound its
	// node. dst is the bound value.
	PostAssign(ctx *Context, st *state.ProgramState, dst sym.SVal) *state.ProgramState

	// PreCall runs before a call is modeled. args are the evaluated
	// argument values.
	PreCall(ctx *Context, st *state.ProgramState, args []sym.SVal) *state.ProgramState

	// PostCall runs after a call was modeled. ret is the conjured
	// return value; invalidated lists the symbols retired by the
	// call's region invalidation, for cross-referencing stale facts.
	PostCall(ctx *Context, st *state.ProgramState, ret sym.SVal, invalidated []sym.SymbolID) *state.ProgramState

	// Branch runs on each feasible branch edge. cond is the branch
	// condition, taken the edge's sense.
	Branch(ctx *Context, st *state.ProgramState, cond sym.SVal, taken bool) *state.ProgramState

	// DeadSymbols runs after dead-binding removal so checkers can drop
	// per-symbol bookkeeping for reaped symbols.
	DeadSymbols(ctx *Context, st *state.ProgramState, dead []sym.SymbolID) *state.ProgramState
}

// NopChecker is an embeddable base making every callback a no-op.
type NopChecker struct{}

func (NopChecker) PostAssign(_ *Context, st *state.ProgramState, _ sym.SVal) *state.ProgramState {
	return st
}

func (NopChecker) PreCall(_ *Context, st *state.ProgramState, _ []sym.SVal) *state.ProgramState {
	return st
}

func (NopChecker) PostCall(_ *Context, st *state.ProgramState, _ sym.SVal, _ []sym.SymbolID) *state.ProgramState {
	return st
}

func (NopChecker) Branch(_ *Context, st *state.ProgramState, _ sym.SVal, _ bool) *state.ProgramState {
	return st
}

func (NopChecker) DeadSymbols(_ *Context, st *state.ProgramState, _ []sym.SymbolID) *state.ProgramState {
	return st
}
