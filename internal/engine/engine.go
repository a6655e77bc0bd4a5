package engine

import (
	"fmt"

	"strata/internal/constraint"
	"strata/internal/graph"
	"strata/internal/report"
	"strata/internal/source"
	"strata/internal/state"
	"strata/internal/sym"
	"strata/internal/trace"
)

// Limits bounds one function's exploration.
type Limits struct {
	MaxSteps int // instructions evaluated
	MaxNodes int // graph nodes materialized
}

// DefaultLimits is the budget used when a limit is zero.
var DefaultLimits = Limits{MaxSteps: 50000, MaxNodes: 20000}

func (l Limits) withDefaults() Limits {
	if l.MaxSteps <= 0 {
		l.MaxSteps = DefaultLimits.MaxSteps
	}
	if l.MaxNodes <= 0 {
		l.MaxNodes = DefaultLimits.MaxNodes
	}
	return l
}

// RegionChangeChecker is the optional capability a checker implements to
// react to store invalidation beyond the PostCall symbol list.
type RegionChangeChecker interface {
	Checker
	RegionChanges(mgr *state.Manager, old *state.ProgramState, regions []sym.RegionID, next *state.ProgramState) *state.ProgramState
}

// Result summarizes one function's exploration.
type Result struct {
	Graph      *graph.Graph
	Steps      int
	Incomplete bool // a budget was exhausted before the CFG was covered
}

// Engine explores one function at a time, deriving successor states
// through the state manager and folding findings into the reporter.
// Single-threaded; run one engine per goroutine.
type Engine struct {
	mgr      *state.Manager
	syms     *sym.Table
	reporter *report.Reporter
	checkers []Checker
	tracer   trace.Tracer
	limits   Limits

	fn        *Function
	g         *graph.Graph
	frame     uint32
	liveAfter []map[uint32]struct{}
	steps     int
	stopped   bool
}

// New constructs an engine with its own state manager. The engine
// installs itself as the manager's region-change listener and forwards
// notifications to checkers that want them.
func New(syms *sym.Table, reporter *report.Reporter, checkers []Checker, tracer trace.Tracer, limits Limits) *Engine {
	if tracer == nil {
		tracer = trace.Nop
	}
	e := &Engine{
		syms:     syms,
		reporter: reporter,
		checkers: checkers,
		tracer:   tracer,
		limits:   limits.withDefaults(),
	}
	e.mgr = state.NewManager(syms, state.NewFlatStoreManager(syms), constraint.NewManager(syms), e)
	return e
}

// Manager exposes the engine's state manager, mainly for checkers
// constructed around it.
func (e *Engine) Manager() *state.Manager { return e.mgr }

// WantsRegionChanges reports whether any checker asked for invalidation
// callbacks.
func (e *Engine) WantsRegionChanges() bool {
	for _, c := range e.checkers {
		if _, ok := c.(RegionChangeChecker); ok {
			return true
		}
	}
	return false
}

// ProcessRegionChanges routes an invalidation through interested
// checkers, threading the possibly-refined state.
func (e *Engine) ProcessRegionChanges(old *state.ProgramState, regions []sym.RegionID, next *state.ProgramState) *state.ProgramState {
	st := next
	for _, c := range e.checkers {
		rc, ok := c.(RegionChangeChecker)
		if !ok {
			continue
		}
		if refined := rc.RegionChanges(e.mgr, old, regions, st); refined != nil {
			st = refined
		}
	}
	return st
}

type work struct {
	block int
	pred  *graph.Node
}

// Run explores fn from its entry block until the worklist drains or a
// budget runs out. The returned graph stays valid until the next Run.
func (e *Engine) Run(fn *Function) Result {
	fn.Index()
	e.fn = fn
	e.g = graph.New()
	e.frame = 1
	e.liveAfter = liveness(fn)
	e.steps = 0
	e.stopped = false

	span := trace.Begin(e.tracer, trace.ScopeFunc, "func:"+fn.Name, 0)

	st := e.mgr.InitialState()
	for _, p := range fn.Params {
		st = e.mgr.BindNode(st, p.Node, sym.SymVal(e.syms.Conjure(p.Node)))
	}
	root := e.g.AddRoot(graph.ProgramPoint{Kind: graph.PointEntry, Frame: e.frame}, st)

	list := []work{{block: 0, pred: root}}
	for pops := 0; len(list) > 0 && !e.stopped; pops++ {
		w := list[len(list)-1]
		list = list[:len(list)-1]
		list = append(list, e.runBlock(w.block, w.pred)...)
		// Worklist states are pinned by their graph nodes, so between
		// blocks every unreferenced state is safe to recycle.
		if pops%64 == 63 {
			e.mgr.RecycleUnusedStates()
		}
	}

	e.mgr.RecycleUnusedStates()
	span.End(fmt.Sprintf("steps=%d nodes=%d", e.steps, e.g.Len()))
	return Result{Graph: e.g, Steps: e.steps, Incomplete: e.stopped}
}

// Describe renders the instruction at a node id, for path diagnostics.
func (e *Engine) Describe(id uint32) string { return e.fn.Describe(id) }

// SpanOf locates the instruction at a node id.
func (e *Engine) SpanOf(id uint32) source.Span { return e.fn.SpanOf(id) }

func (e *Engine) overBudget() bool {
	return e.steps >= e.limits.MaxSteps || e.g.Len() >= e.limits.MaxNodes
}

// runBlock evaluates one block from the state at pred and returns the
// successor work items. A nil or empty result means the path ended:
// converged, infeasible, killed by a checker, or out of budget.
func (e *Engine) runBlock(blockIdx int, pred *graph.Node) []work {
	trace.Point(e.tracer, trace.ScopeStep, "block", fmt.Sprintf("%s b%d", e.fn.Name, blockIdx))

	st := e.reap(blockIdx, pred)
	if st == nil {
		return nil
	}

	curr := pred
	block := e.fn.Blocks[blockIdx]
	for i := range block.Instrs {
		if e.overBudget() {
			e.stopped = true
			return nil
		}
		e.steps++

		in := &block.Instrs[i]
		switch in.Kind {
		case OpBranch:
			return e.branch(in, st, curr)
		case OpJump:
			node, fresh := e.g.AddNode(e.post(in.ID), st, curr)
			if !fresh {
				return nil
			}
			return []work{{block: in.True, pred: node}}
		case OpRet:
			st = e.mgr.ExitFrame(st, e.frame)
			e.g.AddNode(graph.ProgramPoint{Kind: graph.PointExit, Node: in.ID, Frame: e.frame}, st, curr)
			return nil
		default:
			var next *graph.Node
			next, st = e.step(in, st, curr)
			if st == nil {
				return nil
			}
			curr = next
		}
	}
	// A block without a terminator ends its path.
	return nil
}

// reap runs the dead-binding pass at a block entry and lets checkers
// clean up per-symbol facts for what was swept.
func (e *Engine) reap(blockIdx int, pred *graph.Node) *state.ProgramState {
	reaper := state.NewSymbolReaper()
	for node := range e.liveAfter[blockIdx] {
		reaper.MarkLiveNode(node)
	}
	st := e.mgr.RemoveDeadBindings(pred.State, reaper)

	dead := reaper.DeadSymbols()
	if len(dead) == 0 {
		return st
	}
	ctx := &Context{Mgr: e.mgr, Syms: e.syms, Reporter: e.reporter, Fn: e.fn, Node: pred}
	for _, c := range e.checkers {
		st = c.DeadSymbols(ctx, st, dead)
		if st == nil {
			return nil
		}
	}
	return st
}

func (e *Engine) post(id uint32) graph.ProgramPoint {
	return graph.ProgramPoint{Kind: graph.PointPost, Node: id, Frame: e.frame}
}

// step models one non-terminator instruction. It returns the graph node
// now current and the state after checkers ran; a nil state means the
// path converged or was killed.
func (e *Engine) step(in *Instr, st *state.ProgramState, curr *graph.Node) (*graph.Node, *state.ProgramState) {
	point := e.post(in.ID)
	var dst sym.SVal

	switch in.Kind {
	case OpConst:
		dst = sym.IntVal(in.Const)
		st = e.mgr.BindNode(st, in.ID, dst)

	case OpAlloc:
		region := e.syms.VarRegion(in.Var, e.frame)
		dst = sym.RegionVal(region)
		st = e.mgr.BindNode(st, in.ID, dst)

	case OpLoad:
		dst = e.load(st, st.NodeValue(in.X), in.ID)
		st = e.mgr.BindNode(st, in.ID, dst)

	case OpStore:
		dst = st.NodeValue(in.Y)
		st = e.store(st, st.NodeValue(in.X), dst)

	case OpBinOp:
		dst = e.evalBinOp(st, in)
		st = e.mgr.BindNode(st, in.ID, dst)

	case OpField:
		if region, ok := st.NodeValue(in.X).AsRegion(); ok {
			dst = sym.RegionVal(e.syms.FieldRegion(region, in.Var))
		} else {
			dst = sym.UnknownVal()
		}
		st = e.mgr.BindNode(st, in.ID, dst)

	case OpIndex:
		if region, ok := st.NodeValue(in.X).AsRegion(); ok {
			dst = sym.RegionVal(e.syms.ElemRegion(region, st.NodeValue(in.Y)))
		} else {
			dst = sym.UnknownVal()
		}
		st = e.mgr.BindNode(st, in.ID, dst)

	case OpCall:
		return e.call(in, st, curr)

	default:
		panic(fmt.Sprintf("engine: unexpected instruction kind %v", in.Kind))
	}

	node, fresh := e.g.AddNode(point, st, curr)
	if !fresh {
		return node, nil
	}
	return e.applyCheckers(node, point, st, func(ctx *Context, c Checker, s *state.ProgramState) *state.ProgramState {
		return c.PostAssign(ctx, s, dst)
	}, in)
}

// applyCheckers threads the state through every checker at a point.
// A checker that refines the state produces a chained node at the same
// point so the path records the refinement.
func (e *Engine) applyCheckers(node *graph.Node, point graph.ProgramPoint, st *state.ProgramState, apply func(*Context, Checker, *state.ProgramState) *state.ProgramState, in *Instr) (*graph.Node, *state.ProgramState) {
	ctx := &Context{Mgr: e.mgr, Syms: e.syms, Reporter: e.reporter, Fn: e.fn, Node: node, Instr: in}
	for _, c := range e.checkers {
		next := apply(ctx, c, st)
		if next == nil {
			return node, nil
		}
		if next != st {
			st = next
			node, _ = e.g.AddNode(point, st, node)
			ctx.Node = node
		}
	}
	return node, st
}

// load reads through an address value.
func (e *Engine) load(st *state.ProgramState, addr sym.SVal, origin uint32) sym.SVal {
	if region, ok := addr.AsRegion(); ok {
		return st.RegionValue(region)
	}
	if _, ok := addr.AsSymbol(); ok {
		// Reading through a symbolic pointer: the target is unmodeled,
		// so the result is a fresh unconstrained value.
		return sym.SymVal(e.syms.Conjure(origin))
	}
	return sym.UnknownVal()
}

// store writes through an address value. Non-region addresses degrade
// to a no-op rather than corrupting the store.
func (e *Engine) store(st *state.ProgramState, addr, val sym.SVal) *state.ProgramState {
	if _, ok := addr.AsRegion(); ok {
		return e.mgr.BindLoc(st, addr, val)
	}
	return st
}

func (e *Engine) evalBinOp(st *state.ProgramState, in *Instr) sym.SVal {
	lhs := st.NodeValue(in.X)
	rhs := st.NodeValue(in.Y)

	if li, lok := lhs.AsInt(); lok {
		if ri, rok := rhs.AsInt(); rok {
			if in.Op.IsComparison() {
				res, _ := constraint.EvalOp(li, in.Op, ri)
				return sym.BoolVal(res)
			}
			return sym.IntVal(arith(li, in.Op, ri))
		}
		if rs, rok := rhs.AsSymbol(); rok {
			if swapped, ok := mirrored(in.Op); ok {
				return sym.SymVal(e.syms.BinOp(rs, swapped, li))
			}
		}
		return sym.UnknownVal()
	}

	if ls, lok := lhs.AsSymbol(); lok {
		if ri, rok := rhs.AsInt(); rok {
			return sym.SymVal(e.syms.BinOp(ls, in.Op, ri))
		}
		if rs, rok := rhs.AsSymbol(); rok {
			return sym.SymVal(e.syms.BinOpSym(ls, in.Op, rs))
		}
	}

	return sym.UnknownVal()
}

func arith(lhs int64, op sym.Op, rhs int64) int64 {
	switch op {
	case sym.OpAdd:
		return lhs + rhs
	case sym.OpSub:
		return lhs - rhs
	case sym.OpMul:
		return lhs * rhs
	default:
		return 0
	}
}

// mirrored returns op with its operands swapped: c < s becomes s > c.
// Commutative arithmetic passes through unchanged.
func mirrored(op sym.Op) (sym.Op, bool) {
	switch op {
	case sym.OpEQ, sym.OpNE, sym.OpAdd, sym.OpMul:
		return op, true
	case sym.OpLT:
		return sym.OpGT, true
	case sym.OpLE:
		return sym.OpGE, true
	case sym.OpGT:
		return sym.OpLT, true
	case sym.OpGE:
		return sym.OpLE, true
	default:
		return op, false
	}
}

// call models an opaque call: run PreCall checkers, invalidate every
// region reachable from the arguments, conjure the return value, then
// run PostCall checkers with the retired symbols.
func (e *Engine) call(in *Instr, st *state.ProgramState, curr *graph.Node) (*graph.Node, *state.ProgramState) {
	args := make([]sym.SVal, len(in.Args))
	for i, a := range in.Args {
		args[i] = st.NodeValue(a)
	}

	ctx := &Context{Mgr: e.mgr, Syms: e.syms, Reporter: e.reporter, Fn: e.fn, Node: curr, Instr: in}
	for _, c := range e.checkers {
		st = c.PreCall(ctx, st, args)
		if st == nil {
			return curr, nil
		}
	}

	var invalidated []sym.SymbolID
	if regions := e.reachableRegions(st, args); len(regions) > 0 {
		st = e.mgr.InvalidateRegions(st, regions, in.ID, &invalidated, false)
	}

	ret := sym.SymVal(e.syms.Conjure(in.ID))
	st = e.mgr.BindNode(st, in.ID, ret)

	point := graph.ProgramPoint{Kind: graph.PointCallExit, Node: in.ID, Frame: e.frame}
	node, fresh := e.g.AddNode(point, st, curr)
	if !fresh {
		return node, nil
	}
	return e.applyCheckers(node, point, st, func(cctx *Context, c Checker, s *state.ProgramState) *state.ProgramState {
		return c.PostCall(cctx, s, ret, invalidated)
	}, in)
}

// reachableRegions collects every region reachable from the argument
// values, in first-visit order.
func (e *Engine) reachableRegions(st *state.ProgramState, args []sym.SVal) []sym.RegionID {
	var regions []sym.RegionID
	e.mgr.ScanReachable(st, args, state.ScanVisitor{
		VisitSymbol: func(sym.SymbolID) bool { return true },
		VisitRegion: func(id sym.RegionID) bool {
			regions = append(regions, id)
			return true
		},
	})
	return regions
}

// branch forks the state on the condition and extends each feasible
// edge.
func (e *Engine) branch(in *Instr, st *state.ProgramState, curr *graph.Node) []work {
	cond := st.NodeValue(in.X)
	stTrue, stFalse := e.fork(st, cond)

	var succ []work
	if w, ok := e.branchEdge(in, stTrue, curr, cond, true, in.True, graph.PointBranchTrue); ok {
		succ = append(succ, w)
	}
	if w, ok := e.branchEdge(in, stFalse, curr, cond, false, in.False, graph.PointBranchFalse); ok {
		succ = append(succ, w)
	}
	return succ
}

func (e *Engine) branchEdge(in *Instr, st *state.ProgramState, curr *graph.Node, cond sym.SVal, sense bool, target int, kind graph.PointKind) (work, bool) {
	if st == nil {
		return work{}, false
	}
	point := graph.ProgramPoint{Kind: kind, Node: in.ID, Frame: e.frame}
	node, fresh := e.g.AddNode(point, st, curr)
	if !fresh {
		return work{}, false
	}
	node, st = e.applyCheckers(node, point, st, func(ctx *Context, c Checker, s *state.ProgramState) *state.ProgramState {
		return c.Branch(ctx, s, cond, sense)
	}, in)
	if st == nil {
		return work{}, false
	}
	return work{block: target, pred: node}, true
}

// fork splits a state on a condition value. Concrete conditions follow
// one edge; under-constrained conditions follow both without learning.
func (e *Engine) fork(st *state.ProgramState, cond sym.SVal) (ifTrue, ifFalse *state.ProgramState) {
	if cond.Kind == sym.ValBool {
		if cond.Bit {
			return st, nil
		}
		return nil, st
	}
	if n, ok := cond.AsInt(); ok {
		if n != 0 {
			return st, nil
		}
		return nil, st
	}
	if _, ok := cond.AsSymbol(); ok {
		return e.mgr.AssumeBoth(st, cond)
	}
	return st, st
}

// liveness computes, per block, the node ids read at or after that
// block. The dead-binding pass uses it as the live-root set.
func liveness(fn *Function) []map[uint32]struct{} {
	n := len(fn.Blocks)
	use := make([]map[uint32]struct{}, n)
	succs := make([][]int, n)
	var scratch []uint32
	for i, b := range fn.Blocks {
		use[i] = make(map[uint32]struct{}, 8)
		for j := range b.Instrs {
			in := &b.Instrs[j]
			scratch = in.operands(scratch[:0])
			for _, id := range scratch {
				use[i][id] = struct{}{}
			}
			switch in.Kind {
			case OpBranch:
				succs[i] = append(succs[i], in.True, in.False)
			case OpJump:
				succs[i] = append(succs[i], in.True)
			}
		}
	}

	live := make([]map[uint32]struct{}, n)
	for i := range live {
		live[i] = make(map[uint32]struct{}, len(use[i]))
		for id := range use[i] {
			live[i][id] = struct{}{}
		}
	}
	for changed := true; changed; {
		changed = false
		for i := n - 1; i >= 0; i-- {
			for _, s := range succs[i] {
				for id := range live[s] {
					if _, ok := live[i][id]; !ok {
						live[i][id] = struct{}{}
						changed = true
					}
				}
			}
		}
	}
	return live
}
