package checkers

import (
	"strata/internal/engine"
	"strata/internal/report"
	"strata/internal/state"
	"strata/internal/sym"
)

// NilDeref reports loads and stores through a pointer that is nil on
// the current path, either as a literal or by constraint.
type NilDeref struct {
	engine.NopChecker

	bugType report.BugTypeID
}

// NewNilDeref builds the checker.
func NewNilDeref(reg *report.Registry) *NilDeref {
	return &NilDeref{bugType: reg.Register("nil dereference", "memory")}
}

func (c *NilDeref) Name() string { return "nilderef" }

// PostAssign inspects the address operand of memory instructions. A
// dereference of a pointer known to be nil is fatal for the path.
func (c *NilDeref) PostAssign(ctx *engine.Context, st *state.ProgramState, _ sym.SVal) *state.ProgramState {
	in := ctx.Instr
	if in.Kind != engine.OpLoad && in.Kind != engine.OpStore {
		return st
	}

	addr := st.NodeValue(in.X)
	switch {
	case isNilLiteral(addr):
		c.emit(ctx, "Dereference of literal nil pointer")
		return nil
	case isNilByConstraint(st, addr):
		r := c.build(ctx, "Dereference of a pointer that is nil on this path")
		if id, ok := addr.AsSymbol(); ok {
			r.AddVisitor(&nilOriginVisitor{sym: id})
		}
		ctx.Reporter.EmitReport(r)
		return nil
	default:
		return st
	}
}

func isNilLiteral(v sym.SVal) bool {
	n, ok := v.AsInt()
	return ok && n == 0
}

func isNilByConstraint(st *state.ProgramState, v sym.SVal) bool {
	id, ok := v.AsSymbol()
	return ok && st.Constraints().IsZero(id)
}

func (c *NilDeref) build(ctx *engine.Context, long string) *report.BugReport {
	r := report.New(c.bugType, "nil dereference", long, ctx.Instr.Span, ctx.Node)
	if addrInstr := ctx.Fn.InstrAt(ctx.Instr.X); addrInstr != nil {
		r.AddRange(addrInstr.Span)
	}
	return r
}

func (c *NilDeref) emit(ctx *engine.Context, long string) {
	ctx.Reporter.EmitReport(c.build(ctx, long))
}

// nilOriginVisitor annotates the point where the pointer first became
// nil on the walked path.
type nilOriginVisitor struct {
	sym sym.SymbolID
}

func (v *nilOriginVisitor) Profile() uint64 {
	return report.VisitorProfile("nil-origin", uint64(v.sym))
}

// VisitNode fires on the latest node whose state pins the symbol to
// zero while the predecessor's does not.
func (v *nilOriginVisitor) VisitNode(ctx *report.VisitContext) *report.Piece {
	if ctx.Prev == nil {
		return nil
	}
	currNil := ctx.Curr.State.Constraints().IsZero(v.sym)
	prevNil := ctx.Prev.State.Constraints().IsZero(v.sym)
	if !currNil || prevNil {
		return nil
	}
	piece := &report.Piece{Kind: report.PieceEvent, Msg: "Pointer is assumed nil here"}
	if ctx.SpanOf != nil {
		piece.Span = ctx.SpanOf(ctx.Curr.Point.Node)
	}
	return piece
}
