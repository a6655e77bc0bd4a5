package report

import (
	"fmt"
	"hash/fnv"

	"strata/internal/graph"
	"strata/internal/source"
)

// VisitContext is what a visitor sees at one backward step: the pair of
// nodes forming the edge, plus lookups into the analyzed function. The
// walk itself owns no other mutable state, so replaying it for another
// equivalence-class member sees exactly the same sequence.
type VisitContext struct {
	// Prev is the predecessor node, Curr the node being annotated.
	Prev, Curr *graph.Node

	// Describe renders the instruction at a node id, "" when unknown.
	Describe func(node uint32) string
	// SpanOf locates the instruction at a node id.
	SpanOf func(node uint32) source.Span

	// add registers a lazily-discovered visitor for the rest of the walk.
	add func(Visitor)
}

// AddVisitor registers a visitor for the remaining (earlier) part of the
// walk. Registration is deduplicated by Profile, so re-adding the same
// configuration is harmless.
func (ctx *VisitContext) AddVisitor(v Visitor) {
	if ctx.add != nil {
		ctx.add(v)
	}
}

// Visitor inspects one backward edge at a time and may emit a piece.
// Implementations must be side-effect-free with respect to which nodes
// they will see: the walk may be replayed.
type Visitor interface {
	// Profile returns a structural digest of the visitor's
	// configuration. Two visitors with equal profiles are the same
	// annotator and only one of them runs.
	Profile() uint64
	// VisitNode may return a piece annotating Curr, or nil.
	VisitNode(ctx *VisitContext) *Piece
}

// VisitorProfile hashes a visitor name and its parameters into a
// Profile value.
func VisitorProfile(name string, params ...uint64) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	var buf [8]byte
	for _, p := range params {
		for i := range buf {
			buf[i] = byte(p >> (8 * i))
		}
		h.Write(buf[:])
	}
	return h.Sum64()
}

// BranchConditionVisitor annotates every conditional branch on the path
// with the direction it went. It is the built-in generic annotator and
// is always part of the walk.
type BranchConditionVisitor struct{}

func (BranchConditionVisitor) Profile() uint64 {
	return VisitorProfile("branch-condition")
}

func (BranchConditionVisitor) VisitNode(ctx *VisitContext) *Piece {
	kind := ctx.Curr.Point.Kind
	if kind != graph.PointBranchTrue && kind != graph.PointBranchFalse {
		return nil
	}
	sense := "true"
	if kind == graph.PointBranchFalse {
		sense = "false"
	}
	node := ctx.Curr.Point.Node
	msg := fmt.Sprintf("Assuming condition is %s", sense)
	if ctx.Describe != nil {
		if text := ctx.Describe(node); text != "" {
			msg = fmt.Sprintf("Assuming '%s' is %s", text, sense)
		}
	}
	piece := &Piece{Kind: PieceControl, Msg: msg}
	if ctx.SpanOf != nil {
		piece.Span = ctx.SpanOf(node)
	}
	return piece
}

// visitorSet is the deduplicated registration set for one walk.
type visitorSet struct {
	order    []Visitor
	profiles map[uint64]struct{}
}

func newVisitorSet(seed ...Visitor) *visitorSet {
	s := &visitorSet{profiles: make(map[uint64]struct{}, len(seed)+1)}
	for _, v := range seed {
		s.add(v)
	}
	return s
}

func (s *visitorSet) add(v Visitor) {
	p := v.Profile()
	if _, ok := s.profiles[p]; ok {
		return
	}
	s.profiles[p] = struct{}{}
	s.order = append(s.order, v)
}
