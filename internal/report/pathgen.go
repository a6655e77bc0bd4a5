package report

import (
	"strata/internal/graph"
	"strata/internal/source"
)

// PathGenerator turns one equivalence class into the pieces of its
// diagnostic.
type PathGenerator interface {
	// Pieces builds the path annotation for the class, root-first with
	// the end-of-path piece last. A nil or empty result degrades the
	// diagnostic to point-only.
	Pieces(class *EquivClass) []Piece
}

// GraphPathGenerator walks the exploration graph backward from the
// representative report's error node, running visitors on every edge.
type GraphPathGenerator struct {
	// Describe renders the instruction at a node id, "" when unknown.
	Describe func(node uint32) string
	// SpanOf locates the instruction at a node id.
	SpanOf func(node uint32) source.Span
}

// Pieces picks the class member with the shortest backward path as the
// representative and walks that path from the error node toward the
// root. Visitors added mid-walk see only the earlier (closer to root)
// part of the path.
func (g *GraphPathGenerator) Pieces(class *EquivClass) []Piece {
	rep, path := g.representative(class)
	if rep == nil {
		return nil
	}

	set := newVisitorSet(BranchConditionVisitor{})
	for _, v := range rep.Visitors() {
		set.add(v)
	}

	end := Piece{Kind: PieceEndOfPath, Span: rep.Loc, Msg: rep.Short}

	// Walk backward: path[0] is the error node, the last entry the
	// root. Pieces accumulate error-first and are reversed at the end.
	var pieces []Piece
	for i := 0; i < len(path); i++ {
		var prev *graph.Node
		if i+1 < len(path) {
			prev = path[i+1]
		}
		ctx := &VisitContext{
			Prev:     prev,
			Curr:     path[i],
			Describe: g.Describe,
			SpanOf:   g.SpanOf,
			add:      set.add,
		}
		// Snapshot: visitors added during this step run from the next
		// step on, not retroactively.
		active := set.order
		for _, v := range active {
			if p := v.VisitNode(ctx); p != nil {
				pieces = append(pieces, *p)
			}
		}
	}

	out := make([]Piece, 0, len(pieces)+1)
	for i := len(pieces) - 1; i >= 0; i-- {
		out = append(out, pieces[i])
	}
	return append(out, end)
}

// representative returns the member whose backward path is shortest,
// with its path. Members without an error node cannot represent the
// class.
func (g *GraphPathGenerator) representative(class *EquivClass) (*BugReport, []*graph.Node) {
	var best *BugReport
	var bestPath []*graph.Node
	for _, r := range class.Reports {
		if r.ErrNode == nil {
			continue
		}
		p := graph.PathToRoot(r.ErrNode)
		if best == nil || len(p) < len(bestPath) {
			best, bestPath = r, p
		}
	}
	return best, bestPath
}
