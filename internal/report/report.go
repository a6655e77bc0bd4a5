package report

import (
	"strata/internal/graph"
	"strata/internal/source"
)

// BugReport describes one discovered issue. It is mutable until emitted:
// a checker may keep adding ranges and visitors, but once handed to the
// Reporter the report belongs to its equivalence class.
type BugReport struct {
	Type  BugTypeID
	Short string // one-line summary shown at the error location
	Long  string // full description; part of the equivalence signature
	Loc   source.Span

	Ranges   []source.Span
	ErrNode  *graph.Node // nil produces a degraded point diagnostic
	visitors []Visitor
}

// New constructs a report. ErrNode may be nil for path-insensitive
// findings.
func New(t BugTypeID, short, long string, loc source.Span, errNode *graph.Node) *BugReport {
	return &BugReport{Type: t, Short: short, Long: long, Loc: loc, ErrNode: errNode}
}

// AddRange attaches an extra highlighted source range.
func (r *BugReport) AddRange(span source.Span) {
	r.Ranges = append(r.Ranges, span)
}

// AddVisitor seeds an extra path annotator for the backward walk.
func (r *BugReport) AddVisitor(v Visitor) {
	r.visitors = append(r.visitors, v)
}

// Visitors returns the seeded annotators.
func (r *BugReport) Visitors() []Visitor { return r.visitors }

// reportSig is the equivalence signature: two reports with the same
// signature are the same logical bug regardless of which path found it.
type reportSig struct {
	bugType BugTypeID
	locRaw  uint64
	long    string
}

func (r *BugReport) signature() reportSig {
	return reportSig{bugType: r.Type, locRaw: r.Loc.Raw(), long: r.Long}
}

// EquivClass owns every report that shares one signature. It is the unit
// of deduplication and of diagnostic generation.
type EquivClass struct {
	sig     reportSig
	Reports []*BugReport
}

// Primary returns the first registered member; its fields describe the
// class.
func (c *EquivClass) Primary() *BugReport { return c.Reports[0] }

// Len returns the number of folded reports.
func (c *EquivClass) Len() int { return len(c.Reports) }
