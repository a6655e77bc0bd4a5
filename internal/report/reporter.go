package report

import (
	"strata/internal/source"
)

// Reporter collects bug reports during exploration and folds them into
// equivalence classes. Diagnostics are produced once, at Flush, one per
// class. A reporter never drops a finding: reports with no error node or
// an unregistered type still flush as degraded point diagnostics.
type Reporter struct {
	reg *Registry
	gen PathGenerator

	classes map[reportSig]*EquivClass
	order   []*EquivClass
}

// NewReporter constructs a reporter. gen may be nil, which degrades
// every diagnostic to point-only.
func NewReporter(reg *Registry, gen PathGenerator) *Reporter {
	return &Reporter{
		reg:     reg,
		gen:     gen,
		classes: make(map[reportSig]*EquivClass, 16),
	}
}

// EmitReport folds a report into its equivalence class, creating the
// class on first sight. Classes flush in first-registration order.
func (r *Reporter) EmitReport(rep *BugReport) {
	sig := rep.signature()
	class, ok := r.classes[sig]
	if !ok {
		class = &EquivClass{sig: sig}
		r.classes[sig] = class
		r.order = append(r.order, class)
	}
	class.Reports = append(class.Reports, rep)
}

// EmitBasicReport registers a path-insensitive finding: no error node,
// so the flushed diagnostic is point-only.
func (r *Reporter) EmitBasicReport(t BugTypeID, short, long string, loc source.Span) {
	r.EmitReport(New(t, short, long, loc, nil))
}

// Classes returns the registered classes in first-registration order.
func (r *Reporter) Classes() []*EquivClass { return r.order }

// Flush renders one diagnostic per equivalence class, in registration
// order, and clears the reporter for reuse.
func (r *Reporter) Flush() []*PathDiagnostic {
	diags := make([]*PathDiagnostic, 0, len(r.order))
	for _, class := range r.order {
		diags = append(diags, r.diagnose(class))
	}
	r.classes = make(map[reportSig]*EquivClass, 16)
	r.order = nil
	return diags
}

func (r *Reporter) diagnose(class *EquivClass) *PathDiagnostic {
	primary := class.Primary()
	d := &PathDiagnostic{
		Type:   r.reg.Lookup(primary.Type),
		Short:  primary.Short,
		Long:   primary.Long,
		Loc:    primary.Loc,
		Ranges: primary.Ranges,
	}
	if r.gen != nil {
		d.Pieces = r.gen.Pieces(class)
	}
	if len(d.Pieces) == 0 {
		d.Pieces = []Piece{{Kind: PieceEndOfPath, Span: primary.Loc, Msg: primary.Short}}
	}
	return d
}
