package report

import "strata/internal/source"

// PieceKind classifies a path diagnostic piece.
type PieceKind uint8

const (
	// PieceEvent annotates a state change ("value assigned here").
	PieceEvent PieceKind = iota + 1
	// PieceControl annotates a control-flow decision.
	PieceControl
	// PieceEndOfPath is the terminal piece at the error location.
	PieceEndOfPath
)

// Piece is one location-plus-text annotation on a reported path.
type Piece struct {
	Kind PieceKind
	Span source.Span
	Msg  string
}

// PathDiagnostic is a finished, renderable diagnostic: the resolved bug
// type, its location, and the causal path in root-to-error order. A
// degraded diagnostic carries only the end-of-path piece.
type PathDiagnostic struct {
	Type   BugType
	Short  string
	Long   string
	Loc    source.Span
	Ranges []source.Span
	Pieces []Piece
}

// PointOnly reports whether the diagnostic carries no path annotations
// beyond the terminal piece.
func (d *PathDiagnostic) PointOnly() bool {
	return len(d.Pieces) <= 1
}
