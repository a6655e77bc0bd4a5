package diagfmt

import (
	"encoding/json"
	"io"

	"strata/internal/driver"
	"strata/internal/report"
)

// LocationJSON is a resolved position inside a file.
type LocationJSON struct {
	File string `json:"file"`
	Line uint32 `json:"line"`
	Col  uint32 `json:"col"`
}

// PieceJSON is one path annotation of a finding.
type PieceJSON struct {
	Kind     string       `json:"kind"`
	Message  string       `json:"message"`
	Location LocationJSON `json:"location"`
}

// FindingJSON is the machine-readable form of one finding.
type FindingJSON struct {
	Func     string       `json:"func"`
	Check    string       `json:"check"`
	Category string       `json:"category"`
	Message  string       `json:"message"`
	Detail   string       `json:"detail,omitempty"`
	Location LocationJSON `json:"location"`
	Path     []PieceJSON  `json:"path,omitempty"`
}

// FindingsOutput is the root of the JSON document.
type FindingsOutput struct {
	Findings []FindingJSON `json:"findings"`
	Count    int           `json:"count"`
}

// BuildFindingsOutput shapes the JSON document without serializing it.
// Count always reflects the full set, even when Max truncates Findings.
func BuildFindingsOutput(findings []driver.Finding, opts JSONOpts) FindingsOutput {
	limit := len(findings)
	if opts.Max > 0 && opts.Max < limit {
		limit = opts.Max
	}

	out := FindingsOutput{
		Findings: make([]FindingJSON, 0, limit),
		Count:    len(findings),
	}
	for i := range findings[:limit] {
		f := &findings[i]
		fj := FindingJSON{
			Func:     f.Func,
			Check:    f.Check,
			Category: f.Category,
			Message:  f.Short,
			Detail:   f.Long,
			Location: LocationJSON{File: f.Path, Line: f.Line, Col: f.Col},
		}
		if opts.IncludePath {
			for _, p := range f.Pieces {
				fj.Path = append(fj.Path, PieceJSON{
					Kind:     kindName(report.PieceKind(p.Kind)),
					Message:  p.Msg,
					Location: LocationJSON{File: p.Path, Line: p.Line, Col: p.Col},
				})
			}
		}
		out.Findings = append(out.Findings, fj)
	}
	return out
}

// JSON writes findings as an indented JSON document.
func JSON(w io.Writer, findings []driver.Finding, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildFindingsOutput(findings, opts))
}

func kindName(k report.PieceKind) string {
	switch k {
	case report.PieceEvent:
		return "event"
	case report.PieceControl:
		return "control"
	case report.PieceEndOfPath:
		return "end"
	default:
		return "unknown"
	}
}
