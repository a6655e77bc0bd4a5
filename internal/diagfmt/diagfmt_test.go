package diagfmt

import (
	"encoding/json"
	"strings"
	"testing"

	"strata/internal/driver"
	"strata/internal/source"
)

func sample() []driver.Finding {
	return []driver.Finding{
		{
			Func:     "main",
			Check:    "nil dereference",
			Category: "memory",
			Short:    "Dereference of nil pointer",
			Long:     "Dereference of a pointer constrained to nil",
			Path:     "app.go",
			Line:     3,
			Col:      5,
			Pieces: []driver.FindingPiece{
				{Kind: 2, Path: "app.go", Line: 2, Col: 4, Msg: "Assuming 'p == nil' is true"},
				{Kind: 3, Path: "app.go", Line: 3, Col: 5, Msg: "Dereference of nil pointer"},
			},
		},
	}
}

func TestPrettyHeaderAndPath(t *testing.T) {
	var sb strings.Builder
	Pretty(&sb, sample(), nil, PrettyOpts{ShowPath: true})
	out := sb.String()

	if !strings.Contains(out, "app.go:3:5: nil dereference [memory]: Dereference of nil pointer") {
		t.Fatalf("missing header line:\n%s", out)
	}
	if !strings.Contains(out, "branch app.go:2:4: Assuming 'p == nil' is true") {
		t.Fatalf("missing control piece:\n%s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color escapes leaked into uncolored output:\n%s", out)
	}
}

func TestPrettyPreviewCaretAlignment(t *testing.T) {
	fs := source.NewFileSet()
	fs.AddVirtual("app.go", []byte("package x\nvar p *int\n  v := *p\n"))

	var sb strings.Builder
	Pretty(&sb, sample(), fs, PrettyOpts{ShowPreview: true})
	out := sb.String()

	if !strings.Contains(out, "  v := *p") {
		t.Fatalf("missing preview line:\n%s", out)
	}
	// Caret sits under column 5 of the preview, behind the 4-space gutter.
	if !strings.Contains(out, "\n        ^") {
		t.Fatalf("caret misaligned:\n%s", out)
	}
}

func TestPrettySkipsSingletonPath(t *testing.T) {
	fs := sample()
	fs[0].Pieces = fs[0].Pieces[1:]

	var sb strings.Builder
	Pretty(&sb, fs, nil, PrettyOpts{ShowPath: true})
	if strings.Contains(sb.String(), "error ") {
		t.Fatalf("point-only finding must not print a path:\n%s", sb.String())
	}
}

func TestGutterWidthWideRunes(t *testing.T) {
	// Two CJK cells plus one ASCII before column 4.
	if w := gutterWidth("日本x!", 4); w != 5 {
		t.Fatalf("gutter width = %d, want 5", w)
	}
	if w := gutterWidth("ab", 10); w != 2 {
		t.Fatalf("past-end column must clamp, got %d", w)
	}
}

func TestJSONShapeAndTruncation(t *testing.T) {
	findings := append(sample(), sample()...)

	var sb strings.Builder
	if err := JSON(&sb, findings, JSONOpts{IncludePath: true, Max: 1}); err != nil {
		t.Fatalf("encode: %v", err)
	}

	var out FindingsOutput
	if err := json.Unmarshal([]byte(sb.String()), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Count != 2 || len(out.Findings) != 1 {
		t.Fatalf("count=%d findings=%d, want 2 and 1", out.Count, len(out.Findings))
	}
	f := out.Findings[0]
	if f.Check != "nil dereference" || f.Location.Line != 3 {
		t.Fatalf("unexpected finding %+v", f)
	}
	if len(f.Path) != 2 || f.Path[0].Kind != "control" || f.Path[1].Kind != "end" {
		t.Fatalf("unexpected path %+v", f.Path)
	}
}
