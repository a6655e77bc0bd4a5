// Package diagfmt renders finished findings for humans and machines.
package diagfmt

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/unicode/norm"

	"strata/internal/driver"
	"strata/internal/report"
	"strata/internal/source"
)

var (
	headColor     = color.New(color.FgRed, color.Bold)
	categoryColor = color.New(color.FgMagenta)
	pieceColor    = color.New(color.FgCyan)
	caretColor    = color.New(color.FgGreen, color.Bold)
)

// Pretty writes findings in a human-readable form. For each finding it
// prints
//
//	<path>:<line>:<col>: <check> [<category>]: <short>
//
// then, when requested, the offending source line with a caret and the
// causal path one annotation per line. fs may be nil; previews are then
// skipped.
func Pretty(w io.Writer, findings []driver.Finding, fs *source.FileSet, opts PrettyOpts) {
	for _, c := range []*color.Color{headColor, categoryColor, pieceColor, caretColor} {
		if opts.Color {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for i := range findings {
		f := &findings[i]
		fmt.Fprintf(w, "%s: %s %s: %s\n",
			place(f.Path, f.Line, f.Col),
			headColor.Sprint(f.Check),
			categoryColor.Sprintf("[%s]", f.Category),
			f.Short)

		if opts.ShowPreview && fs != nil {
			writePreview(w, fs, f.Path, f.Line, f.Col)
		}
		if opts.ShowPath && len(f.Pieces) > 1 {
			for _, p := range f.Pieces {
				fmt.Fprintf(w, "  %s %s: %s\n",
					pieceMark(report.PieceKind(p.Kind)),
					place(p.Path, p.Line, p.Col),
					pieceColor.Sprint(p.Msg))
			}
		}
	}
}

func place(path string, line, col uint32) string {
	if path == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", path, line, col)
}

func pieceMark(k report.PieceKind) string {
	switch k {
	case report.PieceControl:
		return "branch"
	case report.PieceEndOfPath:
		return "error "
	default:
		return "note  "
	}
}

// writePreview prints the source line and a caret under the reported
// column. The gutter is measured with display widths so tabs and wide
// runes keep the caret aligned.
func writePreview(w io.Writer, fs *source.FileSet, path string, line, col uint32) {
	file, ok := fs.ByPath(path)
	if !ok {
		return
	}
	text := file.Line(line)
	if text == "" {
		return
	}
	fmt.Fprintf(w, "    %s\n", strings.ReplaceAll(text, "\t", "    "))
	fmt.Fprintf(w, "    %s%s\n", strings.Repeat(" ", gutterWidth(text, col)), caretColor.Sprint("^"))
}

// gutterWidth measures the display width of the line up to a 1-based
// column. Content is NFC-normalized first so combining sequences count
// as one cell.
func gutterWidth(line string, col uint32) int {
	if col <= 1 {
		return 0
	}
	runes := []rune(norm.NFC.String(line))
	n := int(col) - 1
	if n > len(runes) {
		n = len(runes)
	}
	width := 0
	for _, r := range runes[:n] {
		if r == '\t' {
			width += 4
			continue
		}
		width += runewidth.RuneWidth(r)
	}
	return width
}
