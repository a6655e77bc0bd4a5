package source

import "testing"

func TestResolveMultiLine(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("test.go", []byte("ab\ncd\ne"))

	cases := []struct {
		off  uint32
		want LineCol
	}{
		{0, LineCol{Line: 1, Col: 1}},
		{2, LineCol{Line: 1, Col: 3}}, // the newline itself
		{3, LineCol{Line: 2, Col: 1}},
		{4, LineCol{Line: 2, Col: 2}},
		{6, LineCol{Line: 3, Col: 1}},
	}
	for _, c := range cases {
		got, _ := fs.Resolve(Span{File: id, Start: c.off, End: c.off})
		if got != c.want {
			t.Fatalf("off %d: expected %+v, got %+v", c.off, c.want, got)
		}
	}
}

func TestResolveUTF8(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("test.go", []byte("α\n")) // α is two bytes

	start, end := fs.Resolve(Span{File: id, Start: 0, End: 1})
	if start != (LineCol{Line: 1, Col: 1}) {
		t.Fatalf("unexpected start %+v", start)
	}
	if end != (LineCol{Line: 1, Col: 2}) {
		t.Fatalf("unexpected end %+v", end)
	}
}

func TestFileVersioning(t *testing.T) {
	fs := NewFileSet()
	id1 := fs.Add("test.go", []byte("version 1"), 0)
	id2 := fs.Add("test.go", []byte("version 2"), 0)
	if id1 == id2 {
		t.Fatalf("expected distinct FileIDs for re-added path")
	}
	f, ok := fs.ByPath("test.go")
	if !ok || f.ID != id2 {
		t.Fatalf("path index should point at the latest version")
	}
}

func TestLine(t *testing.T) {
	fs := NewFileSet()
	id := fs.AddVirtual("test.go", []byte("first\nsecond\nthird"))
	f := fs.Get(id)

	if got := f.Line(1); got != "first" {
		t.Fatalf("line 1: %q", got)
	}
	if got := f.Line(2); got != "second" {
		t.Fatalf("line 2: %q", got)
	}
	if got := f.Line(3); got != "third" {
		t.Fatalf("line 3: %q", got)
	}
	if got := f.Line(4); got != "" {
		t.Fatalf("line 4 should be empty, got %q", got)
	}
}

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 5, End: 10}
	b := Span{File: 1, Start: 2, End: 7}
	c := a.Cover(b)
	if c.Start != 2 || c.End != 10 {
		t.Fatalf("unexpected cover %+v", c)
	}
	other := Span{File: 2, Start: 0, End: 100}
	if a.Cover(other) != a {
		t.Fatalf("cover across files must be a no-op")
	}
}
