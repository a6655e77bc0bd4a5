package diagfmt

// PrettyOpts configures pretty-printing of findings.
type PrettyOpts struct {
	Color       bool
	ShowPath    bool // print each path annotation under the finding
	ShowPreview bool // print the offending source line with a caret
}

// JSONOpts configures JSON output of findings.
type JSONOpts struct {
	IncludePath bool // include path annotations
	Max         int  // truncate output after this many findings, 0 is unlimited
}
