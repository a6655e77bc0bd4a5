package driver

import (
	"context"
	"testing"

	"strata/internal/config"
	"strata/internal/engine"
	"strata/internal/source"
	"strata/internal/trace"
)

// leakyFunc routes a taint source into a sink so a run produces one
// deterministic finding.
func leakyFunc(name string, file source.FileID) *engine.Function {
	fn := &engine.Function{
		Name: name,
		File: file,
		Blocks: []*engine.Block{
			{Index: 0, Instrs: []engine.Instr{
				{ID: 1, Kind: engine.OpCall, Callee: "input", Span: source.Span{File: file, Start: 0, End: 5}, Text: "input()"},
				{ID: 2, Kind: engine.OpCall, Callee: "exec", Args: []uint32{1}, Span: source.Span{File: file, Start: 6, End: 10}, Text: "exec(v)"},
				{ID: 3, Kind: engine.OpRet},
			}},
		},
	}
	fn.Index()
	return fn
}

func cleanFunc(name string, file source.FileID) *engine.Function {
	fn := &engine.Function{
		Name: name,
		File: file,
		Blocks: []*engine.Block{
			{Index: 0, Instrs: []engine.Instr{
				{ID: 1, Kind: engine.OpConst, Const: 1},
				{ID: 2, Kind: engine.OpRet},
			}},
		},
	}
	fn.Index()
	return fn
}

func taintConfig() config.Config {
	cfg := config.Default()
	cfg.Taint.Sources = []string{"input"}
	cfg.Taint.Sinks = []string{"exec"}
	return cfg
}

func TestAnalyzeFunctionsReportsResolvedFindings(t *testing.T) {
	files := source.NewFileSet()
	id := files.AddVirtual("app.go", []byte("input\nexec\n"))

	fns := []*engine.Function{leakyFunc("main", id), cleanFunc("helper", id)}
	res, err := AnalyzeFunctions(context.Background(), fns, files, Options{Config: taintConfig()})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if res.Functions != 2 {
		t.Fatalf("want 2 functions analyzed, got %d", res.Functions)
	}
	if len(res.Findings) != 1 {
		t.Fatalf("want 1 finding, got %d", len(res.Findings))
	}
	f := res.Findings[0]
	if f.Func != "main" || f.Check != "tainted data reaches sink" {
		t.Fatalf("unexpected finding %+v", f)
	}
	if f.Path != "app.go" || f.Line != 2 {
		t.Fatalf("sink span must resolve to app.go:2, got %s:%d", f.Path, f.Line)
	}
}

func TestFindingsSortedByLocation(t *testing.T) {
	files := source.NewFileSet()
	a := files.AddVirtual("a.go", []byte("input exec\n"))
	b := files.AddVirtual("b.go", []byte("input exec\n"))

	// b.go first in the function list, a.go must still sort first.
	fns := []*engine.Function{leakyFunc("second", b), leakyFunc("first", a)}
	res, err := AnalyzeFunctions(context.Background(), fns, files, Options{Config: taintConfig()})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(res.Findings) != 2 {
		t.Fatalf("want 2 findings, got %d", len(res.Findings))
	}
	if res.Findings[0].Path != "a.go" || res.Findings[1].Path != "b.go" {
		t.Fatalf("findings out of order: %s, %s", res.Findings[0].Path, res.Findings[1].Path)
	}
}

func TestCacheSkipsSecondRun(t *testing.T) {
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	files := source.NewFileSet()
	id := files.AddVirtual("app.go", []byte("input exec\n"))
	fns := []*engine.Function{leakyFunc("main", id)}
	opts := Options{Config: taintConfig(), Cache: cache}

	first, err := AnalyzeFunctions(context.Background(), fns, files, opts)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.CacheHits != 0 {
		t.Fatalf("first run must miss, got %d hits", first.CacheHits)
	}

	second, err := AnalyzeFunctions(context.Background(), fns, files, opts)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.CacheHits != 1 {
		t.Fatalf("second run must hit, got %d hits", second.CacheHits)
	}
	if len(second.Findings) != len(first.Findings) {
		t.Fatalf("cached findings diverge: %d vs %d", len(second.Findings), len(first.Findings))
	}
	if second.Findings[0].Line != first.Findings[0].Line {
		t.Fatalf("cached finding lost its position")
	}
}

func TestDigestTracksConfig(t *testing.T) {
	files := source.NewFileSet()
	id := files.AddVirtual("app.go", []byte("input exec\n"))
	fn := leakyFunc("main", id)

	base := taintConfig()
	same := taintConfig()
	if digestOf(fn, files, &base) != digestOf(fn, files, &same) {
		t.Fatalf("identical config must produce identical digest")
	}

	bumped := taintConfig()
	bumped.Analysis.MaxSteps = base.Analysis.MaxSteps + 1
	if digestOf(fn, files, &base) == digestOf(fn, files, &bumped) {
		t.Fatalf("step budget must be part of the digest")
	}

	resunk := taintConfig()
	resunk.Taint.Sinks = []string{"system"}
	if digestOf(fn, files, &base) == digestOf(fn, files, &resunk) {
		t.Fatalf("sink list must be part of the digest")
	}

	off := taintConfig()
	off.Checks.NilDeref = false
	if digestOf(fn, files, &base) == digestOf(fn, files, &off) {
		t.Fatalf("check toggles must be part of the digest")
	}
}

func TestDiskCacheRejectsStaleSchema(t *testing.T) {
	cache, err := OpenDiskCacheAt(t.TempDir())
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	var key Digest
	key[0] = 7
	want := []Finding{{Func: "f", Check: "c", Short: "s"}}
	if err := cache.Put(key, "f", want); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := cache.Get(key, "f")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got[0].Check != "c" {
		t.Fatalf("roundtrip lost data: %+v", got[0])
	}

	// Same key but a different function name is a stale entry.
	if _, ok, _ := cache.Get(key, "other"); ok {
		t.Fatalf("mismatched function name must miss")
	}

	var absent Digest
	absent[0] = 9
	if _, ok, _ := cache.Get(absent, "f"); ok {
		t.Fatalf("unknown key must miss")
	}
}

func TestEventSentWhileFunctionRuns(t *testing.T) {
	files := source.NewFileSet()
	id := files.AddVirtual("app.go", []byte("input exec\n"))
	fn := leakyFunc("main", id)
	cfg := taintConfig()

	// Unbuffered channel: the send can only complete through a live
	// receiver, so the per-function unit must emit its event before it
	// returns, not from some aggregation step after the whole run.
	events := make(chan Event)
	got := make(chan Event, 1)
	go func() { got <- <-events }()

	opts := Options{Config: cfg, Events: events}
	out := analyzeFunc(context.Background(), fn, 0, 1, files, &opts, trace.Nop)

	ev := <-got
	if ev.Func != "main" || ev.Index != 0 || ev.Total != 1 {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Cached || ev.Findings != 1 {
		t.Fatalf("event must carry the outcome, got %+v", ev)
	}
	if len(out.findings) != 1 {
		t.Fatalf("want 1 finding, got %d", len(out.findings))
	}
}

func TestTracerFlowsThroughContext(t *testing.T) {
	files := source.NewFileSet()
	id := files.AddVirtual("app.go", []byte("input exec\n"))
	fns := []*engine.Function{leakyFunc("main", id)}

	ring := trace.NewRingTracer(64, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)

	// No explicit tracer in the options: the run must pick the one the
	// context carries.
	if _, err := AnalyzeFunctions(ctx, fns, files, Options{Config: taintConfig()}); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var runID uint64
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindSpanBegin && ev.Scope == trace.ScopeDriver && ev.Name == "analyze" {
			runID = ev.SpanID
		}
	}
	if runID == 0 {
		t.Fatalf("run span missing from the context tracer")
	}
	found := false
	for _, ev := range ring.Snapshot() {
		if ev.Kind == trace.KindSpanBegin && ev.Scope == trace.ScopeFunc && ev.Name == "main" {
			found = true
			if ev.ParentID != runID {
				t.Fatalf("function span parent = %d, want run span %d", ev.ParentID, runID)
			}
		}
	}
	if !found {
		t.Fatalf("function span missing from the context tracer")
	}
}

func TestEventsReportEveryFunction(t *testing.T) {
	files := source.NewFileSet()
	id := files.AddVirtual("app.go", []byte("input exec\n"))
	fns := []*engine.Function{leakyFunc("main", id), cleanFunc("helper", id)}

	events := make(chan Event, len(fns))
	_, err := AnalyzeFunctions(context.Background(), fns, files, Options{Config: taintConfig(), Events: events})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	close(events)

	seen := map[string]Event{}
	for ev := range events {
		if ev.Total != 2 {
			t.Fatalf("event total = %d", ev.Total)
		}
		seen[ev.Func] = ev
	}
	if len(seen) != 2 {
		t.Fatalf("want events for 2 functions, got %d", len(seen))
	}
	if seen["main"].Findings != 1 || seen["helper"].Findings != 0 {
		t.Fatalf("per-function counts wrong: %+v", seen)
	}
}
