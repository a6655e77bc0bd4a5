// Package driver orchestrates analysis runs: it loads and lowers the
// target packages, fans functions out across workers, consults the
// findings cache, and aggregates finished diagnostics.
package driver

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"strata/internal/checkers"
	"strata/internal/config"
	"strata/internal/engine"
	"strata/internal/frontend"
	"strata/internal/observ"
	"strata/internal/report"
	"strata/internal/source"
	"strata/internal/sym"
	"strata/internal/trace"
)

// FindingPiece is one resolved path annotation of a finding.
type FindingPiece struct {
	Kind uint8
	Path string
	Line uint32
	Col  uint32
	Msg  string
}

// Finding is a finished diagnostic with every span resolved to
// path/line/column, so it survives serialization without a FileSet.
type Finding struct {
	Func     string
	Check    string
	Category string
	Short    string
	Long     string
	Path     string
	Line     uint32
	Col      uint32
	Pieces   []FindingPiece
}

// Event reports per-function progress to an optional observer.
type Event struct {
	Func     string
	Index    int // 0-based position in the run
	Total    int
	Cached   bool
	Findings int
}

// Options configure a run. The zero value analyzes with defaults, no
// cache, and no progress reporting.
type Options struct {
	Config config.Config
	Tracer trace.Tracer // nil falls back to the context tracer
	Cache  *DiskCache
	Jobs   int // <=0 means GOMAXPROCS
	Events chan<- Event
}

// RunResult aggregates one analysis run.
type RunResult struct {
	Findings   []Finding
	Functions  int
	CacheHits  int
	Incomplete int // functions that exhausted an exploration budget
	Timings    observ.Report
}

// Analyze loads the packages matched by patterns under dir and analyzes
// every lowered function.
func Analyze(ctx context.Context, dir string, opts Options, patterns ...string) (*RunResult, error) {
	timer := observ.NewTimer()

	loadPhase := timer.Begin("load")
	prog, err := frontend.Load(dir, patterns...)
	if err != nil {
		return nil, err
	}
	fns := prog.Lowered()
	timer.End(loadPhase, fmt.Sprintf("%d functions", len(fns)))

	res, err := AnalyzeFunctions(ctx, fns, prog.Files, opts)
	if err != nil {
		return nil, err
	}
	res.Timings = merge(timer, res.Timings)
	return res, nil
}

// AnalyzeFunctions runs the engine over already-lowered functions.
// Each worker owns its symbol table and state manager, so nothing in
// the hot path is shared; files is only read. Progress events are sent
// to opts.Events as each function finishes; the consumer must keep
// receiving until the call returns.
func AnalyzeFunctions(ctx context.Context, fns []*engine.Function, files *source.FileSet, opts Options) (*RunResult, error) {
	tr := opts.Tracer
	if tr == nil {
		tr = trace.FromContext(ctx)
	}
	timer := observ.NewTimer()
	phase := timer.Begin("analyze")

	runSpan := trace.Begin(tr, trace.ScopeDriver, "analyze", trace.CurrentSpan(ctx).SpanID)
	ctx = trace.WithSpanContext(ctx, trace.SpanContext{SpanID: runSpan.ID()})

	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = opts.Config.Analysis.Jobs
	}
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	if jobs > len(fns) && len(fns) > 0 {
		jobs = len(fns)
	}

	results := make([]funcOutcome, len(fns))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = analyzeFunc(gctx, fn, i, len(fns), files, &opts, tr)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		runSpan.End(err.Error())
		return nil, err
	}

	res := &RunResult{Functions: len(fns)}
	for i := range results {
		res.Findings = append(res.Findings, results[i].findings...)
		if results[i].cached {
			res.CacheHits++
		}
		if results[i].incomplete {
			res.Incomplete++
		}
	}
	sortFindings(res.Findings)

	runSpan.End(fmt.Sprintf("%d findings", len(res.Findings)))
	timer.End(phase, fmt.Sprintf("%d findings, %d cached", len(res.Findings), res.CacheHits))
	res.Timings = timer.Report()
	return res, nil
}

// funcOutcome is one worker's share of a run.
type funcOutcome struct {
	findings   []Finding
	cached     bool
	incomplete bool
}

// analyzeFunc handles one function end to end: cache probe, engine run,
// cache write-back, and the progress event. The event is sent before
// returning, while the run is still in flight, so a live consumer sees
// functions finish one by one.
func analyzeFunc(ctx context.Context, fn *engine.Function, i, total int, files *source.FileSet, opts *Options, tr trace.Tracer) funcOutcome {
	sp := trace.Begin(tr, trace.ScopeFunc, fn.Name, trace.CurrentSpan(ctx).SpanID)

	var out funcOutcome
	key := digestOf(fn, files, &opts.Config)
	if cached, ok, err := opts.Cache.Get(key, fn.Name); err == nil && ok {
		out = funcOutcome{findings: cached, cached: true}
		sp.End("cache hit")
	} else {
		out.findings, out.incomplete = analyzeOne(fn, files, &opts.Config, tr)
		if opts.Cache != nil && !out.incomplete {
			if err := opts.Cache.Put(key, fn.Name, out.findings); err != nil {
				trace.Point(tr, trace.ScopeDriver, "cache-put-failed", err.Error())
			}
		}
		sp.End(fmt.Sprintf("%d findings", len(out.findings)))
	}

	if opts.Events != nil {
		opts.Events <- Event{
			Func:     fn.Name,
			Index:    i,
			Total:    total,
			Cached:   out.cached,
			Findings: len(out.findings),
		}
	}
	return out
}

// analyzeOne runs a fresh engine over one function and converts its
// diagnostics into resolved findings.
func analyzeOne(fn *engine.Function, files *source.FileSet, cfg *config.Config, tr trace.Tracer) ([]Finding, bool) {
	reg := report.NewRegistry()
	gen := &report.GraphPathGenerator{Describe: fn.Describe, SpanOf: fn.SpanOf}
	rep := report.NewReporter(reg, gen)

	var checks []engine.Checker
	if cfg.Checks.Taintflow {
		checks = append(checks, checkers.NewTaintflow(reg, cfg.Taint.Sources, cfg.Taint.Sinks))
	}
	if cfg.Checks.NilDeref {
		checks = append(checks, checkers.NewNilDeref(reg))
	}

	syms := sym.NewTable()
	eng := engine.New(syms, rep, checks, tr, engine.Limits{
		MaxSteps: cfg.Analysis.MaxSteps,
		MaxNodes: cfg.Analysis.MaxNodes,
	})
	result := eng.Run(fn)

	var out []Finding
	for _, d := range rep.Flush() {
		out = append(out, resolve(fn.Name, d, files))
	}
	return out, result.Incomplete
}

// digestOf keys the cache entry: file content hash, function identity,
// and every knob that changes analysis output.
func digestOf(fn *engine.Function, files *source.FileSet, cfg *config.Config) Digest {
	h := sha256.New()
	if files != nil && int(fn.File) < files.Len() {
		fh := files.Get(fn.File).Hash
		h.Write(fh[:])
	}
	h.Write([]byte(fn.Name))

	var knobs [17]byte
	binary.LittleEndian.PutUint64(knobs[0:], uint64(cfg.Analysis.MaxSteps))
	binary.LittleEndian.PutUint64(knobs[8:], uint64(cfg.Analysis.MaxNodes))
	var bits byte
	if cfg.Checks.Taintflow {
		bits |= 1
	}
	if cfg.Checks.NilDeref {
		bits |= 2
	}
	knobs[16] = bits
	h.Write(knobs[:])
	for _, s := range cfg.Taint.Sources {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	h.Write([]byte{0xff})
	for _, s := range cfg.Taint.Sinks {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}

	var key Digest
	copy(key[:], h.Sum(nil))
	return key
}

func resolve(fnName string, d *report.PathDiagnostic, files *source.FileSet) Finding {
	f := Finding{
		Func:     fnName,
		Check:    d.Type.Name,
		Category: d.Type.Category,
		Short:    d.Short,
		Long:     d.Long,
	}
	f.Path, f.Line, f.Col = position(d.Loc, files)
	for _, p := range d.Pieces {
		fp := FindingPiece{Kind: uint8(p.Kind), Msg: p.Msg}
		fp.Path, fp.Line, fp.Col = position(p.Span, files)
		f.Pieces = append(f.Pieces, fp)
	}
	return f
}

func position(span source.Span, files *source.FileSet) (string, uint32, uint32) {
	if files == nil || int(span.File) >= files.Len() {
		return "", 0, 0
	}
	start, _ := files.Resolve(span)
	return files.Get(span.File).Path, start.Line, start.Col
}

func sortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Path != fs[j].Path {
			return fs[i].Path < fs[j].Path
		}
		if fs[i].Line != fs[j].Line {
			return fs[i].Line < fs[j].Line
		}
		if fs[i].Col != fs[j].Col {
			return fs[i].Col < fs[j].Col
		}
		return fs[i].Check < fs[j].Check
	})
}

func merge(t *observ.Timer, inner observ.Report) observ.Report {
	outer := t.Report()
	outer.Phases = append(outer.Phases, inner.Phases...)
	outer.TotalMS += inner.TotalMS
	return outer
}
