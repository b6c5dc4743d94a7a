package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papyr-io/papyr/internal/capability"
	"github.com/papyr-io/papyr/internal/config"
	"github.com/papyr-io/papyr/internal/logging"
	"github.com/papyr-io/papyr/internal/security"
	"github.com/papyr-io/papyr/internal/source"
)

// sharedMetrics registers once per process; engines in tests would
// otherwise collide on the default prometheus registry.
var sharedMetrics = sync.OnceValue(newMetrics)

// Engine synthesizes, runs, and bounds book-source scripts. It is safe for
// concurrent use: all per-call state lives in the ExecutionContext and
// Surface built for each invocation.
type Engine struct {
	cfg      config.EngineConfig
	policies *security.Manager
	pool     *pool
	jar      *capability.Jar
	fetcher  *capability.Fetcher
	files    *capability.Files
	logger   *logging.Logger
	metrics  *metrics
}

// New creates an engine. The policy manager supplies the active policy at
// each call; the cookie jar lives for the process.
func New(cfg config.EngineConfig, policies *security.Manager, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.NewNop()
	}
	jar := capability.NewJar()
	return &Engine{
		cfg:      cfg,
		policies: policies,
		pool:     newPool(cfg.PoolSize, time.Duration(cfg.AcquireWaitMs)*time.Millisecond),
		jar:      jar,
		fetcher:  capability.NewFetcher(jar, logger),
		files:    capability.NewFiles(),
		logger:   logger,
		metrics:  sharedMetrics(),
	}
}

// CookieJar exposes the process-wide jar, mainly for reset endpoints.
func (e *Engine) CookieJar() *capability.Jar {
	return e.jar
}

// Execute runs one operation against a source. All failures come back as
// typed results; no error escapes to the collaborator layer.
func (e *Engine) Execute(ctx context.Context, src *source.BookSource, op Operation, args Args) *ExecuteResult {
	start := time.Now()
	res := e.execute(ctx, src, op, args)
	res.ElapsedMs = time.Since(start).Milliseconds()
	e.metrics.observe(op, res.Status, time.Since(start).Seconds())

	if !res.OK() {
		e.logger.Debug("execution failed",
			zap.String("source", src.ID),
			zap.String("operation", string(op)),
			zap.String("status", string(res.Status)),
			zap.String("error", res.Error),
		)
	}
	return res
}

func (e *Engine) execute(parent context.Context, src *source.BookSource, op Operation, args Args) *ExecuteResult {
	if err := src.Validate(); err != nil {
		return &ExecuteResult{Status: StatusRuleMissing, Error: err.Error()}
	}
	if err := validate(src, op, args); err != nil {
		return &ExecuteResult{Status: StatusRuleMissing, Error: err.Error()}
	}

	policy := e.policies.Active()
	budget := e.budget(op, args.TimeoutMs, policy)

	script, err := synthesize(src, op, args)
	if err != nil {
		return &ExecuteResult{Status: StatusRuleMissing, Error: err.Error()}
	}

	if err := e.pool.acquire(); err != nil {
		return &ExecuteResult{Status: StatusEngineBusy, Error: err.Error()}
	}

	ctx, cancel := context.WithTimeout(parent, budget)

	execCtx := e.newContext(src, op, args)
	surface := capability.NewSurface(
		execCtx, policy, e.fetcher, e.files, capability.NewRequestCounter(),
		e.logger.ForExecution(src.ID, string(op), execCtx.RequestID),
	)
	surface.BindDeadline(ctx)

	results := make(chan *ExecuteResult, 1)
	go func() {
		// The slot frees only when the interpreter actually stops, so an
		// abandoned run cannot stack unbounded goroutines.
		defer e.pool.release()
		defer cancel()
		results <- e.evaluate(ctx, surface, script)
	}()

	select {
	case res := <-results:
		return res
	case <-ctx.Done():
		// Timeout wins over completion. The worker is abandoned; its
		// eventual output lands in the buffered channel and is discarded.
		return &ExecuteResult{Status: StatusTimeout, Error: "execution budget exceeded"}
	}
}

func (e *Engine) evaluate(ctx context.Context, surface *capability.Surface, script string) *ExecuteResult {
	rt := newRuntime(surface)
	val, err := rt.run(ctx, script, surface.Policy.InstructionCeiling)
	if err != nil {
		return classify(err, surface)
	}
	if v := surface.Violation(); v != nil {
		// The script swallowed the denial; it still decides the outcome.
		return &ExecuteResult{Status: StatusSecurityViolation, Rule: v.Rule, Error: v.Detail}
	}
	return &ExecuteResult{Status: StatusSuccess, Value: export(val)}
}

// budget resolves the effective wall-clock allowance: the requested value
// if given, else the operation-class default, never above the policy
// timeout or the configured hard maximum.
func (e *Engine) budget(op Operation, requestedMs int64, policy *security.Policy) time.Duration {
	ms := requestedMs
	if ms <= 0 {
		switch op {
		case OpSearch:
			ms = e.cfg.SearchTimeoutMs
		default:
			ms = e.cfg.DetailTimeoutMs
		}
	}
	if policy.TimeoutMs > 0 && ms > policy.TimeoutMs {
		ms = policy.TimeoutMs
	}
	if e.cfg.MaxTimeoutMs > 0 && ms > e.cfg.MaxTimeoutMs {
		ms = e.cfg.MaxTimeoutMs
	}
	return time.Duration(ms) * time.Millisecond
}

func (e *Engine) newContext(src *source.BookSource, op Operation, args Args) *capability.Context {
	execCtx := capability.NewContext(src.ID, src.Name, src.BaseURL)
	switch op {
	case OpBookInfo:
		execCtx.Book = &capability.BookRef{URL: args.BookURL}
	case OpToc:
		execCtx.Book = &capability.BookRef{URL: args.BookURL}
	case OpContent:
		execCtx.Book = &capability.BookRef{URL: args.BookURL}
		execCtx.Chapter = &capability.ChapterRef{URL: args.ChapterURL}
	}
	return execCtx
}

// Search runs the search operation.
func (e *Engine) Search(ctx context.Context, src *source.BookSource, keyword string) *ExecuteResult {
	return e.Execute(ctx, src, OpSearch, Args{Keyword: keyword})
}

// BookInfo runs the book-info operation.
func (e *Engine) BookInfo(ctx context.Context, src *source.BookSource, bookURL string) *ExecuteResult {
	return e.Execute(ctx, src, OpBookInfo, Args{BookURL: bookURL})
}

// TableOfContents runs the chapter-list operation.
func (e *Engine) TableOfContents(ctx context.Context, src *source.BookSource, tocURL, bookURL string) *ExecuteResult {
	return e.Execute(ctx, src, OpToc, Args{TocURL: tocURL, BookURL: bookURL})
}

// Content runs the chapter-text operation.
func (e *Engine) Content(ctx context.Context, src *source.BookSource, chapterURL, bookURL string) *ExecuteResult {
	return e.Execute(ctx, src, OpContent, Args{ChapterURL: chapterURL, BookURL: bookURL})
}
