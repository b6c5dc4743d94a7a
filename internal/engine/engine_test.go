package engine

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papyr-io/papyr/internal/config"
	"github.com/papyr-io/papyr/internal/logging"
	"github.com/papyr-io/papyr/internal/security"
	"github.com/papyr-io/papyr/internal/source"
)

const searchFixture = `
<!DOCTYPE html>
<html><body>
  <div class="book-item"><a class="title" href="/book/1">First Book</a><span class="author">Anna</span></div>
  <div class="book-item"><a class="title" href="/book/2">Second Book</a><span class="author">Ben</span></div>
  <div class="book-item"><a class="title" href="/book/3">Third Book</a><span class="author">Cleo</span></div>
</body></html>`

const bookFixture = `
<!DOCTYPE html>
<html><body>
  <h1 class="book-name">First Book</h1>
  <span class="book-author">Anna</span>
  <div class="intro">A story about shelves.</div>
  <a class="toc-link" href="/book/1/chapters">chapters</a>
</body></html>`

const tocFixture = `
<!DOCTYPE html>
<html><body>
  <ul>
    <li class="chapter"><a href="/book/1/ch/1">Chapter One</a></li>
    <li class="chapter"><a href="/book/1/ch/2">Chapter Two</a></li>
  </ul>
</body></html>`

const chapterFixture = `
<!DOCTYPE html>
<html><body>
  <div id="content"><p>It was a dark and stormy night.</p><p>The shelf creaked.</p></div>
</body></html>`

func testConfig() config.EngineConfig {
	return config.EngineConfig{
		PoolSize:           4,
		AcquireWaitMs:      20,
		SearchTimeoutMs:    5000,
		DetailTimeoutMs:    5000,
		MaxTimeoutMs:       10000,
		InstructionCeiling: 1_000_000,
		BatchParallelism:   4,
		SelfTestKeyword:    "the",
	}
}

func testManager(t *testing.T, level security.Level) *security.Manager {
	t.Helper()
	m := security.NewManager(security.Tunables{
		SandboxRoot:     t.TempDir(),
		MaxResponseSize: 4 * 1024 * 1024,
		MaxHTTPRequests: 50,
	}, "", logging.NewNop())
	switch level {
	case security.LevelTrusted:
		require.NoError(t, m.SetLevel(level, "test-operator-confirmed"))
	default:
		require.NoError(t, m.SetLevel(level, ""))
	}
	return m
}

// trustedEngine talks to httptest servers, which live on loopback, so the
// trusted level is required for fetches to pass the internal-network gate.
func trustedEngine(t *testing.T) *Engine {
	t.Helper()
	return New(testConfig(), testManager(t, security.LevelTrusted), logging.NewNop())
}

func fixtureServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchFixture)
	})
	mux.HandleFunc("/book/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, bookFixture)
	})
	mux.HandleFunc("/book/1/chapters", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, tocFixture)
	})
	mux.HandleFunc("/book/1/ch/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chapterFixture)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func fixtureSource(base string) *source.BookSource {
	return &source.BookSource{
		ID:        "fixture",
		Name:      "Fixture Shelf",
		BaseURL:   base,
		Weight:    10,
		SearchURL: base + "/search?q={{keyword}}",
		Search: source.SearchRules{
			Item:    ".book-item",
			Name:    ".title",
			Author:  ".author",
			BookURL: ".title::attr(href)",
		},
		BookInfo: source.InfoRules{
			Name:   ".book-name",
			Author: ".book-author",
			Intro:  ".intro",
			TocURL: ".toc-link::attr(href)",
		},
		Toc: source.TocRules{
			Item:  ".chapter",
			Title: "a",
			URL:   "a::attr(href)",
		},
		Content: source.ContentRules{Text: "#content p"},
	}
}

func TestSearchExtractsItems(t *testing.T) {
	srv := fixtureServer(t)
	eng := trustedEngine(t)
	src := fixtureSource(srv.URL)

	res := eng.Search(context.Background(), src, "book")
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Error)

	hits, err := SearchHits(res)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	for _, hit := range hits {
		assert.NotEmpty(t, hit.Name)
		assert.True(t, strings.HasPrefix(hit.BookURL, "http"),
			"bookUrl %q is not absolute", hit.BookURL)
	}
	assert.Equal(t, "First Book", hits[0].Name)
	assert.Equal(t, "Anna", hits[0].Author)
}

func TestBookInfoAndToc(t *testing.T) {
	srv := fixtureServer(t)
	eng := trustedEngine(t)
	src := fixtureSource(srv.URL)

	infoRes := eng.BookInfo(context.Background(), src, srv.URL+"/book/1")
	require.Equal(t, StatusSuccess, infoRes.Status, "error: %s", infoRes.Error)
	detail, err := Detail(infoRes)
	require.NoError(t, err)
	assert.Equal(t, "First Book", detail.Name)
	assert.True(t, strings.HasPrefix(detail.TocURL, "http"))

	tocRes := eng.TableOfContents(context.Background(), src, detail.TocURL, srv.URL+"/book/1")
	require.Equal(t, StatusSuccess, tocRes.Status, "error: %s", tocRes.Error)
	chapters, err := Chapters(tocRes)
	require.NoError(t, err)
	require.Len(t, chapters, 2)
	assert.Equal(t, "Chapter One", chapters[0].Title)
	assert.Equal(t, 0, chapters[0].Index)
	assert.Equal(t, 1, chapters[1].Index)
}

func TestContentJoinsParagraphs(t *testing.T) {
	srv := fixtureServer(t)
	eng := trustedEngine(t)
	src := fixtureSource(srv.URL)

	res := eng.Content(context.Background(), src, srv.URL+"/book/1/ch/1", srv.URL+"/book/1")
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Error)

	text, err := Text(res)
	require.NoError(t, err)
	assert.Equal(t, "It was a dark and stormy night.\n\nThe shelf creaked.", text)
}

func TestContentFallsBackToPageText(t *testing.T) {
	srv := fixtureServer(t)
	eng := trustedEngine(t)
	src := fixtureSource(srv.URL)
	src.Content.Text = "" // no selector configured

	res := eng.Content(context.Background(), src, srv.URL+"/book/1/ch/1", srv.URL+"/book/1")
	require.Equal(t, StatusSuccess, res.Status, "error: %s", res.Error)

	text, err := Text(res)
	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.Contains(t, text, "stormy night")
}

func TestRuleMissingSkipsSandbox(t *testing.T) {
	eng := trustedEngine(t)
	src := fixtureSource("http://unused.example.com")
	src.Search.Item = ""

	res := eng.Search(context.Background(), src, "book")
	assert.Equal(t, StatusRuleMissing, res.Status)
	assert.Contains(t, res.Error, "item")
}

func TestStandardPolicyBlocksLoopbackFetch(t *testing.T) {
	srv := fixtureServer(t)
	eng := New(testConfig(), testManager(t, security.LevelStandard), logging.NewNop())
	src := fixtureSource(srv.URL)

	res := eng.Search(context.Background(), src, "book")
	require.Equal(t, StatusSecurityViolation, res.Status)
	assert.Equal(t, "net.internal", res.Rule)
}

func TestTimeoutOnInfiniteLoop(t *testing.T) {
	eng := trustedEngine(t)
	src := fixtureSource("http://unused.example.com")
	src.Header = "while(true){}"

	start := time.Now()
	res := eng.Execute(context.Background(), src, OpSearch, Args{Keyword: "x", TimeoutMs: 300})
	elapsed := time.Since(start)

	assert.Equal(t, StatusTimeout, res.Status)
	assert.Less(t, elapsed, 3*time.Second, "caller must not hang on a runaway script")
}

func TestInstructionCeilingAborts(t *testing.T) {
	cfg := testConfig()
	cfg.InstructionCeiling = 10
	m := security.NewManager(security.Tunables{
		SandboxRoot:        t.TempDir(),
		InstructionCeiling: 10,
	}, "", logging.NewNop())
	require.NoError(t, m.SetLevel(security.LevelTrusted, "test-operator-confirmed"))
	eng := New(cfg, m, logging.NewNop())

	src := fixtureSource("http://unused.example.com")
	src.Header = `for (;;) { util.normalizeSpace("a  b"); }`

	res := eng.Execute(context.Background(), src, OpSearch, Args{Keyword: "x", TimeoutMs: 5000})
	assert.Equal(t, StatusTimeout, res.Status)
	assert.Contains(t, res.Error, "ceiling")
}

func TestEngineBusyWhenSaturated(t *testing.T) {
	cfg := testConfig()
	cfg.PoolSize = 1
	cfg.AcquireWaitMs = 10
	eng := New(cfg, testManager(t, security.LevelTrusted), logging.NewNop())

	slow := fixtureSource("http://unused.example.com")
	slow.Header = "while(true){}"

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Execute(context.Background(), slow, OpSearch, Args{Keyword: "x", TimeoutMs: 1500})
	}()

	time.Sleep(100 * time.Millisecond)
	res := eng.Search(context.Background(), fixtureSource("http://unused.example.com"), "y")
	assert.Equal(t, StatusEngineBusy, res.Status)
	wg.Wait()
}

func TestScriptErrorSurfaced(t *testing.T) {
	eng := trustedEngine(t)
	src := fixtureSource("http://unused.example.com")
	src.Header = "throw new Error('source is broken');"

	res := eng.Execute(context.Background(), src, OpSearch, Args{Keyword: "x", TimeoutMs: 2000})
	assert.Equal(t, StatusScriptError, res.Status)
	assert.Contains(t, res.Error, "source is broken")
}

func TestCookieSharedAcrossCalls(t *testing.T) {
	var mu sync.Mutex
	var secondSawCookie bool
	calls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/book/1/ch/1", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		if calls == 1 {
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "shared"})
		} else if c, err := r.Cookie("session"); err == nil && c.Value == "shared" {
			secondSawCookie = true
		}
		mu.Unlock()
		fmt.Fprint(w, chapterFixture)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	eng := trustedEngine(t)
	src := fixtureSource(srv.URL)

	res1 := eng.Content(context.Background(), src, srv.URL+"/book/1/ch/1", srv.URL+"/book/1")
	require.Equal(t, StatusSuccess, res1.Status, "error: %s", res1.Error)
	res2 := eng.Content(context.Background(), src, srv.URL+"/book/1/ch/1", srv.URL+"/book/1")
	require.Equal(t, StatusSuccess, res2.Status, "error: %s", res2.Error)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, secondSawCookie, "cookie recorded by call 1 must ride on call 2")
}

func TestConcurrentExecutionsAreIsolated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond) // force overlap
		fmt.Fprint(w, chapterFixture)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.PoolSize = 8
	eng := New(cfg, testManager(t, security.LevelTrusted), logging.NewNop())
	src := fixtureSource(srv.URL)
	// The script's view of its own chapter must match the call's argument.
	src.Content.Text = "@js:return chapter.url;"

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			url := fmt.Sprintf("%s/book/1/ch/%d", srv.URL, n)
			res := eng.Content(context.Background(), src, url, srv.URL+"/book/1")
			if res.OK() {
				if text, err := Text(res); err == nil {
					results[n] = text
				}
			}
		}(i)
	}
	wg.Wait()

	for n, got := range results {
		want := fmt.Sprintf("%s/book/1/ch/%d", srv.URL, n)
		assert.Equal(t, want, got, "execution %d observed another call's context", n)
	}
}

func TestSelfTestShortCircuitsOnUnreachableSearch(t *testing.T) {
	eng := trustedEngine(t)
	src := fixtureSource("http://127.0.0.1:1") // nothing listens on port 1

	report := eng.SelfTest(context.Background(), src)

	require.Contains(t, report, "search")
	assert.False(t, report["search"].Success)
	assert.NotEmpty(t, report["search"].Error)
	assert.NotContains(t, report, "bookInfo")
	assert.NotContains(t, report, "toc")
	assert.NotContains(t, report, "content")
}

func TestSelfTestFullChain(t *testing.T) {
	srv := fixtureServer(t)
	eng := trustedEngine(t)
	src := fixtureSource(srv.URL)

	report := eng.SelfTest(context.Background(), src)

	for _, stage := range []string{"search", "bookInfo", "toc", "content"} {
		require.Contains(t, report, stage)
		assert.True(t, report[stage].Success, "stage %s failed: %s", stage, report[stage].Error)
	}
}

func TestSearchAllOrdersByWeightAndToleratesFailures(t *testing.T) {
	srv := fixtureServer(t)
	eng := trustedEngine(t)

	light := fixtureSource(srv.URL)
	light.ID = "light"
	light.Weight = 1

	heavy := fixtureSource(srv.URL)
	heavy.ID = "heavy"
	heavy.Weight = 100

	broken := fixtureSource("http://127.0.0.1:1")
	broken.ID = "broken"
	broken.Weight = 50

	out := eng.SearchAll(context.Background(),
		[]*source.BookSource{light, broken, heavy}, "book", BatchOptions{Parallelism: 3})

	require.Len(t, out, 2, "failed source must not poison the batch")
	assert.Equal(t, "heavy", out[0].SourceID)
	assert.Equal(t, "light", out[1].SourceID)
	assert.Len(t, out[0].Hits, 3)
}

func TestSearchAllEmptyIsNotAnError(t *testing.T) {
	eng := trustedEngine(t)
	broken := fixtureSource("http://127.0.0.1:1")

	out := eng.SearchAll(context.Background(), []*source.BookSource{broken}, "book", BatchOptions{})
	assert.Empty(t, out)
}
