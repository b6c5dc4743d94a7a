package capability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/papyr-io/papyr/internal/logging"
	"github.com/papyr-io/papyr/internal/resilience"
	"github.com/papyr-io/papyr/internal/rule"
	"github.com/papyr-io/papyr/internal/security"
)

// perHostRPS paces requests so a scripted loop cannot hammer one site.
const (
	perHostRPS   = 4
	perHostBurst = 8
)

type policyKey struct{}

// Response is what a script's http.get/http.post call returns.
type Response struct {
	Status   int
	Body     string
	Headers  map[string]string
	FinalURL string
}

// Fetcher performs mediated HTTP on behalf of scripts. It is shared across
// executions; all per-call state (policy, counter, deadline) arrives as
// arguments so concurrent calls never interfere.
type Fetcher struct {
	client   *resty.Client
	breakers *resilience.HostSet
	jar      *Jar
	limiters sync.Map // host -> *rate.Limiter
	logger   *logging.Logger
}

// NewFetcher creates the shared fetcher.
func NewFetcher(jar *Jar, logger *logging.Logger) *Fetcher {
	if logger == nil {
		logger = logging.NewNop()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil

	// The RoundTripper wrapper keeps the retry loop in the transport, so
	// resty still owns redirects and cookies while transient failures are
	// retried underneath it.
	client := resty.New().
		SetHeader("User-Agent", "papyr-source-engine/1.0").
		SetTransport(&retryablehttp.RoundTripper{Client: retryClient}).
		SetRedirectPolicy(resty.RedirectPolicyFunc(checkRedirect))

	return &Fetcher{
		client:   client,
		breakers: resilience.NewHostSet(resilience.DefaultSettings()),
		jar:      jar,
		logger:   logger,
	}
}

// checkRedirect re-validates every redirect hop against the policy that
// initiated the request, so a permitted URL cannot bounce to an internal
// one.
func checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return fmt.Errorf("too many redirects")
	}
	p, ok := req.Context().Value(policyKey{}).(*security.Policy)
	if !ok {
		return nil
	}
	_, err := security.CheckURL(req.Context(), p, req.URL.String())
	return err
}

func (f *Fetcher) limiter(host string) *rate.Limiter {
	if l, ok := f.limiters.Load(host); ok {
		return l.(*rate.Limiter)
	}
	l, _ := f.limiters.LoadOrStore(host, rate.NewLimiter(perHostRPS, perHostBurst))
	return l.(*rate.Limiter)
}

// Fetch performs one mediated request. Every policy check runs before a
// socket opens; the context deadline, derived from the remaining script
// budget, is the authoritative bound on the native call.
func (f *Fetcher) Fetch(ctx context.Context, p *security.Policy, counter *RequestCounter, method, target, body string, headers map[string]string) (*Response, error) {
	method = strings.ToUpper(method)
	if method != http.MethodGet && method != http.MethodPost {
		return nil, security.Violated("net.method", "method %s is not permitted, only GET and POST", method)
	}
	if !counter.Take(p.MaxHTTPRequests) {
		return nil, security.Violated("net.budget", "session request budget of %d exhausted", p.MaxHTTPRequests)
	}

	u, err := security.CheckURL(ctx, p, target)
	if err != nil {
		return nil, err
	}
	host := u.Hostname()

	breaker := f.breakers.For(host)
	if err := breaker.Allow(); err != nil {
		return nil, fmt.Errorf("host %s temporarily suspended: %w", host, err)
	}
	if err := f.limiter(host).Wait(ctx); err != nil {
		return nil, err
	}

	ctx = context.WithValue(ctx, policyKey{}, p)
	req := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)
	for k, v := range headers {
		req.SetHeader(k, v)
	}
	for _, c := range f.jar.CookiesFor(host) {
		req.SetCookie(c)
	}
	if method == http.MethodPost && body != "" {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, u.String())
	if err != nil {
		breaker.Record(false)
		return nil, fmt.Errorf("fetch %s failed: %w", u.Redacted(), err)
	}
	defer resp.RawBody().Close()

	raw, err := readCapped(resp.RawBody(), p.MaxFileSize)
	if err != nil {
		breaker.Record(false)
		return nil, err
	}
	breaker.Record(resp.StatusCode() < 500)

	f.jar.RecordResponse(host, resp.RawResponse.Cookies())

	out := &Response{
		Status:   resp.StatusCode(),
		Body:     rule.DecodeToUTF8(raw),
		Headers:  flattenHeaders(resp.Header()),
		FinalURL: resp.RawResponse.Request.URL.String(),
	}

	f.logger.Debug("fetched",
		zap.String("url", u.Redacted()),
		zap.Int("status", out.Status),
		zap.Int("bytes", len(raw)),
	)
	return out, nil
}

// readCapped reads at most limit bytes and refuses bodies that exceed it,
// instead of silently truncating a page mid-document.
func readCapped(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response failed: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, security.Violated("net.size", "response exceeds limit of %d bytes", limit)
	}
	return data, nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
