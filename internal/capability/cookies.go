package capability

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Jar is the process-wide cookie store, keyed by registrable domain.
// Updates replace one key's slice atomically under a per-jar mutex held
// only for that key's swap, so concurrent executions sharing a domain see
// each other's cookies without broader locking.
type Jar struct {
	domains sync.Map // domain -> *domainCookies
}

type domainCookies struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie // by name
}

// NewJar creates an empty cookie jar.
func NewJar() *Jar {
	return &Jar{}
}

func (j *Jar) bucket(domain string) *domainCookies {
	domain = canonicalDomain(domain)
	if b, ok := j.domains.Load(domain); ok {
		return b.(*domainCookies)
	}
	b, _ := j.domains.LoadOrStore(domain, &domainCookies{cookies: map[string]*http.Cookie{}})
	return b.(*domainCookies)
}

// RecordResponse stores every Set-Cookie of a response under the request
// host's domain.
func (j *Jar) RecordResponse(host string, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	b := j.bucket(host)
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for _, c := range cookies {
		if c.Name == "" {
			continue
		}
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
}

// CookiesFor returns the cookies to attach to a request for host,
// including those stored for a parent domain (a cookie recorded for
// example.com is sent to www.example.com).
func (j *Jar) CookiesFor(host string) []*http.Cookie {
	host = canonicalDomain(host)
	var out []*http.Cookie
	j.domains.Range(func(key, value any) bool {
		domain := key.(string)
		if host == domain || strings.HasSuffix(host, "."+domain) {
			b := value.(*domainCookies)
			b.mu.Lock()
			for _, c := range b.cookies {
				out = append(out, c)
			}
			b.mu.Unlock()
		}
		return true
	})
	return out
}

// Clear drops all stored cookies.
func (j *Jar) Clear() {
	j.domains.Range(func(key, _ any) bool {
		j.domains.Delete(key)
		return true
	})
}

func canonicalDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return strings.TrimPrefix(host, "www.")
}
