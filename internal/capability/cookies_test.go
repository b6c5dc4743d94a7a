package capability

import (
	"fmt"
	"net/http"
	"sync"
	"testing"
)

func TestJarRecordAndRetrieve(t *testing.T) {
	jar := NewJar()
	jar.RecordResponse("books.example.com", []*http.Cookie{
		{Name: "session", Value: "abc123"},
	})

	cookies := jar.CookiesFor("books.example.com")
	if len(cookies) != 1 || cookies[0].Value != "abc123" {
		t.Fatalf("CookiesFor() = %v", cookies)
	}
}

func TestJarParentDomainMatch(t *testing.T) {
	jar := NewJar()
	jar.RecordResponse("example.com", []*http.Cookie{
		{Name: "uid", Value: "7"},
	})

	if got := jar.CookiesFor("www.example.com"); len(got) != 1 {
		t.Errorf("www subdomain should see parent cookie, got %v", got)
	}
	if got := jar.CookiesFor("api.example.com"); len(got) != 1 {
		t.Errorf("api subdomain should see parent cookie, got %v", got)
	}
	if got := jar.CookiesFor("otherexample.com"); len(got) != 0 {
		t.Errorf("unrelated domain sees foreign cookie: %v", got)
	}
}

func TestJarReplaceAndExpire(t *testing.T) {
	jar := NewJar()
	jar.RecordResponse("example.com", []*http.Cookie{{Name: "token", Value: "old"}})
	jar.RecordResponse("example.com", []*http.Cookie{{Name: "token", Value: "new"}})

	cookies := jar.CookiesFor("example.com")
	if len(cookies) != 1 || cookies[0].Value != "new" {
		t.Fatalf("cookie not replaced: %v", cookies)
	}

	jar.RecordResponse("example.com", []*http.Cookie{{Name: "token", MaxAge: -1}})
	if got := jar.CookiesFor("example.com"); len(got) != 0 {
		t.Errorf("expired cookie still present: %v", got)
	}
}

func TestJarConcurrentUpdates(t *testing.T) {
	jar := NewJar()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			jar.RecordResponse("example.com", []*http.Cookie{
				{Name: fmt.Sprintf("c%d", n), Value: "v"},
			})
		}(i)
	}
	wg.Wait()

	if got := jar.CookiesFor("example.com"); len(got) != 50 {
		t.Errorf("got %d cookies, want 50", len(got))
	}
}

func TestRequestCounter(t *testing.T) {
	c := NewRequestCounter()
	for i := 0; i < 3; i++ {
		if !c.Take(3) {
			t.Fatalf("request %d refused under budget", i)
		}
	}
	if c.Take(3) {
		t.Error("request over budget admitted")
	}
	c.Reset()
	if !c.Take(3) {
		t.Error("counter did not reset")
	}
}
