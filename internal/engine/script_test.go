package engine

import (
	"strings"
	"testing"
)

func TestSynthesizeSearchEscapesKeyword(t *testing.T) {
	src := fixtureSource("http://shelf.example.com")

	script, err := synthesize(src, OpSearch, Args{Keyword: "war & peace"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(script, "war+%26+peace") {
		t.Errorf("keyword not query-escaped in:\n%s", script)
	}
	if strings.Contains(script, keywordPlaceholder) {
		t.Errorf("placeholder left unsubstituted in:\n%s", script)
	}
}

func TestSynthesizeBookInfoDefaultsTocURL(t *testing.T) {
	src := fixtureSource("http://shelf.example.com")
	src.BookInfo.TocURL = ""

	script, err := synthesize(src, OpBookInfo, Args{BookURL: "http://shelf.example.com/book/1"})
	if err != nil {
		t.Fatal(err)
	}
	// Without a toc rule the landing page itself is the chapter list.
	if !strings.Contains(script, `tocUrl: "http://shelf.example.com/book/1"`) {
		t.Errorf("tocUrl did not default to the book URL in:\n%s", script)
	}
}

func TestSynthesizeHeaderRunsFirst(t *testing.T) {
	src := fixtureSource("http://shelf.example.com")
	src.Header = "var sign = crypto.md5('salt');"

	script, err := synthesize(src, OpSearch, Args{Keyword: "x"})
	if err != nil {
		t.Fatal(err)
	}
	header := strings.Index(script, "var sign")
	fetch := strings.Index(script, "http.get")
	if header < 0 || fetch < 0 || header > fetch {
		t.Errorf("header snippet must precede the fetch:\n%s", script)
	}
}

func TestFieldExpr(t *testing.T) {
	tests := []struct {
		name     string
		rule     string
		absolute bool
		want     string
	}{
		{"empty", "", false, `""`},
		{"css", ".title", false, `query.field(__item, ".title")`},
		{"css absolute", ".title::attr(href)", true, `util.absoluteUrl(query.field(__item, ".title::attr(href)"))`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fieldExpr(tt.rule, "__item", tt.absolute); got != tt.want {
				t.Errorf("fieldExpr(%q) = %q, want %q", tt.rule, got, tt.want)
			}
		})
	}
}

func TestFieldExprJSBindsResult(t *testing.T) {
	got := fieldExpr("@js:return result.toUpperCase();", "__item", false)
	if !strings.Contains(got, "(function(result)") || !strings.Contains(got, "(__item)") {
		t.Errorf("js rule must wrap the fragment as result: %s", got)
	}
}
