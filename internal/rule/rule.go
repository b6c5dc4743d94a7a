// Package rule applies a book source's declarative selectors to fetched
// HTML. A rule is a small string in one of three forms:
//
//	".title"                 CSS selector, extracts text
//	".title::attr(href)"     CSS selector, extracts an attribute
//	".title::html"           CSS selector, extracts sanitized inner HTML
//	"//h1/a/@href"           XPath (any rule starting with // or @xpath:)
//	"@js:..."                script snippet, evaluated by the engine
package rule

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind discriminates how a rule string is interpreted.
type Kind int

const (
	KindCSS Kind = iota
	KindXPath
	KindJS
)

// Extract discriminates what a CSS rule pulls from its matches.
type Extract int

const (
	ExtractText Extract = iota
	ExtractAttr
	ExtractHTML
)

// Rule is a parsed selector.
type Rule struct {
	Kind    Kind
	Extract Extract
	Query   string // CSS selector or XPath expression
	Attr    string // attribute name when Extract == ExtractAttr
	Script  string // snippet when Kind == KindJS
}

var attrSuffix = regexp.MustCompile(`::attr\(([^)]+)\)$`)

// Parse interprets a rule string. Empty rules are an error; callers decide
// whether an operation tolerates a missing rule before parsing it.
func Parse(raw string) (*Rule, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty rule")
	}

	if snippet, ok := strings.CutPrefix(raw, "@js:"); ok {
		return &Rule{Kind: KindJS, Script: snippet}, nil
	}
	if expr, ok := strings.CutPrefix(raw, "@xpath:"); ok {
		return &Rule{Kind: KindXPath, Query: expr}, nil
	}
	if strings.HasPrefix(raw, "//") {
		return &Rule{Kind: KindXPath, Query: raw}, nil
	}

	r := &Rule{Kind: KindCSS, Extract: ExtractText, Query: raw}
	if m := attrSuffix.FindStringSubmatch(raw); m != nil {
		r.Extract = ExtractAttr
		r.Attr = m[1]
		r.Query = strings.TrimSuffix(raw, m[0])
	} else if q, ok := strings.CutSuffix(raw, "::html"); ok {
		r.Extract = ExtractHTML
		r.Query = q
	} else if q, ok := strings.CutSuffix(raw, "::text"); ok {
		r.Extract = ExtractText
		r.Query = q
	}

	if strings.TrimSpace(r.Query) == "" {
		return nil, fmt.Errorf("rule %q has no selector", raw)
	}
	return r, nil
}

// IsJS reports whether the raw rule is a script snippet.
func IsJS(raw string) bool {
	return strings.HasPrefix(strings.TrimSpace(raw), "@js:")
}

// JSSnippet returns the script body of a @js: rule.
func JSSnippet(raw string) string {
	return strings.TrimPrefix(strings.TrimSpace(raw), "@js:")
}
