package capability

import (
	"net/url"

	"github.com/google/uuid"
)

// BookRef identifies the book an operation is working on.
type BookRef struct {
	Name   string
	Author string
	URL    string
}

// ChapterRef identifies the chapter a content operation is fetching.
type ChapterRef struct {
	Title string
	URL   string
	Index int
}

// Context is the per-invocation bundle the capability surface consults for
// context-sensitive decisions such as relative-URL resolution. It is
// created fresh for every call, never shared, and discarded at call end.
type Context struct {
	SourceID   string
	SourceName string
	BaseURL    string
	RequestID  string
	Book       *BookRef
	Chapter    *ChapterRef
}

// NewContext creates a context for one execution.
func NewContext(sourceID, sourceName, baseURL string) *Context {
	return &Context{
		SourceID:   sourceID,
		SourceName: sourceName,
		BaseURL:    baseURL,
		RequestID:  uuid.NewString(),
	}
}

// AbsoluteURL resolves href against the context's base URL. Already
// absolute links and unparseable input come back unchanged.
func (c *Context) AbsoluteURL(href string) string {
	if href == "" {
		return href
	}
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
