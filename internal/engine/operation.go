package engine

import (
	"fmt"
	"strings"

	"github.com/papyr-io/papyr/internal/source"
)

// Operation names one of the four things a book source can do.
type Operation string

const (
	OpSearch   Operation = "search"
	OpBookInfo Operation = "bookInfo"
	OpToc      Operation = "toc"
	OpContent  Operation = "content"
)

// Args carries operation-specific arguments. Exactly the fields the
// operation needs are consulted; the rest are ignored.
type Args struct {
	Keyword    string // search
	BookURL    string // bookInfo, and base for toc/content
	TocURL     string // toc
	ChapterURL string // content
	// TimeoutMs optionally lowers the budget below the policy timeout.
	// Zero means the operation-class default.
	TimeoutMs int64
}

// validate checks that the rule fields an operation requires are present.
// A failure here is a configuration error: the sandbox is never entered.
func validate(src *source.BookSource, op Operation, args Args) error {
	blank := func(s string) bool { return strings.TrimSpace(s) == "" }

	switch op {
	case OpSearch:
		if blank(args.Keyword) {
			return fmt.Errorf("search requires a keyword")
		}
		if blank(src.SearchURL) {
			return fmt.Errorf("source %s has no search URL", src.ID)
		}
		if blank(src.Search.Item) {
			return fmt.Errorf("source %s has no search item rule", src.ID)
		}
		if blank(src.Search.Name) {
			return fmt.Errorf("source %s has no search name rule", src.ID)
		}
		if blank(src.Search.BookURL) {
			return fmt.Errorf("source %s has no search bookUrl rule", src.ID)
		}
	case OpBookInfo:
		if blank(args.BookURL) {
			return fmt.Errorf("bookInfo requires a book URL")
		}
	case OpToc:
		if blank(args.TocURL) {
			return fmt.Errorf("toc requires a toc URL")
		}
		if blank(src.Toc.Item) {
			return fmt.Errorf("source %s has no toc item rule", src.ID)
		}
		if blank(src.Toc.Title) {
			return fmt.Errorf("source %s has no toc title rule", src.ID)
		}
		if blank(src.Toc.URL) {
			return fmt.Errorf("source %s has no toc url rule", src.ID)
		}
	case OpContent:
		if blank(args.ChapterURL) {
			return fmt.Errorf("content requires a chapter URL")
		}
		// No content rule is fine: the operation falls back to page text.
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	return nil
}
