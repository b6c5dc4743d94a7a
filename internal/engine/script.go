package engine

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/papyr-io/papyr/internal/rule"
	"github.com/papyr-io/papyr/internal/source"
)

// keywordPlaceholder is substituted into a source's search URL template.
const keywordPlaceholder = "{{keyword}}"

// synthesize builds the operation-specific script: the source's header
// snippet first, then a fetch of the target page through the capability
// surface, then the operation's selectors applied per field, producing the
// operation's result shape as the script's final value.
func synthesize(src *source.BookSource, op Operation, args Args) (string, error) {
	var b strings.Builder
	if h := strings.TrimSpace(src.Header); h != "" {
		b.WriteString(h)
		b.WriteString("\n")
	}

	switch op {
	case OpSearch:
		target := strings.ReplaceAll(src.SearchURL, keywordPlaceholder, url.QueryEscape(args.Keyword))
		writeFetch(&b, target)
		writeItemLoop(&b, src.Search.Item, []field{
			{"name", src.Search.Name, false},
			{"author", src.Search.Author, false},
			{"coverUrl", src.Search.CoverURL, true},
			{"intro", src.Search.Intro, false},
			{"bookUrl", src.Search.BookURL, true},
			{"lastChapter", src.Search.LastChapter, false},
		})
	case OpBookInfo:
		writeFetch(&b, args.BookURL)
		tocRule := src.BookInfo.TocURL
		tocExpr := fieldExpr(tocRule, "__page", true)
		if strings.TrimSpace(tocRule) == "" {
			// Without a rule the landing page doubles as the chapter list.
			tocExpr = jsString(args.BookURL)
		}
		fmt.Fprintf(&b, "({\n")
		writeObjectField(&b, "name", src.BookInfo.Name, "__page", false)
		writeObjectField(&b, "author", src.BookInfo.Author, "__page", false)
		writeObjectField(&b, "coverUrl", src.BookInfo.CoverURL, "__page", true)
		writeObjectField(&b, "intro", src.BookInfo.Intro, "__page", false)
		fmt.Fprintf(&b, "  tocUrl: %s,\n", tocExpr)
		writeObjectField(&b, "lastChapter", src.BookInfo.LastChapter, "__page", false)
		fmt.Fprintf(&b, "});\n")
	case OpToc:
		writeFetch(&b, args.TocURL)
		writeItemLoop(&b, src.Toc.Item, []field{
			{"title", src.Toc.Title, false},
			{"url", src.Toc.URL, true},
		})
	case OpContent:
		writeFetch(&b, args.ChapterURL)
		if strings.TrimSpace(src.Content.Text) == "" {
			b.WriteString("query.pageText(__page);\n")
		} else if rule.IsJS(src.Content.Text) {
			fmt.Fprintf(&b, "(function(result){\n%s\n})(__page);\n", rule.JSSnippet(src.Content.Text))
		} else {
			fmt.Fprintf(&b, "query.textAll(__page, %s, \"\\n\\n\");\n", jsString(src.Content.Text))
		}
	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}

	return b.String(), nil
}

// field describes one extracted object property.
type field struct {
	name     string
	rule     string
	absolute bool // resolve the value against the base URL
}

func writeFetch(b *strings.Builder, target string) {
	fmt.Fprintf(b, "var __resp = http.get(%s, {});\n", jsString(target))
	b.WriteString("var __page = __resp.body;\n")
}

// writeItemLoop emits the select-items-then-extract-fields loop shared by
// search and toc. The loop index doubles as the toc entry index.
func writeItemLoop(b *strings.Builder, itemRule string, fields []field) {
	fmt.Fprintf(b, "var __items = query.all(__page, %s);\n", jsString(itemRule))
	b.WriteString("var __out = [];\n")
	b.WriteString("for (var __i = 0; __i < __items.length; __i++) {\n")
	b.WriteString("  var __item = __items[__i];\n")
	b.WriteString("  __out.push({\n")
	for _, f := range fields {
		writeObjectField(b, f.name, f.rule, "__item", f.absolute)
	}
	b.WriteString("    index: __i,\n")
	b.WriteString("  });\n")
	b.WriteString("}\n")
	b.WriteString("__out;\n")
}

func writeObjectField(b *strings.Builder, name, ruleStr, inputVar string, absolute bool) {
	fmt.Fprintf(b, "  %s: %s,\n", name, fieldExpr(ruleStr, inputVar, absolute))
}

// fieldExpr renders the JS expression extracting one field. Declarative
// rules go through the query host object; @js: rules run inline with
// `result` bound to the surrounding fragment.
func fieldExpr(ruleStr, inputVar string, absolute bool) string {
	ruleStr = strings.TrimSpace(ruleStr)
	var expr string
	switch {
	case ruleStr == "":
		return `""`
	case rule.IsJS(ruleStr):
		expr = fmt.Sprintf("(function(result){\n%s\n})(%s)", rule.JSSnippet(ruleStr), inputVar)
	default:
		expr = fmt.Sprintf("query.field(%s, %s)", inputVar, jsString(ruleStr))
	}
	if absolute {
		expr = fmt.Sprintf("util.absoluteUrl(%s)", expr)
	}
	return expr
}

// jsString renders s as a JS string literal. JSON string encoding is valid
// JS source.
func jsString(s string) string {
	out, err := sonic.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(out)
}
