package rule

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// MaxHTMLSize limits parsed input to keep a hostile page from exhausting
// memory before the policy's response cap is even consulted.
const MaxHTMLSize = 16 * 1024 * 1024

// htmlSanitizer cleans ::html extractions so script-visible markup carries
// no executable content back into a reader view. bluemonday policies are
// safe for concurrent use.
var htmlSanitizer = bluemonday.UGCPolicy()

// DetectCharset guesses the charset of raw page bytes.
func DetectCharset(data []byte) string {
	detector := chardet.NewTextDetector()
	result, err := detector.DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// DecodeToUTF8 converts fetched page bytes to a UTF-8 string using the
// detected charset, falling back to the raw bytes on conversion failure.
func DecodeToUTF8(data []byte) string {
	detected := DetectCharset(data)
	if detected == "utf-8" || detected == "ascii" {
		return string(data)
	}
	reader, err := charset.NewReader(bytes.NewReader(data), detected)
	if err != nil {
		return string(data)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(reader); err != nil {
		return string(data)
	}
	return buf.String()
}

func loadDocument(htmlStr string) (*goquery.Document, error) {
	if len(htmlStr) == 0 {
		return nil, fmt.Errorf("html content required")
	}
	if len(htmlStr) > MaxHTMLSize {
		return nil, fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
}

func loadNode(htmlStr string) (*html.Node, error) {
	if len(htmlStr) == 0 {
		return nil, fmt.Errorf("html content required")
	}
	if len(htmlStr) > MaxHTMLSize {
		return nil, fmt.Errorf("html exceeds maximum size of %d bytes", MaxHTMLSize)
	}
	return htmlquery.Parse(strings.NewReader(htmlStr))
}

// Fragments returns the outer HTML of every node the rule matches,
// one fragment per match. Used for item rules whose fields are then
// extracted per fragment.
func Fragments(htmlStr, raw string) ([]string, error) {
	r, err := Parse(raw)
	if err != nil {
		return nil, err
	}

	switch r.Kind {
	case KindCSS:
		doc, err := loadDocument(htmlStr)
		if err != nil {
			return nil, err
		}
		var out []string
		doc.Find(r.Query).Each(func(_ int, sel *goquery.Selection) {
			if frag, err := goquery.OuterHtml(sel); err == nil {
				out = append(out, frag)
			}
		})
		return out, nil
	case KindXPath:
		node, err := loadNode(htmlStr)
		if err != nil {
			return nil, err
		}
		matches, err := htmlquery.QueryAll(node, r.Query)
		if err != nil {
			return nil, fmt.Errorf("bad xpath %q: %w", r.Query, err)
		}
		out := make([]string, 0, len(matches))
		for _, m := range matches {
			out = append(out, htmlquery.OutputHTML(m, true))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("script rules cannot select fragments")
	}
}

// First extracts the rule's value from the first match: text, an
// attribute, or sanitized inner HTML depending on the rule form.
func First(htmlStr, raw string) (string, error) {
	r, err := Parse(raw)
	if err != nil {
		return "", err
	}

	switch r.Kind {
	case KindCSS:
		doc, err := loadDocument(htmlStr)
		if err != nil {
			return "", err
		}
		sel := doc.Find(r.Query).First()
		if sel.Length() == 0 {
			return "", nil
		}
		return extractCSS(sel, r), nil
	case KindXPath:
		node, err := loadNode(htmlStr)
		if err != nil {
			return "", err
		}
		match, err := htmlquery.Query(node, r.Query)
		if err != nil {
			return "", fmt.Errorf("bad xpath %q: %w", r.Query, err)
		}
		if match == nil {
			return "", nil
		}
		return normalizeSpace(htmlquery.InnerText(match)), nil
	default:
		return "", fmt.Errorf("script rules are evaluated by the engine")
	}
}

// TextAll extracts the text of every match and joins them with sep.
// Chapter content uses this with a paragraph break separator.
func TextAll(htmlStr, raw, sep string) (string, error) {
	r, err := Parse(raw)
	if err != nil {
		return "", err
	}

	var parts []string
	switch r.Kind {
	case KindCSS:
		doc, err := loadDocument(htmlStr)
		if err != nil {
			return "", err
		}
		doc.Find(r.Query).Each(func(_ int, sel *goquery.Selection) {
			if text := normalizeSpace(sel.Text()); text != "" {
				parts = append(parts, text)
			}
		})
	case KindXPath:
		node, err := loadNode(htmlStr)
		if err != nil {
			return "", err
		}
		matches, err := htmlquery.QueryAll(node, r.Query)
		if err != nil {
			return "", fmt.Errorf("bad xpath %q: %w", r.Query, err)
		}
		for _, m := range matches {
			if text := normalizeSpace(htmlquery.InnerText(m)); text != "" {
				parts = append(parts, text)
			}
		}
	default:
		return "", fmt.Errorf("script rules are evaluated by the engine")
	}
	return strings.Join(parts, sep), nil
}

// PageText returns the whole page's visible text, the fallback when a
// content operation has no selector configured.
func PageText(htmlStr string) (string, error) {
	doc, err := loadDocument(htmlStr)
	if err != nil {
		return "", err
	}
	doc.Find("script, style, noscript").Remove()
	return normalizeSpace(doc.Text()), nil
}

func extractCSS(sel *goquery.Selection, r *Rule) string {
	switch r.Extract {
	case ExtractAttr:
		return strings.TrimSpace(sel.AttrOr(r.Attr, ""))
	case ExtractHTML:
		inner, err := sel.Html()
		if err != nil {
			return ""
		}
		return htmlSanitizer.Sanitize(inner)
	default:
		return normalizeSpace(sel.Text())
	}
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
