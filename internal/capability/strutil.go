package capability

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

// String, date, and regex helpers exposed to scripts so extraction rules
// stay declarative. Pure, always permitted.

var regexCache sync.Map // pattern -> *regexp.Regexp

func cachedRegex(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	regexCache.Store(pattern, re)
	return re, nil
}

// RegexFind returns the first match of pattern; with a capture group, the
// first group's value.
func RegexFind(s, pattern string) (string, error) {
	re, err := cachedRegex(pattern)
	if err != nil {
		return "", err
	}
	m := re.FindStringSubmatch(s)
	switch {
	case m == nil:
		return "", nil
	case len(m) > 1:
		return m[1], nil
	default:
		return m[0], nil
	}
}

// RegexFindAll returns every match of pattern.
func RegexFindAll(s, pattern string) ([]string, error) {
	re, err := cachedRegex(pattern)
	if err != nil {
		return nil, err
	}
	out := re.FindAllString(s, -1)
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// RegexReplaceAll replaces every match of pattern with repl.
func RegexReplaceAll(s, pattern, repl string) (string, error) {
	re, err := cachedRegex(pattern)
	if err != nil {
		return "", err
	}
	return re.ReplaceAllString(s, repl), nil
}

// NormalizeSpace collapses runs of whitespace into single spaces.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// SplitTrim splits on sep and trims each piece, dropping empties.
func SplitTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Unique removes duplicates while preserving order.
func Unique(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

// Timestamp returns the current Unix time in milliseconds, the shape most
// site APIs expect in signed query strings.
func Timestamp() int64 {
	return time.Now().UnixMilli()
}

// FormatDate formats the current time with a Go layout string.
func FormatDate(layout string) string {
	if layout == "" {
		layout = "2006-01-02"
	}
	return time.Now().Format(layout)
}

// ParseDateMillis parses value with a Go layout and returns Unix millis.
func ParseDateMillis(value, layout string) (int64, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return 0, fmt.Errorf("parse date %q failed: %w", value, err)
	}
	return t.UnixMilli(), nil
}
