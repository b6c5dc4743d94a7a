package engine

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Status tags the outcome of one script execution. Every failure mode the
// caller might react to differently gets its own tag; nothing is collapsed
// into a generic error.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusRuleMissing       Status = "rule_missing"
	StatusSecurityViolation Status = "security_violation"
	StatusScriptError       Status = "script_error"
	StatusTimeout           Status = "timeout"
	StatusEngineBusy        Status = "engine_busy"
)

// ExecuteResult is the typed outcome of one operation.
type ExecuteResult struct {
	Status    Status      `json:"status"`
	Value     interface{} `json:"value,omitempty"`
	Rule      string      `json:"rule,omitempty"` // refusing policy rule on a violation
	Error     string      `json:"error,omitempty"`
	ElapsedMs int64       `json:"executionTimeMs"`
}

// OK reports whether the execution succeeded.
func (r *ExecuteResult) OK() bool {
	return r.Status == StatusSuccess
}

// SearchHit is one result row of a search operation.
type SearchHit struct {
	Name        string `json:"name"`
	Author      string `json:"author,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
	Intro       string `json:"intro,omitempty"`
	BookURL     string `json:"bookUrl"`
	LastChapter string `json:"lastChapter,omitempty"`
}

// BookDetail is the result of a book-info operation.
type BookDetail struct {
	Name        string `json:"name,omitempty"`
	Author      string `json:"author,omitempty"`
	CoverURL    string `json:"coverUrl,omitempty"`
	Intro       string `json:"intro,omitempty"`
	TocURL      string `json:"tocUrl"`
	LastChapter string `json:"lastChapter,omitempty"`
}

// ChapterEntry is one row of a table-of-contents operation. Index is the
// chapter's position in the returned list.
type ChapterEntry struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Index int    `json:"index"`
}

// StageReport records one stage of a self-test run.
type StageReport struct {
	Success bool   `json:"success"`
	TimeMs  int64  `json:"timeMs"`
	Error   string `json:"error,omitempty"`
}

// decodeValue round-trips a script's exported value into a typed shape.
func decodeValue(value interface{}, out interface{}) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("script produced unencodable value: %w", err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("script value has unexpected shape: %w", err)
	}
	return nil
}

// SearchHits decodes a successful search result's value.
func SearchHits(r *ExecuteResult) ([]SearchHit, error) {
	if !r.OK() {
		return nil, fmt.Errorf("cannot decode %s result", r.Status)
	}
	var hits []SearchHit
	if r.Value == nil {
		return hits, nil
	}
	if err := decodeValue(r.Value, &hits); err != nil {
		return nil, err
	}
	return hits, nil
}

// Detail decodes a successful book-info result's value.
func Detail(r *ExecuteResult) (*BookDetail, error) {
	if !r.OK() {
		return nil, fmt.Errorf("cannot decode %s result", r.Status)
	}
	var d BookDetail
	if err := decodeValue(r.Value, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// Chapters decodes a successful table-of-contents result's value.
func Chapters(r *ExecuteResult) ([]ChapterEntry, error) {
	if !r.OK() {
		return nil, fmt.Errorf("cannot decode %s result", r.Status)
	}
	var entries []ChapterEntry
	if r.Value == nil {
		return entries, nil
	}
	if err := decodeValue(r.Value, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Text returns a successful content result's value as a string.
func Text(r *ExecuteResult) (string, error) {
	if !r.OK() {
		return "", fmt.Errorf("cannot decode %s result", r.Status)
	}
	s, ok := r.Value.(string)
	if !ok {
		return "", fmt.Errorf("content result is %T, not text", r.Value)
	}
	return s, nil
}
