package source

import (
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
)

// BookSource describes how to scrape one website: identity, a header
// script run before every operation, and per-operation rule sets.
type BookSource struct {
	ID          string `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	BaseURL     string `yaml:"baseUrl" json:"baseUrl"`
	Weight      int    `yaml:"weight" json:"weight"`
	TrustRating int    `yaml:"trustRating" json:"trustRating"`
	Header      string `yaml:"header,omitempty" json:"header,omitempty"`

	SearchURL string `yaml:"searchUrl" json:"searchUrl"`

	Search   SearchRules  `yaml:"search" json:"search"`
	BookInfo InfoRules    `yaml:"bookInfo" json:"bookInfo"`
	Toc      TocRules     `yaml:"toc" json:"toc"`
	Content  ContentRules `yaml:"content" json:"content"`
}

// SearchRules extract the list of hits from a search results page.
type SearchRules struct {
	Item        string `yaml:"item" json:"item"`
	Name        string `yaml:"name" json:"name"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`
	CoverURL    string `yaml:"coverUrl,omitempty" json:"coverUrl,omitempty"`
	Intro       string `yaml:"intro,omitempty" json:"intro,omitempty"`
	BookURL     string `yaml:"bookUrl" json:"bookUrl"`
	LastChapter string `yaml:"lastChapter,omitempty" json:"lastChapter,omitempty"`
}

// InfoRules extract a single book's metadata from its landing page.
type InfoRules struct {
	Name        string `yaml:"name,omitempty" json:"name,omitempty"`
	Author      string `yaml:"author,omitempty" json:"author,omitempty"`
	CoverURL    string `yaml:"coverUrl,omitempty" json:"coverUrl,omitempty"`
	Intro       string `yaml:"intro,omitempty" json:"intro,omitempty"`
	TocURL      string `yaml:"tocUrl,omitempty" json:"tocUrl,omitempty"`
	LastChapter string `yaml:"lastChapter,omitempty" json:"lastChapter,omitempty"`
}

// TocRules extract the ordered chapter list.
type TocRules struct {
	Item  string `yaml:"item" json:"item"`
	Title string `yaml:"title" json:"title"`
	URL   string `yaml:"url" json:"url"`
}

// ContentRules extract chapter text. An empty Text rule falls back to the
// whole page's text.
type ContentRules struct {
	Text string `yaml:"text,omitempty" json:"text,omitempty"`
}

// Validate checks descriptor-level fields shared by all operations.
func (s *BookSource) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("book source is missing an id")
	}
	if strings.TrimSpace(s.BaseURL) == "" {
		return fmt.Errorf("book source %s is missing a base URL", s.ID)
	}
	return nil
}

// LoadYAML reads a BookSource from a YAML descriptor file.
func LoadYAML(path string) (*BookSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source descriptor: %w", err)
	}
	var src BookSource
	if err := yaml.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("failed to parse source descriptor: %w", err)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return &src, nil
}

// ParseJSON reads a BookSource from its JSON wire form.
func ParseJSON(data []byte) (*BookSource, error) {
	var src BookSource
	if err := sonic.Unmarshal(data, &src); err != nil {
		return nil, fmt.Errorf("failed to parse source JSON: %w", err)
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}
	return &src, nil
}

// MarshalJSON encodes the source to its JSON wire form.
func (s *BookSource) JSON() ([]byte, error) {
	return sonic.Marshal(s)
}
