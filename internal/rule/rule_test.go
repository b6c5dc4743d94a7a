package rule

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		kind    Kind
		extract Extract
		query   string
		attr    string
		wantErr bool
	}{
		{"css text", ".title", KindCSS, ExtractText, ".title", "", false},
		{"css explicit text", ".title::text", KindCSS, ExtractText, ".title", "", false},
		{"css attr", ".title::attr(href)", KindCSS, ExtractAttr, ".title", "href", false},
		{"css html", ".intro::html", KindCSS, ExtractHTML, ".intro", "", false},
		{"xpath", "//div[@class='item']/a", KindXPath, ExtractText, "//div[@class='item']/a", "", false},
		{"xpath prefixed", "@xpath://h1", KindXPath, ExtractText, "//h1", "", false},
		{"js", "@js:result.trim()", KindJS, ExtractText, "", "", false},
		{"empty", "   ", 0, 0, "", "", true},
		{"bare attr suffix", "::attr(href)", 0, 0, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if r.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", r.Kind, tt.kind)
			}
			if r.Kind == KindJS {
				if r.Script == "" {
					t.Error("js rule lost its snippet")
				}
				return
			}
			if r.Extract != tt.extract {
				t.Errorf("Extract = %v, want %v", r.Extract, tt.extract)
			}
			if r.Query != tt.query {
				t.Errorf("Query = %q, want %q", r.Query, tt.query)
			}
			if r.Attr != tt.attr {
				t.Errorf("Attr = %q, want %q", r.Attr, tt.attr)
			}
		})
	}
}

func TestIsJS(t *testing.T) {
	if !IsJS("@js:1+1") {
		t.Error("IsJS missed a js rule")
	}
	if IsJS(".title") {
		t.Error("IsJS misclassified a css rule")
	}
	if got := JSSnippet("@js:result.trim()"); got != "result.trim()" {
		t.Errorf("JSSnippet = %q", got)
	}
}
