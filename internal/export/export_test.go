package export

import (
	"html/template"
	"strings"
	"testing"
	"time"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		title    string
		expected string
	}{
		{"Launch Plan", "Launch-Plan"},
		{"Q3 / Roadmap: draft!", "Q3-Roadmap-draft"},
		{"a  -  b", "a-b"},
		{"trailing dash - ", "trailing-dash"},
		{"", "document"},
		{"///", "document"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		if got := sanitizeFilename(tt.title); got != tt.expected {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.title, got, tt.expected)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	encoded := percentEncodeForDataURL("<p>hello world</p>")
	if strings.Contains(encoded, " ") {
		t.Error("encoded string should not contain raw spaces")
	}
	if strings.Contains(encoded, "+") {
		t.Error("spaces must encode as %20, not +")
	}
	if !strings.Contains(encoded, "%20") {
		t.Error("expected %20 for space")
	}
	if !strings.Contains(encoded, "hello") {
		t.Error("unreserved characters should pass through")
	}
}

func TestRenderDocumentHTML(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:       "Launch Plan",
		ContentHTML: template.HTML("<p>the plan</p>"),
		Author:      "Alice",
		UpdatedAt:   time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC),
		Version:     4,
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML failed: %v", err)
	}

	for _, want := range []string{"Launch Plan", "<p>the plan</p>", "Alice", "Version 4", "Mar 14, 2025"} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderEscapesTitle(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{
		Title:       "<script>alert(1)</script>",
		ContentHTML: template.HTML("<p>ok</p>"),
		UpdatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("RenderDocumentHTML failed: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("title should be escaped")
	}
}
