package email

import (
	"strings"
	"testing"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{
			name:     "empty config",
			config:   Config{},
			expected: false,
		},
		{
			name: "missing host",
			config: Config{
				Port: "587",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing port",
			config: Config{
				Host: "smtp.example.com",
				From: "test@example.com",
			},
			expected: false,
		},
		{
			name: "missing from",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
			},
			expected: false,
		},
		{
			name: "fully configured",
			config: Config{
				Host: "smtp.example.com",
				Port: "587",
				From: "test@example.com",
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestRenderMentionTemplate(t *testing.T) {
	data := MentionData{
		AppName:       "Quill",
		RecipientName: "Bob",
		MentionedBy:   "Alice",
		DocumentTitle: "Launch Plan",
		DocumentURL:   "https://example.com/documents/doc_123",
	}

	html, err := renderTemplate(mentionEmailTemplate, data)
	if err != nil {
		t.Fatalf("renderTemplate failed: %v", err)
	}

	if !strings.Contains(html, "Quill") {
		t.Error("template should contain app name")
	}
	if !strings.Contains(html, "Bob") {
		t.Error("template should contain recipient name")
	}
	if !strings.Contains(html, "Alice") {
		t.Error("template should contain mentioner name")
	}
	if !strings.Contains(html, "Launch Plan") {
		t.Error("template should contain document title")
	}
	if !strings.Contains(html, "https://example.com/documents/doc_123") {
		t.Error("template should contain document URL")
	}
}
