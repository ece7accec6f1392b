package extract

import (
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestText_PlainFile(t *testing.T) {
	got, err := Text("policy.txt", strings.NewReader("Customer due diligence applies.\r\nSee section 4.\n"))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	want := "Customer due diligence applies.\nSee section 4."
	if got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestText_Markdown(t *testing.T) {
	got, err := Text("README.md", strings.NewReader("# Heading\n\nBody text."))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if !strings.Contains(got, "Body text.") {
		t.Errorf("Text() = %q, want body text preserved", got)
	}
}

func TestText_HTML(t *testing.T) {
	html := `<html><head><title>ignored</title><style>p { color: red }</style></head>
<body><h1>AML Policy</h1><p>Thresholds apply to cash transactions.</p>
<script>alert("nope")</script></body></html>`

	got, err := Text("policy.html", strings.NewReader(html))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}

	if !strings.Contains(got, "AML Policy") {
		t.Errorf("Text() = %q, want heading text", got)
	}
	if !strings.Contains(got, "Thresholds apply to cash transactions.") {
		t.Errorf("Text() = %q, want paragraph text", got)
	}
	if strings.Contains(got, "alert") || strings.Contains(got, "color: red") {
		t.Errorf("Text() = %q, script/style content leaked", got)
	}
	if !strings.Contains(got, "AML Policy\n\nThresholds") {
		t.Errorf("Text() = %q, want paragraph break between blocks", got)
	}
}

func TestText_HTMLWithoutBlockMarkup(t *testing.T) {
	got, err := Text("raw.htm", strings.NewReader("<html><body>just inline text</body></html>"))
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if got != "just inline text" {
		t.Errorf("Text() = %q, want body text", got)
	}
}

func TestText_UnsupportedFormat(t *testing.T) {
	_, err := Text("slides.pdf", strings.NewReader("%PDF-1.4"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Text() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestText_NoExtension(t *testing.T) {
	_, err := Text("Makefile", strings.NewReader("all:"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("Text() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestText_CaseInsensitiveExtension(t *testing.T) {
	if _, err := Text("NOTES.TXT", strings.NewReader("text")); err != nil {
		t.Errorf("Text() error = %v, want nil for uppercase extension", err)
	}
}

func TestSupported(t *testing.T) {
	tests := []struct {
		filename string
		want     bool
	}{
		{"a.txt", true},
		{"a.md", true},
		{"a.csv", true},
		{"a.html", true},
		{"a.htm", true},
		{"a.log", true},
		{"a.rst", true},
		{"a.pdf", false},
		{"a.docx", false},
		{"a", false},
	}

	for _, tt := range tests {
		if got := Supported(tt.filename); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.filename, got, tt.want)
		}
	}
}

func TestSupportedExtensions_Sorted(t *testing.T) {
	exts := SupportedExtensions()
	if len(exts) == 0 {
		t.Fatal("SupportedExtensions() returned no entries")
	}
	if !slices.IsSorted(exts) {
		t.Errorf("SupportedExtensions() = %v, want sorted", exts)
	}
	if !slices.Contains(exts, ".txt") {
		t.Errorf("SupportedExtensions() = %v, want .txt present", exts)
	}
}
