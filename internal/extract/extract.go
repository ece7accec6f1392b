// Package extract converts uploaded document files into plain text for
// chunking and indexing.
//
// Extraction is keyed on the file extension. Plain-text formats pass
// through with light normalization; HTML is reduced to its visible text
// with script and style content removed.
package extract

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	// ErrUnsupportedFormat indicates the file extension has no registered extractor.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtractionFailed indicates the file matched a supported format but
	// could not be parsed.
	ErrExtractionFailed = errors.New("extraction failed")
)

// extractFunc reads a document body and returns its plain text.
type extractFunc func(r io.Reader) (string, error)

// extractors maps lowercase file extensions to their extraction function.
var extractors = map[string]extractFunc{
	".txt":  extractPlain,
	".md":   extractPlain,
	".csv":  extractPlain,
	".log":  extractPlain,
	".rst":  extractPlain,
	".html": extractHTML,
	".htm":  extractHTML,
}

// SupportedExtensions returns the sorted list of file extensions Text accepts.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Supported reports whether the filename's extension has a registered extractor.
func Supported(filename string) bool {
	_, ok := extractors[normalizeExt(filename)]
	return ok
}

// Text extracts plain text from the document body, dispatching on the
// filename's extension. Returns ErrUnsupportedFormat for unknown
// extensions and ErrExtractionFailed when parsing fails.
func Text(filename string, r io.Reader) (string, error) {
	ext := normalizeExt(filename)
	fn, ok := extractors[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}

	text, err := fn(r)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrExtractionFailed, filename, err)
	}
	return text, nil
}

func normalizeExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// extractPlain reads the body as-is, normalizing line endings.
func extractPlain(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}

// extractHTML reduces an HTML document to its visible text. Script,
// style and head content is dropped; block elements become paragraph
// breaks so chunking can split on them.
func extractHTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript, head").Remove()

	var b strings.Builder
	doc.Find("p, h1, h2, h3, h4, h5, h6, li, td, th, pre, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	})

	// Documents without block markup still carry text directly in body.
	if b.Len() == 0 {
		return strings.TrimSpace(doc.Find("body").Text()), nil
	}
	return b.String(), nil
}
