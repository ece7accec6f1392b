// Package chunker splits document text into bounded, overlapping segments
// suitable for embedding.
//
// The splitter walks a preference-ordered list of separators (paragraph
// break, line break, sentence end, space, character) and recursively
// subdivides any segment still exceeding the chunk size with the next
// separator in the list. Adjacent chunks share a configurable number of
// characters of overlap so meaning is not lost at boundaries.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// separators is the preference-ordered separator list. The ideographic
// full stop covers CJK policy documents, which use neither ". " nor
// spaces. The final empty string forces a mid-word character split as
// last resort.
var separators = []string{"\n\n", "\n", ". ", "。", " ", ""}

// Default splitting parameters.
const (
	DefaultChunkSize = 500
	DefaultOverlap   = 50
)

// Splitter splits text into chunks of at most Size characters with
// Overlap characters of shared context between adjacent chunks.
// The zero value is not useful; use New.
type Splitter struct {
	size    int
	overlap int
}

// New creates a Splitter. size must be positive and overlap must be
// smaller than size.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("overlap must be in [0, size), got %d for size %d", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split splits text into chunks. Returns zero chunks for empty input and
// at least one chunk for any non-empty input.
func (s *Splitter) Split(text string) []string {
	if text == "" {
		return nil
	}
	pieces := splitRecursive(text, s.size, separators)
	return s.merge(pieces)
}

// splitRecursive breaks text into pieces no longer than size runes,
// preferring the earliest separator in seps that produces progress.
func splitRecursive(text string, size int, seps []string) []string {
	if utf8.RuneCountInString(text) <= size {
		return []string{text}
	}

	sep := seps[0]
	rest := seps[1:]

	if sep == "" {
		// Character-level fallback: hard cut every size runes. Cuts
		// land on rune boundaries so multibyte text stays valid UTF-8.
		var out []string
		runes := []rune(text)
		for len(runes) > size {
			out = append(out, string(runes[:size]))
			runes = runes[size:]
		}
		if len(runes) > 0 {
			out = append(out, string(runes))
		}
		return out
	}

	parts := strings.SplitAfter(text, sep)
	if len(parts) == 1 {
		// Separator absent, try the next one.
		return splitRecursive(text, size, rest)
	}

	var out []string
	for _, part := range parts {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) <= size {
			out = append(out, part)
			continue
		}
		out = append(out, splitRecursive(part, size, rest)...)
	}
	return out
}

// merge packs pieces into chunks of at most s.size runes, carrying
// s.overlap runes from the end of each chunk into the next.
func (s *Splitter) merge(pieces []string) []string {
	var chunks []string
	var cur strings.Builder
	curLen := 0

	for _, piece := range pieces {
		pieceLen := utf8.RuneCountInString(piece)
		if curLen > 0 && curLen+pieceLen > s.size {
			chunk := cur.String()
			chunks = append(chunks, chunk)

			cur.Reset()
			curLen = 0
			if s.overlap > 0 {
				tail := runeTail(chunk, s.overlap)
				tailLen := utf8.RuneCountInString(tail)
				// Skip the carry when it would push the next chunk
				// past the size limit.
				if tailLen+pieceLen <= s.size {
					cur.WriteString(tail)
					curLen = tailLen
				}
			}
		}
		cur.WriteString(piece)
		curLen += pieceLen
	}

	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// runeTail returns the suffix of text holding at most n runes.
func runeTail(text string, n int) string {
	seen := 0
	for i := len(text); i > 0; {
		_, w := utf8.DecodeLastRuneInString(text[:i])
		i -= w
		seen++
		if seen == n {
			return text[i:]
		}
	}
	return text
}
