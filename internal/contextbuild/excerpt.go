package contextbuild

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"courserag/internal/retrieval/lexical"
)

// excerptRadius is the half-window, in bytes, around the densest match
// region of a material's text.
const excerptRadius = 350

// excerpt holds a bounded window of a material's text around its best match.
// Start/End index into the original text and never cross its bounds; the
// ellipses added for truncated sides live only in Text.
type excerpt struct {
	Text    string
	Start   int
	End     int
	Matched []string
}

// extractExcerpt locates the highest-density region of query-term hits in
// text and returns a ±excerptRadius window clipped to word boundaries.
// Without any term hit the window anchors at the start of the text.
func extractExcerpt(text string, queryTerms []string) excerpt {
	if text == "" {
		return excerpt{}
	}
	lower, orig := foldOffsets(text)

	var positions []int
	matchedSet := make(map[string]struct{})
	for _, term := range queryTerms {
		for off := 0; ; {
			i := strings.Index(lower[off:], term)
			if i < 0 {
				break
			}
			positions = append(positions, orig[off+i])
			matchedSet[term] = struct{}{}
			off += i + len(term)
		}
	}

	anchor := 0
	if len(positions) > 0 {
		// peak of hits within one radius of each position; earliest wins ties
		best := -1
		for _, p := range positions {
			n := 0
			for _, q := range positions {
				if q >= p-excerptRadius && q <= p+excerptRadius {
					n++
				}
			}
			if n > best {
				best = n
				anchor = p
			}
		}
	}

	start := anchor - excerptRadius
	if start < 0 {
		start = 0
	}
	end := anchor + excerptRadius
	if end > len(text) {
		end = len(text)
	}
	// window edges must not split a rune
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	if start > end {
		start = end
	}

	// clip to word boundaries inside the window
	if start > 0 {
		if i := strings.IndexAny(text[start:end], " \t\n"); i >= 0 && start+i < end {
			start += i + 1
		}
	}
	if end < len(text) {
		if i := strings.LastIndexAny(text[start:end], " \t\n"); i > 0 {
			end = start + i
		}
	}

	out := strings.TrimSpace(text[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(text) {
		out += "…"
	}

	matched := make([]string, 0, len(matchedSet))
	for t := range matchedSet {
		matched = append(matched, t)
	}
	sort.Strings(matched)
	return excerpt{Text: out, Start: start, End: end, Matched: matched}
}

// foldOffsets lowercases text rune by rune and records, for every byte of the
// lowered form, the byte offset of its source rune. Lowercasing can change a
// rune's encoded length, so match positions found in the lowered text must be
// mapped back through this table before slicing the original.
func foldOffsets(text string) (string, []int) {
	var b strings.Builder
	b.Grow(len(text))
	orig := make([]int, 0, len(text))
	var buf [utf8.UTFMax]byte
	for i, r := range text {
		n := utf8.EncodeRune(buf[:], unicode.ToLower(r))
		b.Write(buf[:n])
		for j := 0; j < n; j++ {
			orig = append(orig, i)
		}
	}
	return b.String(), orig
}

// queryTermsFor returns the lowercased content terms used for excerpt
// anchoring and keyword matching.
func queryTermsFor(question string) []string {
	return lexical.Terms(question)
}
