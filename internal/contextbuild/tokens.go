package contextbuild

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"courserag/internal/log"
)

// charsPerToken is the fallback heuristic when no BPE encoding is loadable.
const charsPerToken = 4

// TokenCounter estimates LLM tokens. It prefers a real BPE encoding and
// degrades to a character-count heuristic when the encoding cannot be loaded
// (offline environments); the budget invariants hold either way.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

func NewTokenCounter(logger *log.Logger) *TokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		if logger != nil {
			logger.Warn("token encoding unavailable, using char heuristic", "err", err.Error())
		}
		return &TokenCounter{}
	}
	return &TokenCounter{enc: enc}
}

// newHeuristicCounter is the deterministic fallback, used directly in tests.
func newHeuristicCounter() *TokenCounter { return &TokenCounter{} }

func (t *TokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	if t.enc != nil {
		return len(t.enc.Encode(s, nil, nil))
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// Truncate cuts s down so Count(result) <= max, clipping to a word boundary
// and appending an ellipsis. Returns "" when max leaves no useful room.
func (t *TokenCounter) Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if t.Count(s) <= max {
		return s
	}
	// initial guess by the char heuristic, then shrink until it fits
	cut := max * charsPerToken
	if cut > len(s) {
		cut = len(s)
	}
	for cut > 0 {
		cand := clipToWordBoundary(s[:cut]) + "…"
		if t.Count(cand) <= max {
			return cand
		}
		cut -= charsPerToken * 8
	}
	return ""
}

// clipToWordBoundary trims a trailing partial word.
func clipToWordBoundary(s string) string {
	if i := strings.LastIndexAny(s, " \t\n"); i > 0 {
		return strings.TrimRight(s[:i], " \t\n")
	}
	return s
}
