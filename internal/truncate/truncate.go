// Package truncate provides byte- and token-budgeted text truncation that
// preserves a prefix and suffix on UTF-8 boundaries. Token budgets use a
// 4-bytes-per-token heuristic throughout.
package truncate

import (
	"fmt"
	"unicode/utf8"
)

const approxBytesPerToken = 4

// Mode selects how a Policy's limit is interpreted.
type Mode string

const (
	ModeBytes  Mode = "bytes"
	ModeTokens Mode = "tokens"
)

// Policy is a truncation budget. The zero value means "no truncation".
type Policy struct {
	Mode  Mode `json:"mode"`
	Limit int  `json:"limit"`
}

// Bytes returns a byte-budget policy.
func Bytes(n int) Policy { return Policy{Mode: ModeBytes, Limit: n} }

// Tokens returns a token-budget policy.
func Tokens(n int) Policy { return Policy{Mode: ModeTokens, Limit: n} }

// IsZero reports whether the policy imposes no budget.
func (p Policy) IsZero() bool { return p.Mode == "" }

// ByteBudget returns the policy's budget in bytes.
func (p Policy) ByteBudget() int {
	if p.Mode == ModeTokens {
		return p.Limit * approxBytesPerToken
	}
	return p.Limit
}

// TokenBudget returns the policy's budget in tokens.
func (p Policy) TokenBudget() int {
	if p.Mode == ModeBytes {
		return p.Limit / approxBytesPerToken
	}
	return p.Limit
}

// ApproxTokenCount estimates the token count of text.
func ApproxTokenCount(text string) int {
	return (len(text) + approxBytesPerToken - 1) / approxBytesPerToken
}

// TruncateText shortens text to the policy's byte budget, keeping the
// head and tail with an elision marker between them. Cuts land on UTF-8
// boundaries. Text within budget is returned unchanged.
func TruncateText(text string, policy Policy) string {
	if policy.IsZero() {
		return text
	}
	budget := policy.ByteBudget()
	if len(text) <= budget {
		return text
	}
	if budget <= 0 {
		return ""
	}

	head := clipToRuneBoundary(text, budget/2)
	tailStart := alignToRuneStart(text, len(text)-(budget-len(head)))
	elided := tailStart - len(head)
	return fmt.Sprintf("%s\n[...%d bytes truncated...]\n%s", head, elided, text[tailStart:])
}

// clipToRuneBoundary returns the longest prefix of s at most n bytes long
// that ends on a rune boundary.
func clipToRuneBoundary(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// alignToRuneStart moves i forward to the next rune start in s.
func alignToRuneStart(s string, i int) int {
	if i < 0 {
		i = 0
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
