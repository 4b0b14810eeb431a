// Package canon turns a raw, markup-bearing document body into a stable
// plain-text form and hashes it.
//
// The canonical form is produced in four steps: markup tags are stripped
// (script and style contents are dropped with them; the text of every other
// element, title and noscript included, is kept), HTML entities in the
// remaining text are decoded, ASCII whitespace runs collapse to a single
// space, and the result is trimmed. Entities are decoded only after the
// tags are gone, so an escaped tag in the text never becomes markup.
//
// Any change to these steps must bump Algo so that ledger entries written
// under the old rules stay distinguishable.
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Algo is the versioned algorithm tag recorded with every ledger entry.
const Algo = "sha256(canonical_text_v1)"

// Hasher computes the canonical hash of a raw document body.
// *Canonicalizer satisfies this interface.
type Hasher interface {
	Hash(raw string) string
}

// Canonicalizer strips markup and hashes the canonical text.
// It is safe for concurrent use.
type Canonicalizer struct {
	policy *bluemonday.Policy
}

// keptContent are the elements bluemonday drops wholesale by default whose
// text belongs in the canonical form. Only script and style stay skipped.
var keptContent = []string{
	"frame", "frameset", "iframe", "noembed", "noframes",
	"noscript", "nostyle", "object", "title",
}

// rawTextTag matches the tags the HTML tokenizer treats as raw text. Their
// contents would otherwise pass through as one text token with any inner
// markup left in place, so they are renamed to an ordinary element first.
var rawTextTag = regexp.MustCompile(`(?i)<(/?)(iframe|noembed|noframes|noscript|plaintext|textarea|title|xmp)([\s/>])`)

// New creates a Canonicalizer.
func New() *Canonicalizer {
	p := bluemonday.StrictPolicy()
	p.AllowElementsContent(keptContent...)
	return &Canonicalizer{policy: p}
}

// Canonicalize returns the canonical plain text of raw.
// Invalid UTF-8 is replaced rather than rejected.
func (c *Canonicalizer) Canonicalize(raw string) string {
	raw = strings.ToValidUTF8(raw, "�")

	// StrictPolicy drops every element and re-escapes the text it keeps,
	// so the single UnescapeString below is the only entity decode.
	raw = rawTextTag.ReplaceAllString(raw, "<${1}span${3}")
	text := html.UnescapeString(c.policy.Sanitize(raw))
	return collapseSpace(text)
}

// Hash returns the lowercase hex SHA-256 of the canonical text of raw.
func (c *Canonicalizer) Hash(raw string) string {
	return Sum(c.Canonicalize(raw))
}

// Sum returns the lowercase hex SHA-256 of already-canonical text.
func Sum(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

// collapseSpace folds runs of ASCII whitespace into one space and trims
// both ends. Non-ASCII spaces (U+00A0 from &nbsp; for example) are kept
// as text.
func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pending := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if isASCIISpace(ch) {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func isASCIISpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}
