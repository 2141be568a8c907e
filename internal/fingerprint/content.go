package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/net/html"
)

// Content computes the 256-bit content fingerprint of a rendered markup
// string: the markup is stripped to visible text, whitespace is normalized,
// and the result is hashed. Identical visible text yields an identical
// fingerprint regardless of incidental markup differences.
func Content(markup string) string {
	text := ExtractText(markup)
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// ExtractText strips markup from a rendered string and normalizes the
// remaining text: script/style contents are dropped, whitespace runs
// (including non-breaking spaces) collapse to single spaces, and edges are
// trimmed. Exported so tests and callers can inspect the hashed form.
func ExtractText(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		// html.Parse is tolerant and only fails on reader errors; fall back
		// to normalizing the raw input.
		return normalizeWhitespace(markup)
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return normalizeWhitespace(sb.String())
}

// normalizeWhitespace collapses every run of whitespace into a single space
// and trims edges. strings.Fields splits on unicode.IsSpace, which covers
// the non-breaking spaces that &nbsp; entities decode to.
func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
