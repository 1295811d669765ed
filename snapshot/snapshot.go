// Package snapshot builds element records from static HTML. It mirrors the
// in-page enumeration script and serves as its reference oracle, and as the
// extraction path for pages fetched without a browser.
package snapshot

import (
	"strings"
	"unicode"
	"unicode/utf16"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/domprobe/models"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// TextPreviewLimit is the text preview length in UTF-16 code units, the unit
// JavaScript's String.prototype.slice counts in.
const TextPreviewLimit = 80

// UniversalSelector matches every element.
const UniversalSelector = "*"

// Records parses rawHTML and returns one record per element matching
// selector, in document order. An empty selector means every element.
//
// The parser synthesises html, head and body like a browser does, so the
// records line up with what the enumeration script returns for the same
// markup. Contents of <template> elements are inert in a browser: they are
// neither enumerated nor part of any textContent, and are skipped here too.
func Records(rawHTML, selector string) ([]models.ElementRecord, error) {
	if selector == "" {
		selector = UniversalSelector
	}
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}

	matches := doc.FindMatcher(sel)
	records := make([]models.ElementRecord, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if inTemplate(node) {
			return
		}
		records = append(records, models.ElementRecord{
			Tag:   tagName(s),
			ID:    s.AttrOr("id", ""),
			Class: s.AttrOr("class", ""),
			Text:  TextPreview(textContent(node)),
		})
	})
	return records, nil
}

// tagName reproduces Element.tagName: upper-cased for HTML elements, as
// written for SVG and MathML elements.
func tagName(s *goquery.Selection) string {
	node := s.Get(0)
	if node.Namespace == "" {
		return strings.ToUpper(node.Data)
	}
	return node.Data
}

func isTemplate(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Namespace == "" && n.DataAtom == atom.Template
}

func inTemplate(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if isTemplate(p) {
			return true
		}
	}
	return false
}

// textContent concatenates descendant text like Node.textContent, leaving
// out template contents.
func textContent(n *html.Node) string {
	if isTemplate(n) {
		return ""
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				b.WriteString(c.Data)
			case c.Type == html.ElementNode && !isTemplate(c):
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

// TextPreview trims text the way String.prototype.trim does and truncates
// it to TextPreviewLimit UTF-16 code units. The result is always a prefix of
// the trimmed text.
func TextPreview(text string) string {
	return truncateUTF16(strings.TrimFunc(text, isJSWhitespace), TextPreviewLimit)
}

// isJSWhitespace matches the ECMAScript WhiteSpace and LineTerminator sets.
func isJSWhitespace(r rune) bool {
	if r == '\uFEFF' {
		return true
	}
	return r != '\u0085' && unicode.IsSpace(r)
}

// truncateUTF16 cuts s after at most limit UTF-16 code units without
// splitting a rune.
func truncateUTF16(s string, limit int) string {
	units := 0
	for i, r := range s {
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		if units+n > limit {
			return s[:i]
		}
		units += n
	}
	return s
}
