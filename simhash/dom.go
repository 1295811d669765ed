package simhash

import (
	"strings"

	"golang.org/x/net/html"
)

// shingleSize is the n-gram width used for structural fingerprints.
const shingleSize = 3

// FingerprintDOM fingerprints the open-tag sequence of an HTML document.
// Text, attributes and closing tags are ignored.
func FingerprintDOM(markup string) uint64 {
	return FingerprintTags(openTags(markup))
}

// FingerprintTags fingerprints a tag-name sequence such as the tags of the
// records enumerated in a live page. Names are lower-cased so a rendered
// "DIV" matches a parsed "div". Sequences shorter than one shingle are
// fingerprinted tag by tag.
func FingerprintTags(tags []string) uint64 {
	lowered := make([]string, len(tags))
	for i, t := range tags {
		lowered[i] = strings.ToLower(t)
	}
	if s := shingles(lowered, shingleSize); len(s) > 0 {
		return Fingerprint(s)
	}
	return Fingerprint(lowered)
}

func openTags(markup string) []string {
	z := html.NewTokenizer(strings.NewReader(markup))
	var tags []string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return tags
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tags = append(tags, string(name))
		}
	}
}

// shingles joins every window of n consecutive tokens with "_".
func shingles(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	out := make([]string, 0, len(tokens)-n+1)
	for i := n; i <= len(tokens); i++ {
		out = append(out, strings.Join(tokens[i-n:i], "_"))
	}
	return out
}
