package pipeline

import (
	"strconv"

	"github.com/use-agent/domprobe/models"
)

// Delimiter joins the four fields of an encoded element record. It is not
// escaped: a "|" inside an id, class list or text preview shifts the fields
// that follow it.
const Delimiter = "|"

// TextPreviewLimit is the maximum text preview length in UTF-16 code units.
const TextPreviewLimit = 80

// VerticalOnlyCSS disables horizontal scrolling and clamps every element to
// the viewport width.
const VerticalOnlyCSS = `html, body {
  overflow-x: hidden !important;
  overscroll-behavior-x: none;
}
* {
  max-width: 100vw !important;
  box-sizing: border-box;
}`

// VerticalOnlyScript appends a style element holding VerticalOnlyCSS. It
// returns nothing.
var VerticalOnlyScript = `() => {
	const style = document.createElement('style');
	style.textContent = ` + strconv.Quote(VerticalOnlyCSS) + `;
	(document.head || document.documentElement).appendChild(style);
}`

// EnumerateElementsScript returns one "tag|id|class|text" string per element
// in document order.
const EnumerateElementsScript = `() => {
	const all = document.getElementsByTagName('*');
	const elements = [];
	for (let i = 0; i < all.length; i++) {
		const el = all[i];
		const id = el.getAttribute('id') || '';
		const className = el.getAttribute('class') || '';
		const text = (el.textContent || '').trim().slice(0, 80);
		elements.push(el.tagName + '|' + id + '|' + className + '|' + text);
	}
	return elements;
}`

// injectedPreview is the text preview the enumeration script reports for
// the style element VerticalOnlyScript adds. The CSS is ASCII, so the first
// TextPreviewLimit bytes are the first TextPreviewLimit UTF-16 units.
var injectedPreview = VerticalOnlyCSS[:TextPreviewLimit]

// PageRecords returns records without the style element added by
// VerticalOnlyScript, i.e. the elements the page itself built.
func PageRecords(records []models.ElementRecord) []models.ElementRecord {
	out := make([]models.ElementRecord, 0, len(records))
	for _, r := range records {
		if r.Tag == "STYLE" && r.ID == "" && r.Class == "" && r.Text == injectedPreview {
			continue
		}
		out = append(out, r)
	}
	return out
}
