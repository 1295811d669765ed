package snapshot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/domprobe/models"
)

const oneDiv = `<div id="x" class="y">hello</div>`

func TestRecords_OneDivDocument(t *testing.T) {
	records, err := Records(oneDiv, "")
	require.NoError(t, err)

	assert.Equal(t, []models.ElementRecord{
		{Tag: "HTML", Text: "hello"},
		{Tag: "HEAD"},
		{Tag: "BODY", Text: "hello"},
		{Tag: "DIV", ID: "x", Class: "y", Text: "hello"},
	}, records)
}

func TestRecords_Selector(t *testing.T) {
	page := `<ul><li class="a">one</li><li>two</li></ul><p class="a">three</p>`

	records, err := Records(page, ".a")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "LI", records[0].Tag)
	assert.Equal(t, "P", records[1].Tag)
	assert.Equal(t, "three", records[1].Text)
}

func TestRecords_BadSelector(t *testing.T) {
	_, err := Records(oneDiv, "div[")
	assert.Error(t, err)
}

func TestRecords_MissingAttributesDefaultEmpty(t *testing.T) {
	records, err := Records(`<span></span>`, "span")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.ElementRecord{Tag: "SPAN"}, records[0])
}

func TestRecords_SVGKeepsCase(t *testing.T) {
	records, err := Records(`<svg><circle r="1"></circle></svg>`, "svg, circle")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "svg", records[0].Tag)
	assert.Equal(t, "circle", records[1].Tag)
}

func TestRecords_TemplateContentsAreInert(t *testing.T) {
	records, err := Records(`<div>a<template><p id="t">b<span>c</span></p></template>d</div><p>e</p>`, "")
	require.NoError(t, err)

	want := []models.ElementRecord{
		{Tag: "HTML", Text: "ade"},
		{Tag: "HEAD"},
		{Tag: "BODY", Text: "ade"},
		{Tag: "DIV", Text: "ad"},
		{Tag: "TEMPLATE"},
		{Tag: "P", Text: "e"},
	}
	assert.Equal(t, want, records)
}

func TestRecords_SelectorSkipsTemplateContents(t *testing.T) {
	records, err := Records(`<p>out</p><template><p>in</p></template>`, "p")
	require.NoError(t, err)

	assert.Equal(t, []models.ElementRecord{{Tag: "P", Text: "out"}}, records)
}

func TestRecords_TextIsTrimmedAndTruncated(t *testing.T) {
	long := strings.Repeat("a", 200)
	records, err := Records("<p>\n   "+long+"   \n</p>", "p")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Len(t, records[0].Text, TextPreviewLimit)
	assert.True(t, strings.HasPrefix(long, records[0].Text))
}

func TestTextPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\r\n", ""},
		{"nbsp trimmed", "\u00a0hi\u00a0", "hi"},
		{"bom trimmed", "\ufeffhi", "hi"},
		{"inner whitespace kept", "  a  b  ", "a  b"},
		{"exact limit", strings.Repeat("x", 80), strings.Repeat("x", 80)},
		{"over limit", strings.Repeat("x", 81), strings.Repeat("x", 80)},
		{"multibyte counts once", strings.Repeat("é", 90), strings.Repeat("é", 80)},
		{"surrogate pair not split", strings.Repeat("x", 79) + "😀", strings.Repeat("x", 79)},
		{"surrogate pair fits", strings.Repeat("x", 78) + "😀z", strings.Repeat("x", 78) + "😀"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TextPreview(tt.in))
		})
	}
}

func TestTextPreview_IsPrefixOfTrimmed(t *testing.T) {
	inputs := []string{
		"   hello world   ",
		strings.Repeat("word ", 50),
		"\n\n" + strings.Repeat("日本語", 40),
	}
	for _, in := range inputs {
		got := TextPreview(in)
		trimmed := strings.TrimFunc(in, isJSWhitespace)
		assert.True(t, strings.HasPrefix(trimmed, got), "preview %q not a prefix of %q", got, trimmed)
	}
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("User-Agent"), "Chrome")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><head><title> Probe </title></head><body>" + oneDiv + "</body></html>"))
	}))
	defer srv.Close()

	f := NewFetcher("", 5*time.Second)
	doc, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, doc.StatusCode)
	assert.Equal(t, "Probe", doc.Title)
	assert.Equal(t, srv.URL, doc.FinalURL)

	records, err := Records(doc.HTML, "div")
	require.NoError(t, err)
	assert.Equal(t, []models.ElementRecord{{Tag: "DIV", ID: "x", Class: "y", Text: "hello"}}, records)
}

func TestFetcher_RejectsErrorsAndNonHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		}
	}))
	defer srv.Close()

	f := NewFetcher("", 5*time.Second)

	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 404")

	_, err = f.Fetch(context.Background(), srv.URL+"/json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "non-html")
}

func TestIsHTMLContentType(t *testing.T) {
	assert.True(t, isHTMLContentType(""))
	assert.True(t, isHTMLContentType("text/html"))
	assert.True(t, isHTMLContentType("Application/XHTML+XML"))
	assert.False(t, isHTMLContentType("image/png"))
}
