package pipeline

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/domprobe/models"
	"github.com/use-agent/domprobe/snapshot"
)

func TestEnumerateElementsScript_MatchesSnapshotContract(t *testing.T) {
	assert.Equal(t, snapshot.TextPreviewLimit, TextPreviewLimit)
	assert.Contains(t, EnumerateElementsScript, fmt.Sprintf(".slice(0, %d)", TextPreviewLimit))
	assert.Contains(t, EnumerateElementsScript, "'"+Delimiter+"'")
	assert.Contains(t, EnumerateElementsScript, "getElementsByTagName('*')")
}

func TestScriptsAreFunctionExpressions(t *testing.T) {
	for name, src := range map[string]string{
		"inject":    VerticalOnlyScript,
		"enumerate": EnumerateElementsScript,
	} {
		assert.True(t, strings.HasPrefix(src, "() => {"), name)
		assert.True(t, strings.HasSuffix(src, "}"), name)
	}
}

func TestVerticalOnlyScript_Rules(t *testing.T) {
	for _, rule := range []string{
		"overflow-x: hidden !important;",
		"overscroll-behavior-x: none;",
		"max-width: 100vw !important;",
		"box-sizing: border-box;",
	} {
		assert.Contains(t, VerticalOnlyScript, rule)
	}
}

func TestVerticalOnlyScript_CarriesCSS(t *testing.T) {
	assert.Contains(t, VerticalOnlyScript, strconv.Quote(VerticalOnlyCSS))
}

func TestPageRecords(t *testing.T) {
	records, err := snapshot.Records(
		"<html><head><style>p { color: red }</style><style>"+VerticalOnlyCSS+"</style></head><body><div>x</div></body></html>", "")
	require.NoError(t, err)
	require.Len(t, records, 6)

	got := PageRecords(records)

	assert.Equal(t, []string{"HTML", "HEAD", "STYLE", "BODY", "DIV"}, Tags(got))
	assert.Equal(t, "p { color: red }", got[2].Text)
	assert.Len(t, records, 6)
}

func TestPageRecords_KeepsLookalikes(t *testing.T) {
	records := []models.ElementRecord{
		{Tag: "STYLE", ID: "theme", Text: injectedPreview},
		{Tag: "DIV", Text: injectedPreview},
	}
	assert.Equal(t, records, PageRecords(records))
}
