// Package report renders decoded element records as the line-oriented
// DOM ELEMENTS log.
package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/use-agent/domprobe/models"
)

const (
	Header = "================ DOM ELEMENTS ================"
	Footer = "============== END DOM ELEMENTS =============="

	summaryRule = "----------------------------------------"
)

// DefaultTagSummaryLimit is the number of tags WriteTagSummary lists when
// given a non-positive limit.
const DefaultTagSummaryLimit = 20

// Write renders the full report: header, total, one block per record, footer.
func Write(w io.Writer, records []models.ElementRecord) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\n%s\n", Header)
	fmt.Fprintf(&buf, "Total elements: %d\n", len(records))
	for i, rec := range records {
		writeRecord(&buf, i, rec)
	}
	fmt.Fprintf(&buf, "\n%s\n\n", Footer)

	_, err := w.Write(buf.Bytes())
	return err
}

// WriteRecord renders the block for one record. The id and class lines are
// printed only when non-empty, the text line only when non-blank.
func WriteRecord(w io.Writer, index int, rec models.ElementRecord) error {
	var buf bytes.Buffer
	writeRecord(&buf, index, rec)
	_, err := w.Write(buf.Bytes())
	return err
}

// String returns the rendered report.
func String(records []models.ElementRecord) string {
	var sb strings.Builder
	_ = Write(&sb, records)
	return sb.String()
}

func writeRecord(buf *bytes.Buffer, index int, rec models.ElementRecord) {
	fmt.Fprintf(buf, "\n[%d] <%s>\n", index, rec.Tag)
	if rec.ID != "" {
		fmt.Fprintf(buf, "   id: %s\n", rec.ID)
	}
	if rec.Class != "" {
		fmt.Fprintf(buf, "   class: %s\n", rec.Class)
	}
	if strings.TrimFunc(rec.Text, unicode.IsSpace) != "" {
		fmt.Fprintf(buf, "   text: \"%s\"\n", rec.Text)
	}
}

// TagCount is one row of the tag summary.
type TagCount struct {
	Tag   string
	Count int
}

// CountTags tallies records by tag, most common first; ties sort by name.
func CountTags(records []models.ElementRecord) []TagCount {
	counts := make(map[string]int)
	for _, rec := range records {
		counts[rec.Tag]++
	}

	result := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		result = append(result, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Tag < result[j].Tag
	})
	return result
}

// WriteTagSummary lists the limit most common tags and how many other tag
// types were left out.
func WriteTagSummary(w io.Writer, records []models.ElementRecord, limit int) error {
	if limit <= 0 {
		limit = DefaultTagSummaryLimit
	}
	counts := CountTags(records)

	var buf bytes.Buffer
	buf.WriteString("\nTAG SUMMARY:\n")
	buf.WriteString(summaryRule + "\n")
	for i, tc := range counts {
		if i == limit {
			break
		}
		fmt.Fprintf(&buf, "   %s: %d elements\n", tc.Tag, tc.Count)
	}
	if len(counts) > limit {
		fmt.Fprintf(&buf, "   ... and %d more tag types\n", len(counts)-limit)
	}
	buf.WriteString(summaryRule + "\n\n")

	_, err := w.Write(buf.Bytes())
	return err
}
