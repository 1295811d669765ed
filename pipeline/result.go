package pipeline

import (
	"strings"

	"github.com/use-agent/domprobe/models"
	"github.com/ysmood/gson"
)

// ResultKind tags the outcome of a value-returning script.
type ResultKind int

const (
	// KindStrings means the script returned an array of strings.
	KindStrings ResultKind = iota
	// KindUnexpected means the script returned some other value.
	KindUnexpected
	// KindError means the script could not be executed.
	KindError
)

func (k ResultKind) String() string {
	switch k {
	case KindStrings:
		return "strings"
	case KindUnexpected:
		return "unexpected"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// ScriptResult is the decoded outcome of the enumeration script.
type ScriptResult struct {
	Kind ResultKind

	// Lines is set for KindStrings.
	Lines []string

	// Raw is the JSON encoding of the value for KindUnexpected.
	Raw string

	// Err is set for KindError.
	Err error
}

// Decode classifies a script return value. An array whose items are all
// strings (including the empty array) is KindStrings; anything else is
// KindUnexpected.
func Decode(v gson.JSON) ScriptResult {
	items, ok := v.Val().([]interface{})
	if !ok {
		return ScriptResult{Kind: KindUnexpected, Raw: v.JSON("", "")}
	}

	lines := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return ScriptResult{Kind: KindUnexpected, Raw: v.JSON("", "")}
		}
		lines = append(lines, s)
	}
	return ScriptResult{Kind: KindStrings, Lines: lines}
}

// Failed wraps an execution error.
func Failed(err error) ScriptResult {
	return ScriptResult{Kind: KindError, Err: err}
}

// Records parses every line. It returns nil unless Kind is KindStrings.
func (r ScriptResult) Records() []models.ElementRecord {
	if r.Kind != KindStrings {
		return nil
	}
	records := make([]models.ElementRecord, len(r.Lines))
	for i, line := range r.Lines {
		records[i] = ParseRecord(line)
	}
	return records
}

// ParseRecord splits an encoded line on every Delimiter and keeps the first
// four parts as tag, id, class and text. Missing parts are empty; extra
// parts are dropped.
func ParseRecord(line string) models.ElementRecord {
	parts := strings.Split(line, Delimiter)
	field := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}
	return models.ElementRecord{
		Tag:   field(0),
		ID:    field(1),
		Class: field(2),
		Text:  field(3),
	}
}

// EncodeRecord is the Go counterpart of the in-page encoding.
func EncodeRecord(rec models.ElementRecord) string {
	return strings.Join([]string{rec.Tag, rec.ID, rec.Class, rec.Text}, Delimiter)
}
