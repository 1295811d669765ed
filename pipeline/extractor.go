package pipeline

import (
	"context"

	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/models"
)

// Extractor runs the element enumeration script and decodes its result.
type Extractor struct {
	Script string
}

// NewExtractor returns an Extractor for EnumerateElementsScript.
func NewExtractor() *Extractor {
	return &Extractor{Script: EnumerateElementsScript}
}

// Extract executes the script once. The page must already be idle.
//
// An execution failure yields a KindError result together with an
// EXTRACT_FAILED (or TIMEOUT) ProbeError. A value of the wrong shape is not
// an error: it yields a KindUnexpected result carrying the raw JSON.
func (e *Extractor) Extract(ctx context.Context, page browser.Page) (ScriptResult, error) {
	v, err := page.ExecuteScript(ctx, e.Script)
	if err != nil {
		probeErr := categorizeError(err, models.ErrCodeExtractFailed, "DOM enumeration script failed")
		return Failed(probeErr), probeErr
	}
	return Decode(v), nil
}
