package pipeline

import (
	"context"

	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/models"
)

// Injector runs a script whose return value is ignored.
type Injector struct {
	Script string
}

// NewInjector returns an Injector for the vertical-only CSS override.
func NewInjector() *Injector {
	return &Injector{Script: VerticalOnlyScript}
}

// Inject executes the script once. The page must already be idle. Failures
// come back as INJECT_FAILED (or TIMEOUT) ProbeErrors and are never retried.
func (i *Injector) Inject(ctx context.Context, page browser.Page) error {
	if _, err := page.ExecuteScript(ctx, i.Script); err != nil {
		return categorizeError(err, models.ErrCodeInjectFailed, "failed to inject vertical-only CSS")
	}
	return nil
}
