package pipeline

import (
	"context"
	"errors"

	"github.com/use-agent/domprobe/models"
)

// categorizeError wraps raw errors into typed ProbeErrors so callers can map
// them to exit codes and HTTP statuses. Errors that are already typed pass
// through unchanged.
func categorizeError(err error, code, msg string) *models.ProbeError {
	var probeErr *models.ProbeError
	if errors.As(err, &probeErr) {
		return probeErr
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewProbeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewProbeError(models.ErrCodeTimeout, "session canceled", err)
	default:
		return models.NewProbeError(code, msg, err)
	}
}

// isTerminal reports whether a loading-flag error means the navigation has
// failed for good, as opposed to a transient evaluation hiccup.
func isTerminal(err error) bool {
	var probeErr *models.ProbeError
	return errors.As(err, &probeErr) && probeErr.Code == models.ErrCodeLoadFailed
}
