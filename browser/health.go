package browser

import (
	"math"
	"sync"
	"time"
)

// Tab retirement thresholds.
const (
	maxErrScore = 3.0
	maxPageUses = 50
	maxPageAge  = 50 * time.Minute
)

// pageHealth scores a pooled tab across sessions. Failures add 1, successes
// subtract 0.5 down to zero; a tab is retired once it reaches maxErrScore,
// maxPageUses sessions or maxPageAge.
type pageHealth struct {
	mu       sync.Mutex
	errScore float64
	uses     int
	created  time.Time
}

func newPageHealth(now time.Time) *pageHealth {
	return &pageHealth{created: now}
}

func (h *pageHealth) record(failed bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.uses++
	if failed {
		h.errScore += 1.0
		return
	}
	h.errScore = math.Max(0, h.errScore-0.5)
}

func (h *pageHealth) shouldRetire(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.errScore >= maxErrScore ||
		h.uses >= maxPageUses ||
		now.Sub(h.created) >= maxPageAge
}
