package models

// Wait strategies accepted by ElementsRequest.WaitStrategy.
const (
	WaitEvent = "event"
	WaitPoll  = "poll"
)

// ElementsRequest is the payload for POST /api/v1/elements.
type ElementsRequest struct {
	// URL is the page to load. Required.
	URL string `json:"url" binding:"required,url"`

	// Timeout is the maximum duration in seconds for the whole session
	// (load + wait + inject + extract).
	// Default: 30. Max: 120.
	Timeout int `json:"timeout,omitempty" binding:"omitempty,min=1,max=120"`

	// WaitStrategy selects how the load waiter detects idleness.
	// "event" (default) waits on the browser's load notification,
	// "poll" checks the loading flag at a fixed interval.
	WaitStrategy string `json:"wait_strategy,omitempty" binding:"omitempty,oneof=event poll"`

	// Inject runs the vertical-only CSS override before extraction.
	// Default: true.
	Inject *bool `json:"inject,omitempty"`

	// TagSummary appends the most-common-tags table to the text report.
	TagSummary bool `json:"tag_summary,omitempty"`

	// Stealth enables anti-bot-detection evasions (rod driver only).
	Stealth bool `json:"stealth,omitempty"`

	// CompareStatic fetches the page over plain HTTP as well and reports
	// the structural distance between the static and rendered DOM.
	CompareStatic bool `json:"compare_static,omitempty"`

	// MaxAge enables the response cache: a cached response younger than
	// MaxAge milliseconds is returned without touching the browser.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// WebhookURL receives an extract.completed / extract.failed event.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ElementsRequest) Defaults() {
	if r.Timeout == 0 {
		r.Timeout = 30
	}
	if r.WaitStrategy == "" {
		r.WaitStrategy = WaitEvent
	}
	if r.Inject == nil {
		t := true
		r.Inject = &t
	}
}
