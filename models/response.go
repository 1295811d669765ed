package models

// ElementsResponse is the response for POST /api/v1/elements.
type ElementsResponse struct {
	// Success indicates whether the elements were extracted.
	Success bool `json:"success"`

	// URL is the page the session loaded.
	URL string `json:"url"`

	// Total is the number of decoded element records.
	Total int `json:"total"`

	// Elements holds the decoded records in document order.
	Elements []ElementRecord `json:"elements"`

	// Report is the rendered DOM ELEMENTS text block.
	Report string `json:"report,omitempty"`

	// Unexpected carries the raw JSON value when the enumeration script
	// returned something other than a list of strings.
	Unexpected string `json:"unexpected,omitempty"`

	// InjectError is set when the CSS override failed. Injection is
	// best-effort and never fails the request.
	InjectError string `json:"inject_error,omitempty"`

	// Fingerprint is the SimHash of the rendered tag sequence.
	Fingerprint string `json:"fingerprint,omitempty"`

	// StaticDistance is the Hamming distance between the rendered and the
	// HTTP-fetched DOM fingerprints. Only set when compare_static is true.
	StaticDistance *int `json:"static_distance,omitempty"`

	// Timing provides duration breakdowns for the session.
	Timing TimingInfo `json:"timing"`

	// CacheStatus is "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Driver names the browser driver that served the request.
	Driver string `json:"driver,omitempty"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	TotalMs   int64 `json:"total_ms"`
	LoadMs    int64 `json:"load_ms"`
	InjectMs  int64 `json:"inject_ms"`
	ExtractMs int64 `json:"extract_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	Driver    string    `json:"driver"`
	PoolStats PoolStats `json:"pool_stats"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
