package handler

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/cache"
	"github.com/use-agent/domprobe/config"
	"github.com/use-agent/domprobe/models"
	"github.com/use-agent/domprobe/pipeline"
	"github.com/use-agent/domprobe/simhash"
	"github.com/use-agent/domprobe/snapshot"
	"github.com/use-agent/domprobe/webhook"
)

// StaticFetcher retrieves a page without a browser.
type StaticFetcher interface {
	Fetch(ctx context.Context, url string) (*snapshot.Document, error)
}

// Elements returns a handler for POST /api/v1/elements.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults.
//  2. Serve from cache when max_age allows.
//  3. Borrow a page and run the session (load, wait, inject, wait, extract).
//  4. Optionally fetch the page statically and compare fingerprints.
//  5. Cache, fire the webhook, respond.
func Elements(driver browser.Driver, fetcher StaticFetcher, cc *cache.Cache, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ElementsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewProbeError(models.ErrCodeInvalidInput, err.Error(), err), models.TimingInfo{})
			return
		}
		req.Defaults()

		timeout := time.Duration(req.Timeout) * time.Second
		if cfg.Server.MaxTimeout > 0 && timeout > cfg.Server.MaxTimeout {
			timeout = cfg.Server.MaxTimeout
		}
		log := slog.With("url", req.URL, "driver", driver.Name())

		// ── 2. Cache lookup ────────────────────────────────────────
		cacheKey := cache.Key(req)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				resp := *cached
				resp.CacheStatus = "hit"
				resp.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
				c.JSON(http.StatusOK, resp)
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		// ── 3. Session ─────────────────────────────────────────────
		page, release, err := driver.NewPage(ctx, browser.PageOptions{Stealth: req.Stealth})
		if err != nil {
			timing := models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
			notifyFailure(req, err)
			respondError(c, err, timing)
			return
		}
		defer release()

		waiter := pipeline.NewWaiter(cfg.Pipeline, log)
		waiter.Strategy = req.WaitStrategy

		var report bytes.Buffer
		session := &pipeline.Session{
			Page:   page,
			URL:    req.URL,
			Waiter: waiter,
			Out:    &report,
			Logger: log,
			Options: pipeline.Options{
				SkipInject:      !*req.Inject,
				TagSummary:      req.TagSummary,
				TagSummaryLimit: cfg.Pipeline.TagSummaryLimit,
			},
		}
		out := session.Run(ctx)

		if err := out.Err(); err != nil {
			timing := out.Timing
			timing.TotalMs = time.Since(totalStart).Milliseconds()
			notifyFailure(req, err)
			respondError(c, err, timing)
			return
		}

		resp := buildResponse(out, report.String(), driver.Name())

		// ── 4. Static comparison (best-effort) ──────────────────────
		if req.CompareStatic && fetcher != nil {
			if d, err := staticDistance(ctx, fetcher, req.URL, out.Fingerprint); err != nil {
				log.Warn("static comparison failed", "op", "static", "error", err)
			} else {
				resp.StaticDistance = &d
			}
		}
		resp.Timing.TotalMs = time.Since(totalStart).Milliseconds()

		// ── 5. Cache store + webhook ────────────────────────────────
		if cc != nil && req.MaxAge > 0 {
			stored := *resp
			cc.Set(cacheKey, &stored)
			resp.CacheStatus = "miss"
		}
		if req.WebhookURL != "" {
			webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret,
				webhook.NewEvent(webhook.EventCompleted, req.URL, resp))
		}

		c.JSON(http.StatusOK, resp)
	}
}

// buildResponse maps a finished session onto the wire format. An unexpected
// script result is reported but is not a failure.
func buildResponse(out *pipeline.Outcome, report, driverName string) *models.ElementsResponse {
	records := out.Records
	if records == nil {
		records = []models.ElementRecord{}
	}

	resp := &models.ElementsResponse{
		Success:  true,
		URL:      out.URL,
		Total:    len(records),
		Elements: records,
		Report:   report,
		Timing:   out.Timing,
		Driver:   driverName,
	}
	if out.Unexpected() {
		resp.Unexpected = out.Result.Raw
	}
	if out.InjectErr != nil {
		resp.InjectError = out.InjectErr.Error()
	}
	if len(records) > 0 {
		resp.Fingerprint = simhash.Hex(out.Fingerprint)
	}
	return resp
}

// staticDistance fetches pageURL over HTTP, enumerates its elements from
// the raw markup and returns the Hamming distance to the rendered
// fingerprint.
func staticDistance(ctx context.Context, fetcher StaticFetcher, pageURL string, rendered uint64) (int, error) {
	doc, err := fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return 0, models.NewProbeError(models.ErrCodeStaticFetch, "static fetch failed", err)
	}
	records, err := snapshot.Records(doc.HTML, "")
	if err != nil {
		return 0, models.NewProbeError(models.ErrCodeStaticFetch, "static parse failed", err)
	}
	return simhash.Distance(rendered, simhash.FingerprintTags(pipeline.Tags(records))), nil
}

func notifyFailure(req models.ElementsRequest, err error) {
	if req.WebhookURL == "" {
		return
	}
	webhook.DeliverAsync(req.WebhookURL, req.WebhookSecret,
		webhook.NewEvent(webhook.EventFailed, req.URL, toProbeError(err).ToDetail()))
}

// respondError maps a ProbeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	probeErr := toProbeError(err)
	c.JSON(mapErrorToStatus(probeErr), models.ElementsResponse{
		Success:  false,
		Elements: []models.ElementRecord{},
		Error:    probeErr.ToDetail(),
		Timing:   timing,
	})
}

func toProbeError(err error) *models.ProbeError {
	var probeErr *models.ProbeError
	if errors.As(err, &probeErr) {
		return probeErr
	}
	return models.NewProbeError(models.ErrCodeInternal, err.Error(), err)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ProbeError) int {
	switch e.Code {
	case models.ErrCodeTimeout, models.ErrCodeLoadTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeLoadFailed, models.ErrCodeStaticFetch:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeBrowserCrash:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
