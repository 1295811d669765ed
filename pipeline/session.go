// Package pipeline sequences one page interaction: load, wait until idle,
// inject the vertical-only CSS override, wait again, then enumerate and
// report the DOM elements.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/models"
	"github.com/use-agent/domprobe/report"
	"github.com/use-agent/domprobe/simhash"
)

// Options toggles optional session stages.
type Options struct {
	// SkipInject leaves the page presentation untouched.
	SkipInject bool

	// TagSummary appends the most-common-tags table to the report.
	TagSummary      bool
	TagSummaryLimit int
}

// Session is the explicit context for one page interaction. A Session is
// used by a single goroutine; it is the only writer to its Page.
type Session struct {
	Page browser.Page
	URL  string

	Waiter    *Waiter
	Injector  *Injector
	Extractor *Extractor

	// Out receives the DOM ELEMENTS report. Nil discards it.
	Out io.Writer

	Logger  *slog.Logger
	Options Options
}

// Outcome is everything a session run produced. Stage errors are recorded
// here instead of being returned.
type Outcome struct {
	URL     string
	Result  ScriptResult
	Records []models.ElementRecord

	// LoadErr is set when navigation or the load wait failed; inject and
	// extract did not run.
	LoadErr error

	// InjectErr is set when the CSS override failed. Extraction still ran.
	InjectErr error

	// ExtractErr is set when the enumeration script failed to execute.
	ExtractErr error

	// Fingerprint is the SimHash of the page's own tag sequence, without
	// the injected style element (zero when empty).
	Fingerprint uint64

	Timing models.TimingInfo
}

// Err returns the error that kept the session from producing records:
// LoadErr, then ExtractErr. Injection failures are best-effort and never
// returned here.
func (o *Outcome) Err() error {
	if o.LoadErr != nil {
		return o.LoadErr
	}
	return o.ExtractErr
}

// Unexpected reports whether the enumeration script returned a value that
// was not a list of strings.
func (o *Outcome) Unexpected() bool {
	return o.Result.Kind == KindUnexpected
}

// Run executes load → wait → inject → wait → extract → report.
//
// Run never returns an error: navigation and wait failures stop the run and
// land in Outcome.LoadErr; injection and extraction failures are logged
// with their operation name, recorded, and the run finishes normally.
func (s *Session) Run(ctx context.Context) *Outcome {
	start := time.Now()
	out := &Outcome{URL: s.URL}
	defer func() {
		out.Timing.TotalMs = time.Since(start).Milliseconds()
	}()

	log := s.logger().With("url", s.URL)
	waiter := s.waiter()

	// ── 1. Load + wait ──────────────────────────────────────────────
	loadStart := time.Now()
	if err := s.Page.Load(ctx, s.URL); err != nil {
		out.LoadErr = categorizeError(err, models.ErrCodeLoadFailed, "navigation failed")
		log.Error("page load failed", "op", "load", "error", out.LoadErr)
		return out
	}
	if err := waiter.Wait(ctx, s.Page); err != nil {
		out.LoadErr = err
		log.Error("page never became idle", "op", "wait", "error", err)
		return out
	}
	out.Timing.LoadMs = time.Since(loadStart).Milliseconds()
	log.Debug("page idle", "op", "wait", "loadMs", out.Timing.LoadMs)

	// ── 2. Inject (best-effort) ─────────────────────────────────────
	if !s.Options.SkipInject {
		injectStart := time.Now()
		if err := s.injector().Inject(ctx, s.Page); err != nil {
			out.InjectErr = err
			log.Warn("failed to inject vertical-only CSS", "op", "inject", "error", err)
		}
		out.Timing.InjectMs = time.Since(injectStart).Milliseconds()
	}

	// ── 3. Wait again, then extract ─────────────────────────────────
	// The page can start a new navigation at any time; each stage waits for
	// idleness itself.
	extractStart := time.Now()
	if err := waiter.Wait(ctx, s.Page); err != nil {
		out.LoadErr = err
		log.Error("page never became idle", "op", "wait", "error", err)
		return out
	}

	res, err := s.extractor().Extract(ctx, s.Page)
	out.Result = res
	out.Timing.ExtractMs = time.Since(extractStart).Milliseconds()

	switch res.Kind {
	case KindError:
		out.ExtractErr = err
		log.Error("JavaScript error", "op", "extract", "error", err)
		return out
	case KindUnexpected:
		log.Warn("DOM script returned unexpected result", "op", "extract", "result", res.Raw)
		return out
	}

	out.Records = res.Records()
	out.Fingerprint = simhash.FingerprintTags(Tags(PageRecords(out.Records)))
	log.Info("DOM elements extracted", "op", "extract", "total", len(out.Records))

	// ── 4. Report ───────────────────────────────────────────────────
	if s.Out != nil {
		if err := report.Write(s.Out, out.Records); err != nil {
			log.Warn("failed to write report", "op", "report", "error", err)
		}
		if s.Options.TagSummary {
			if err := report.WriteTagSummary(s.Out, out.Records, s.Options.TagSummaryLimit); err != nil {
				log.Warn("failed to write tag summary", "op", "report", "error", err)
			}
		}
	}

	return out
}

// Tags returns the tag names of records in order.
func Tags(records []models.ElementRecord) []string {
	tags := make([]string, len(records))
	for i, r := range records {
		tags[i] = r.Tag
	}
	return tags
}

func (s *Session) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s *Session) waiter() *Waiter {
	if s.Waiter != nil {
		return s.Waiter
	}
	return &Waiter{Strategy: StrategyEvent, PollInterval: DefaultPollInterval, Logger: s.Logger}
}

func (s *Session) injector() *Injector {
	if s.Injector != nil {
		return s.Injector
	}
	return NewInjector()
}

func (s *Session) extractor() *Extractor {
	if s.Extractor != nil {
		return s.Extractor
	}
	return NewExtractor()
}
