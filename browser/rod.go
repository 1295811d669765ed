package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/domprobe/config"
	"github.com/use-agent/domprobe/models"
	"github.com/ysmood/gson"
)

// RodDriver manages one go-rod browser and a reusable page pool.
// It is safe for concurrent use.
type RodDriver struct {
	browser     *rod.Browser
	pagePool    rod.Pool[rod.Page]
	cfg         config.BrowserConfig
	activePages atomic.Int32

	healthMu sync.Mutex
	health   map[*rod.Page]*pageHealth

	// attached is true when we connected to a browser we did not launch;
	// Close then leaves it running.
	attached bool
}

// NewRodDriver launches a headless browser (or attaches to cfg.CDPURL) and
// initialises the page pool.
func NewRodDriver(cfg config.BrowserConfig) (*RodDriver, error) {
	controlURL := cfg.CDPURL
	attached := controlURL != ""

	if !attached {
		l := launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox)

		if cfg.BrowserBin != "" {
			l = l.Bin(cfg.BrowserBin)
		}
		if cfg.Proxy != "" {
			l = l.Proxy(cfg.Proxy)
		}

		l.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
		l.Delete(flags.Flag("enable-automation"))
		l.Set(flags.Flag("disable-features"), "AudioServiceOutOfProcess,TranslateUI")
		l.Set(flags.Flag("disable-popup-blocking"))
		l.Set(flags.Flag("disable-renderer-backgrounding"))
		l.Set(flags.Flag("disable-background-timer-throttling"))
		l.Set(flags.Flag("disable-backgrounding-occluded-windows"))
		l.Set(flags.Flag("disable-component-update"))
		l.Set(flags.Flag("disable-default-apps"))
		l.Set(flags.Flag("disable-dev-shm-usage"))
		l.Set(flags.Flag("disable-extensions"))
		l.Set(flags.Flag("no-first-run"))

		u, err := l.Launch()
		if err != nil {
			return nil, models.NewProbeError(
				models.ErrCodeBrowserCrash,
				"failed to launch browser",
				err,
			)
		}
		controlURL = u
		slog.Info("browser launched", "driver", "rod", "controlURL", controlURL)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, models.NewProbeError(
			models.ErrCodeBrowserCrash,
			"failed to connect to browser",
			err,
		)
	}

	pool := rod.NewPagePool(cfg.MaxPages)
	slog.Info("page pool created", "driver", "rod", "maxPages", cfg.MaxPages, "attached", attached)

	return &RodDriver{
		browser:  b,
		pagePool: pool,
		cfg:      cfg,
		health:   make(map[*rod.Page]*pageHealth),
		attached: attached,
	}, nil
}

func (d *RodDriver) Name() string { return "rod" }

// NewPage borrows a tab from the pool and prepares it for one session.
//
// Stealth and the hijack router are installed before the caller navigates,
// because both only affect navigations that start after they exist. The
// release func uninstalls them, parks the tab on about:blank and returns it
// to the pool, or closes it once its health says it should be retired.
func (d *RodDriver) NewPage(ctx context.Context, opts PageOptions) (Page, func(), error) {
	d.activePages.Add(1)

	page, err := d.acquire(ctx)
	if err != nil {
		d.activePages.Add(-1)
		return nil, nil, err
	}

	d.healthMu.Lock()
	if _, ok := d.health[page]; !ok {
		d.health[page] = newPageHealth(time.Now())
	}
	d.healthMu.Unlock()

	var removeStealth func() error
	if opts.Stealth || d.cfg.Stealth {
		remove, evalErr := page.EvalOnNewDocument(stealth.JS)
		if evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth", "error", evalErr)
		} else {
			removeStealth = remove
		}
	}

	router := setupHijack(page, d.cfg.BlockedResourceTypes, d.cfg.BlockAds)
	rp := &RodPage{page: page}

	release := func() {
		if router != nil {
			_ = router.Stop()
		}
		if removeStealth != nil {
			_ = removeStealth()
		}
		d.recycle(page, rp.failed.Load())
		d.activePages.Add(-1)
	}

	return rp, release, nil
}

// acquire takes a slot from the pool, creating a tab when the slot is empty.
// It gives up when ctx ends, and a failed creation hands the slot back.
func (d *RodDriver) acquire(ctx context.Context) (*rod.Page, error) {
	var page *rod.Page
	select {
	case <-ctx.Done():
		return nil, models.NewProbeError(
			models.ErrCodeTimeout,
			"no free page before the session deadline",
			ctx.Err(),
		)
	case page = <-d.pagePool:
	}
	if page != nil {
		return page, nil
	}

	page, err := d.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		d.pagePool.Put(nil)
		return nil, models.NewProbeError(
			models.ErrCodeBrowserCrash,
			"failed to create page",
			err,
		)
	}
	return page, nil
}

// recycle returns a tab to the pool, or closes it and frees its slot when
// its health says it should be retired.
func (d *RodDriver) recycle(page *rod.Page, failed bool) {
	now := time.Now()

	d.healthMu.Lock()
	h, ok := d.health[page]
	if !ok {
		h = newPageHealth(now)
		d.health[page] = h
	}
	d.healthMu.Unlock()
	h.record(failed)

	// Uses the original page reference (no request context) so cleanup
	// still works after the session context has expired.
	navErr := page.Navigate("about:blank")
	if navErr != nil {
		slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
	}

	if navErr == nil && !h.shouldRetire(now) {
		d.pagePool.Put(page)
		return
	}

	slog.Debug("retiring page", "driver", "rod")
	d.healthMu.Lock()
	delete(d.health, page)
	d.healthMu.Unlock()
	_ = page.Close()
	d.pagePool.Put(nil)
}

// Stats returns a snapshot of the pool's current state.
func (d *RodDriver) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    d.cfg.MaxPages,
		ActivePages: int(d.activePages.Load()),
	}
}

// Close drains the page pool and shuts the browser down. An attached
// browser is left running.
func (d *RodDriver) Close() {
	slog.Info("rod driver shutting down: draining page pool")
	d.pagePool.Cleanup(func(p *rod.Page) {
		_ = p.Close()
	})
	if d.attached {
		slog.Info("rod driver detached, remote browser left running")
		return
	}
	d.browser.MustClose()
	slog.Info("rod driver shutdown complete")
}

// RodPage implements Page and LoadNotifier on a go-rod tab.
type RodPage struct {
	page *rod.Page

	// failed is set when navigation or a script evaluation errored.
	failed atomic.Bool
}

// NewRodPage wraps an existing rod page, e.g. one created by a caller that
// manages its own browser.
func NewRodPage(page *rod.Page) *RodPage {
	return &RodPage{page: page}
}

// Load starts navigation. It returns once the server has answered with the
// response headers; the document may still be loading.
func (p *RodPage) Load(ctx context.Context, url string) error {
	if err := p.page.Context(ctx).Navigate(url); err != nil {
		p.failed.Store(true)
		return fmt.Errorf("rod: navigate %s: %w", url, err)
	}
	return nil
}

// IsLoading reports whether the document has not reached readyState "complete".
func (p *RodPage) IsLoading(ctx context.Context) (bool, error) {
	res, err := p.page.Context(ctx).Eval(`() => document.readyState !== 'complete'`)
	if err != nil {
		return false, fmt.Errorf("rod: read readyState: %w", err)
	}
	return res.Value.Bool(), nil
}

// WaitLoad blocks until the window load event has fired.
func (p *RodPage) WaitLoad(ctx context.Context) error {
	if err := p.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("rod: wait load: %w", err)
	}
	return nil
}

func (p *RodPage) ExecuteScript(ctx context.Context, source string) (gson.JSON, error) {
	res, err := p.page.Context(ctx).Eval(source)
	if err != nil {
		p.failed.Store(true)
		return gson.New(nil), fmt.Errorf("rod: eval: %w", err)
	}
	return res.Value, nil
}
