package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/use-agent/domprobe/config"
	"github.com/use-agent/domprobe/models"
	"github.com/ysmood/gson"
)

// CDPDriver drives Chrome over the DevTools protocol with chromedp. It
// attaches to cfg.CDPURL when set and launches a local browser otherwise.
type CDPDriver struct {
	cfg config.BrowserConfig

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	slots       chan struct{}
	activePages atomic.Int32
}

// NewCDPDriver starts (or attaches to) the browser and verifies the
// connection with an empty run.
func NewCDPDriver(cfg config.BrowserConfig) (*CDPDriver, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)

	if cfg.CDPURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.CDPURL, chromedp.NoModifyURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.Headless),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if cfg.NoSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		if cfg.BrowserBin != "" {
			opts = append(opts, chromedp.ExecPath(cfg.BrowserBin))
		}
		if cfg.Proxy != "" {
			opts = append(opts, chromedp.ProxyServer(cfg.Proxy))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, models.NewProbeError(
			models.ErrCodeBrowserCrash,
			"failed to start CDP browser",
			err,
		)
	}
	slog.Info("browser ready", "driver", "cdp", "remote", cfg.CDPURL != "", "maxPages", cfg.MaxPages)

	maxPages := cfg.MaxPages
	if maxPages < 1 {
		maxPages = 1
	}

	return &CDPDriver{
		cfg:           cfg,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		slots:         make(chan struct{}, maxPages),
	}, nil
}

func (d *CDPDriver) Name() string { return "cdp" }

// NewPage opens a fresh tab. At most MaxPages tabs are open at once; the
// call blocks for a free slot until ctx is done.
func (d *CDPDriver) NewPage(ctx context.Context, opts PageOptions) (Page, func(), error) {
	select {
	case d.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, models.NewProbeError(
			models.ErrCodeBrowserCrash,
			"timed out waiting for a free tab",
			ctx.Err(),
		)
	}
	d.activePages.Add(1)

	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		d.activePages.Add(-1)
		<-d.slots
		return nil, nil, models.NewProbeError(
			models.ErrCodeBrowserCrash,
			"failed to open tab",
			err,
		)
	}

	if opts.Stealth || d.cfg.Stealth {
		slog.Debug("stealth evasions are only implemented by the rod driver")
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			tabCancel()
			d.activePages.Add(-1)
			<-d.slots
		})
	}

	return &CDPPage{tabCtx: tabCtx}, release, nil
}

func (d *CDPDriver) Stats() models.PoolStats {
	return models.PoolStats{
		MaxPages:    cap(d.slots),
		ActivePages: int(d.activePages.Load()),
	}
}

// Close cancels the browser context. A launched browser is terminated; a
// remote one is disconnected.
func (d *CDPDriver) Close() {
	slog.Info("cdp driver shutting down")
	d.browserCancel()
	d.allocCancel()
}

// CDPPage implements Page and LoadNotifier on a chromedp tab.
//
// chromedp.Navigate blocks until the load event, so Load runs it on a
// goroutine and the loading flag stays up until it returns.
type CDPPage struct {
	tabCtx context.Context

	mu      sync.Mutex
	loading bool
	done    chan struct{}
	navErr  error
}

// Load starts navigation in the background and returns immediately.
func (p *CDPPage) Load(ctx context.Context, url string) error {
	done := make(chan struct{})

	p.mu.Lock()
	p.loading = true
	p.done = done
	p.navErr = nil
	p.mu.Unlock()

	go func() {
		err := p.run(ctx, chromedp.Navigate(url))

		p.mu.Lock()
		p.loading = false
		if err != nil {
			p.navErr = models.NewProbeError(
				models.ErrCodeLoadFailed,
				fmt.Sprintf("navigation to %s failed", url),
				err,
			)
		}
		p.mu.Unlock()
		close(done)
	}()
	return nil
}

// IsLoading reports the loading flag. A failed navigation is returned as a
// LOAD_FAILED error once it has settled.
func (p *CDPPage) IsLoading(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loading {
		return true, nil
	}
	return false, p.navErr
}

// WaitLoad blocks until the navigation started by Load has finished.
func (p *CDPPage) WaitLoad(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.navErr
}

func (p *CDPPage) ExecuteScript(ctx context.Context, source string) (gson.JSON, error) {
	var obj *runtime.RemoteObject
	err := p.run(ctx, chromedp.Evaluate("("+source+")()", &obj, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithReturnByValue(true).WithAwaitPromise(true)
	}))
	if err != nil {
		return gson.New(nil), fmt.Errorf("cdp: evaluate: %w", err)
	}
	if obj == nil || len(obj.Value) == 0 {
		return gson.New(nil), nil
	}
	return gson.NewFrom(string(obj.Value)), nil
}

// run executes actions on the tab while honouring ctx. The run context is
// derived from the tab context, so cancelling it aborts the actions without
// closing the tab.
func (p *CDPPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	return err
}
