// Package browser adapts headless browser backends to the three operations
// the pipeline needs: load a URL, report whether the page is still loading,
// and evaluate a script in the page context.
package browser

import (
	"context"
	"fmt"

	"github.com/use-agent/domprobe/config"
	"github.com/use-agent/domprobe/models"
	"github.com/ysmood/gson"
)

// Page is one browser tab.
//
// ExecuteScript takes the source of a JavaScript function expression with no
// parameters, e.g. "() => document.title". The function is called in the
// page's global context; a returned promise is awaited and the result is
// returned by value.
type Page interface {
	Load(ctx context.Context, url string) error
	IsLoading(ctx context.Context) (bool, error)
	ExecuteScript(ctx context.Context, source string) (gson.JSON, error)
}

// LoadNotifier is implemented by pages that can signal navigation completion
// directly, so waiters do not have to poll IsLoading.
type LoadNotifier interface {
	WaitLoad(ctx context.Context) error
}

// PageOptions tunes a page for one session.
type PageOptions struct {
	// Stealth masks navigator.webdriver and similar automation tells.
	Stealth bool
}

// Driver hands out pages from one browser process.
type Driver interface {
	Name() string

	// NewPage returns a ready page and a release func that must be called
	// exactly once when the session is done with it.
	NewPage(ctx context.Context, opts PageOptions) (Page, func(), error)

	Stats() models.PoolStats
	Close()
}

// New creates the driver selected by cfg.Driver.
func New(cfg config.BrowserConfig) (Driver, error) {
	switch cfg.Driver {
	case "", "rod":
		return NewRodDriver(cfg)
	case "cdp":
		return NewCDPDriver(cfg)
	default:
		return nil, models.NewProbeError(
			models.ErrCodeInvalidInput,
			fmt.Sprintf("unknown browser driver %q", cfg.Driver),
			nil,
		)
	}
}
