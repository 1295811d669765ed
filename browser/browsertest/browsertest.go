// Package browsertest provides in-memory browser.Page and browser.Driver
// implementations for tests.
package browsertest

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/models"
	"github.com/ysmood/gson"
)

// Page is a scripted browser.Page.
//
// After each Load, IsLoading reports true LoadingPolls times and then false.
// ExecuteScript delegates to Eval, which defaults to returning null.
type Page struct {
	LoadErr      error
	LoadingPolls int

	// LoadingErr is returned by the first LoadingErrs IsLoading calls after
	// a Load, or by every call when LoadingErrs is zero.
	LoadingErr  error
	LoadingErrs int

	Eval func(source string) (gson.JSON, error)

	mu       sync.Mutex
	polls    int
	ready    int
	loaded   []string
	executed []string
}

func (p *Page) Load(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaded = append(p.loaded, url)
	p.polls = 0
	p.ready = 0
	return p.LoadErr
}

func (p *Page) IsLoading(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.polls++
	if p.LoadingErr != nil && (p.LoadingErrs == 0 || p.polls <= p.LoadingErrs) {
		return false, p.LoadingErr
	}
	p.ready++
	return p.ready <= p.LoadingPolls, nil
}

func (p *Page) ExecuteScript(ctx context.Context, source string) (gson.JSON, error) {
	if err := ctx.Err(); err != nil {
		return gson.New(nil), err
	}
	p.mu.Lock()
	p.executed = append(p.executed, source)
	eval := p.Eval
	p.mu.Unlock()

	if eval == nil {
		return gson.New(nil), nil
	}
	return eval(source)
}

// Loaded returns the URLs passed to Load.
func (p *Page) Loaded() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loaded...)
}

// Executed returns the script sources passed to ExecuteScript, in order.
func (p *Page) Executed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.executed...)
}

// Polls returns the number of IsLoading calls since the last Load.
func (p *Page) Polls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.polls
}

// NotifyingPage adds browser.LoadNotifier to Page. WaitLoad returns WaitErr
// and marks the page idle.
type NotifyingPage struct {
	*Page
	WaitErr error

	mu     sync.Mutex
	waited int
}

func (p *NotifyingPage) WaitLoad(ctx context.Context) error {
	p.mu.Lock()
	p.waited++
	p.mu.Unlock()

	if p.WaitErr != nil {
		return p.WaitErr
	}
	p.Page.mu.Lock()
	p.Page.ready = p.Page.LoadingPolls
	p.Page.mu.Unlock()
	return ctx.Err()
}

// Waited returns the number of WaitLoad calls.
func (p *NotifyingPage) Waited() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waited
}

// Strings builds the JSON value of a script that returned lines.
func Strings(lines ...string) gson.JSON {
	if lines == nil {
		lines = []string{}
	}
	b, _ := json.Marshal(lines)
	return gson.NewFrom(string(b))
}

// Driver hands out pages built by NewPageFunc.
type Driver struct {
	NewPageFunc func() browser.Page
	Err         error
	MaxPages    int

	mu       sync.Mutex
	active   int
	released int
	opts     []browser.PageOptions
}

func (d *Driver) Name() string { return "fake" }

func (d *Driver) NewPage(ctx context.Context, opts browser.PageOptions) (browser.Page, func(), error) {
	if d.Err != nil {
		return nil, nil, d.Err
	}
	var page browser.Page = &Page{}
	if d.NewPageFunc != nil {
		page = d.NewPageFunc()
	}

	d.mu.Lock()
	d.active++
	d.opts = append(d.opts, opts)
	d.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			d.mu.Lock()
			d.active--
			d.released++
			d.mu.Unlock()
		})
	}
	return page, release, nil
}

func (d *Driver) Stats() models.PoolStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.PoolStats{MaxPages: d.MaxPages, ActivePages: d.active}
}

func (d *Driver) Close() {}

// Released returns the number of pages given back.
func (d *Driver) Released() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}

// Options returns the PageOptions of every NewPage call.
func (d *Driver) Options() []browser.PageOptions {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.PageOptions(nil), d.opts...)
}
