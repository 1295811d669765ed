package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/pipeline"
	"github.com/use-agent/domprobe/simhash"
)

type runFlags struct {
	driver       string
	cdpURL       string
	wait         string
	pollInterval time.Duration
	loadTimeout  time.Duration
	noInject     bool
	tagSummary   bool
	stealth      bool
	noSandbox    bool
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run [url]",
		Short: "Load a page, apply the vertical-only CSS and print its DOM elements",
		Long: `Load a page in a headless browser, wait until it stops loading, inject
a stylesheet that disables horizontal scrolling, then print every element in
document order. Logs go to stderr; the report goes to stdout.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			flags := cmd.Flags()
			if len(args) == 1 {
				cfg.Pipeline.TargetURL = args[0]
			}
			if flags.Changed("driver") {
				cfg.Browser.Driver = f.driver
			}
			if flags.Changed("cdp-url") {
				cfg.Browser.CDPURL = f.cdpURL
			}
			if flags.Changed("wait") {
				cfg.Pipeline.WaitStrategy = f.wait
			}
			if flags.Changed("poll-interval") {
				cfg.Pipeline.PollInterval = f.pollInterval
			}
			if flags.Changed("load-timeout") {
				cfg.Pipeline.LoadTimeout = f.loadTimeout
			}
			if flags.Changed("no-inject") {
				cfg.Pipeline.Inject = !f.noInject
			}
			if flags.Changed("tag-summary") {
				cfg.Pipeline.TagSummary = f.tagSummary
			}
			if flags.Changed("stealth") {
				cfg.Browser.Stealth = f.stealth
			}
			if flags.Changed("no-sandbox") {
				cfg.Browser.NoSandbox = f.noSandbox
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			driver, err := a.newDriver(cfg.Browser)
			if err != nil {
				return err
			}
			defer driver.Close()

			page, release, err := driver.NewPage(ctx, browser.PageOptions{Stealth: cfg.Browser.Stealth})
			if err != nil {
				return err
			}
			defer release()

			log := slog.Default()
			session := &pipeline.Session{
				Page:   page,
				URL:    cfg.Pipeline.TargetURL,
				Waiter: pipeline.NewWaiter(cfg.Pipeline, log),
				Out:    cmd.OutOrStdout(),
				Logger: log,
				Options: pipeline.Options{
					SkipInject:      !cfg.Pipeline.Inject,
					TagSummary:      cfg.Pipeline.TagSummary,
					TagSummaryLimit: cfg.Pipeline.TagSummaryLimit,
				},
			}
			out := session.Run(ctx)
			if err := out.Err(); err != nil {
				return err
			}

			log.Debug("session finished",
				"driver", driver.Name(),
				"total", len(out.Records),
				"fingerprint", simhash.Hex(out.Fingerprint),
				"totalMs", out.Timing.TotalMs,
			)
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.driver, "driver", "rod", "browser driver: rod or cdp")
	fl.StringVar(&f.cdpURL, "cdp-url", "", "attach to a running browser at this DevTools URL")
	fl.StringVar(&f.wait, "wait", pipeline.StrategyEvent, "load wait strategy: event or poll")
	fl.DurationVar(&f.pollInterval, "poll-interval", pipeline.DefaultPollInterval, "loading-flag poll period")
	fl.DurationVar(&f.loadTimeout, "load-timeout", 30*time.Second, "give up waiting for the page after this long (0 waits forever)")
	fl.BoolVar(&f.noInject, "no-inject", false, "skip the vertical-only CSS override")
	fl.BoolVar(&f.tagSummary, "tag-summary", false, "append the most common tags")
	fl.BoolVar(&f.stealth, "stealth", false, "mask automation fingerprints (rod driver)")
	fl.BoolVar(&f.noSandbox, "no-sandbox", false, "disable the Chrome sandbox")
	return cmd
}
