package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/domprobe/models"
	"github.com/use-agent/domprobe/pipeline"
	"github.com/use-agent/domprobe/report"
	"github.com/use-agent/domprobe/simhash"
	"github.com/use-agent/domprobe/snapshot"
)

func newStaticCmd(a *app) *cobra.Command {
	var (
		file       string
		selector   string
		tagSummary bool
	)

	cmd := &cobra.Command{
		Use:   "static [url]",
		Short: "Print the DOM elements of raw HTML without running scripts",
		Long: `Fetch a page over plain HTTP (or read --file) and print the same element
report as "run", built from the markup alone. Comparing both outputs shows
what the page's scripts add.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			target := cfg.Pipeline.TargetURL
			if len(args) == 1 {
				target = args[0]
			}

			var rawHTML string
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return models.NewProbeError(models.ErrCodeInvalidInput, "cannot read HTML file", err)
				}
				rawHTML = string(data)
			} else {
				fetcher := snapshot.NewFetcher(cfg.Browser.Proxy, cfg.Static.Timeout)
				doc, err := fetcher.Fetch(cmd.Context(), target)
				if err != nil {
					return models.NewProbeError(models.ErrCodeStaticFetch, "static fetch failed", err)
				}
				slog.Info("page fetched", "url", doc.FinalURL, "status", doc.StatusCode, "title", doc.Title)
				rawHTML = doc.HTML
			}

			records, err := snapshot.Records(rawHTML, selector)
			if err != nil {
				return models.NewProbeError(models.ErrCodeInvalidInput, "invalid selector", err)
			}
			slog.Debug("static elements", "total", len(records),
				"fingerprint", simhash.Hex(simhash.FingerprintTags(pipeline.Tags(records))))

			w := cmd.OutOrStdout()
			if err := report.Write(w, records); err != nil {
				return err
			}
			if tagSummary || cfg.Pipeline.TagSummary {
				return report.WriteTagSummary(w, records, cfg.Pipeline.TagSummaryLimit)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "read HTML from a local file instead of fetching")
	cmd.Flags().StringVar(&selector, "selector", snapshot.UniversalSelector, "CSS selector limiting the listed elements")
	cmd.Flags().BoolVar(&tagSummary, "tag-summary", false, "append the most common tags")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if file != "" && len(args) == 1 {
			return errors.New("give either a URL or --file, not both")
		}
		return nil
	}
	return cmd
}
