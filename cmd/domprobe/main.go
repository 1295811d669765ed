// Command domprobe loads web pages in a headless browser and reports every
// DOM element once the page has settled.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/use-agent/domprobe/api/handler"
	"github.com/use-agent/domprobe/browser"
	"github.com/use-agent/domprobe/config"
)

// app carries state shared by the subcommands.
type app struct {
	cfg *config.Config

	// newDriver starts the browser backend.
	newDriver func(config.BrowserConfig) (browser.Driver, error)

	// logOut receives log records. Reports go to the command's stdout.
	logOut io.Writer

	configPath string
	logLevel   string
}

func main() {
	a := &app{newDriver: browser.New, logOut: os.Stderr}
	if err := newRootCmd(a).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "domprobe",
		Short:         "Enumerate the DOM of a rendered web page",
		Version:       handler.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(a.configPath)
			if err != nil {
				return err
			}
			if a.logLevel != "" {
				cfg.Log.Level = a.logLevel
			}
			a.cfg = cfg
			initLogger(cfg.Log, a.logOut)
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", os.Getenv("DOMPROBE_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(a), newStaticCmd(a), newServeCmd(a))
	return root
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig, w io.Writer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}

	slog.SetDefault(slog.New(h))
}
