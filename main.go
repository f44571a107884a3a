package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jobs-scraper/config"
	"jobs-scraper/utils"

	"github.com/spf13/cobra"
)

type flags struct {
	configPath string
	backend    string
	keyword    string
	location   string
	maxPages   int
	workers    int
	out        string
	postgres   bool
	chart      bool
	headful    bool
	verbose    bool
}

var cliFlags flags

var rootCmd = &cobra.Command{
	Use:   "jobs-scraper",
	Short: "jobs-scraper crawls job listings and exports them to JSON, CSV and XLSX.",
	Args:  cobra.NoArgs,

	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(cliFlags.verbose)

		cfg, err := config.Load(cliFlags.configPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, &cfg, cliFlags)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		be, err := newBackend(cfg)
		if err != nil {
			return fmt.Errorf("could not start %s backend: %w", cfg.Backend, err)
		}
		defer be.Close()

		out := run(ctx, cfg, be, cmd.OutOrStdout())
		if code := out.ExitCode(); code != 0 {
			return fmt.Errorf("no listings and no artifacts produced (reason %s)", out.Result.Reason)
		}
		return nil
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&cliFlags.configPath, "config", "c", "jobs.json5", "config file, <name>.local.json5 is merged over it")
	f.StringVar(&cliFlags.backend, "backend", "", "fetch backend: browser, api or service")
	f.StringVarP(&cliFlags.keyword, "keyword", "k", "", "search keyword")
	f.StringVarP(&cliFlags.location, "location", "l", "", "search location")
	f.IntVar(&cliFlags.maxPages, "max-pages", 0, "maximum number of result pages")
	f.IntVarP(&cliFlags.workers, "workers", "w", 0, "concurrent detail fetches")
	f.StringVarP(&cliFlags.out, "out", "o", "", "output directory")
	f.BoolVar(&cliFlags.postgres, "postgres", false, "also store listings in PostgreSQL")
	f.BoolVar(&cliFlags.chart, "chart", false, "render an HTML chart of the results")
	f.BoolVar(&cliFlags.headful, "headful", false, "show the browser window")
	f.BoolVarP(&cliFlags.verbose, "verbose", "v", false, "debug logging")
}

// applyFlags overrides config values with the flags given on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f flags) {
	changed := cmd.Flags().Changed

	if changed("backend") {
		cfg.Backend = f.backend
	}
	if changed("keyword") {
		cfg.Keyword = f.keyword
	}
	if changed("location") {
		cfg.Location = f.location
	}
	if changed("max-pages") {
		cfg.MaxPages = f.maxPages
	}
	if changed("workers") {
		cfg.MaxWorkers = f.workers
	}
	if changed("out") {
		cfg.Output.Dir = f.out
	}
	if changed("postgres") {
		cfg.Database.Enabled = f.postgres
	}
	if changed("chart") {
		cfg.Output.Chart = f.chart
	}
	if changed("headful") {
		cfg.Browser.Headless = !f.headful
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
