package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/dartsatlas-scraper/internal/scraper"
)

// errScrapeFailed signals a scrape that returned success=false.
var errScrapeFailed = errors.New("scrape failed")

type scrapeFlags struct {
	search         scraper.SearchParams
	allPages       bool
	maxPages       int
	page           int
	includeEntries bool
	save           bool
	filename       string
	timeout        time.Duration
}

// newScrapeCmd creates the 'scrape' subcommand, which runs one scrape and
// prints the result envelope as JSON.
func newScrapeCmd() *cobra.Command {
	var f scrapeFlags
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Runs one scrape and prints the result as JSON",
		Long: `Fetches the tournament search listing (optionally filtered), extracts
tournament records and prints the result envelope to stdout. Retries up to
three times on failure. Exits non-zero when the scrape does not succeed.`,
		RunE: withApp(func(cmd *cobra.Command, app App) error {
			return runScrape(cmd, app, f)
		}),
	}

	flags := cmd.Flags()
	flags.StringVar(&f.search.Name, "name", "", "filter by tournament name")
	flags.StringVar(&f.search.Location, "location", "", "filter by location")
	flags.StringVar(&f.search.Radius, "radius", "", "search radius around the location, passed through as-is")
	flags.StringVar(&f.search.Date, "date", "", "filter by date (takes precedence over --start-date)")
	flags.StringVar(&f.search.StartDate, "start-date", "", "filter by start date")
	flags.StringVar(&f.search.Structure, "structure", "", "filter by tournament structure")
	flags.BoolVar(&f.allPages, "all", false, "scrape every result page up to --max-pages")
	flags.IntVar(&f.maxPages, "max-pages", 0, "page budget for --all (0 uses the configured default)")
	flags.IntVar(&f.page, "page", 1, "result page to scrape")
	flags.BoolVar(&f.includeEntries, "entries", false, "look up the entries count of each tournament")
	flags.BoolVar(&f.save, "save", false, "persist the results to the configured storage")
	flags.StringVar(&f.filename, "filename", "", "result file name (defaults to a timestamped name)")
	flags.DurationVar(&f.timeout, "timeout", 0, "overall scrape timeout (0 uses the configured default)")
	return cmd
}

func runScrape(cmd *cobra.Command, app App, f scrapeFlags) error {
	result, err := app.ScrapeWithTimeout(cmd.Context(), f.options(), f.timeout)
	if err != nil {
		return fmt.Errorf("scrape: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if !result.Success {
		return fmt.Errorf("%w: %s", errScrapeFailed, result.Error)
	}
	return nil
}

func (f scrapeFlags) options() scraper.Options {
	opts := scraper.Options{
		ScrapeAllPages: f.allPages,
		MaxPages:       f.maxPages,
		Page:           f.page,
		IncludeEntries: f.includeEntries,
		SaveResults:    f.save,
		Filename:       f.filename,
	}
	if f.search != (scraper.SearchParams{}) {
		params := f.search
		opts.SearchParams = &params
	}
	return opts
}
