// Package cli implements the venuescout command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"venuescout/internal/ai"
	"venuescout/internal/catalog"
	"venuescout/internal/config"
	"venuescout/internal/discovery"
	"venuescout/internal/extract"
	"venuescout/internal/fetch"
	"venuescout/internal/logger"
	"venuescout/internal/patterns"
	"venuescout/internal/pipeline"
	"venuescout/internal/server"
	"venuescout/internal/store"
	"venuescout/internal/validate"
	"venuescout/internal/venue"
)

var (
	flagVerbose   bool
	flagSave      bool
	flagVenueID   int
	flagDryRun    bool
	flagThreshold float64
)

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "venuescout",
		Short: "Discover, scrape and validate live music venue calendars",
		Long: `venuescout scrapes configured venue calendar pages, validates the
scraped listings against the Spotify catalog, and persists the results.
Venue selectors and date grammars are discovered once per venue with AI
assistance and then reused on every run.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagVerbose {
				logger.SetDefault(logger.New(logger.LevelDebug, os.Stderr))
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newPopulateCmd())
	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one scrape-validate-persist cycle over all active venues",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			if err := cfg.RequireOpenAI(); err != nil {
				return err
			}
			if err := cfg.RequireSpotify(); err != nil {
				return err
			}

			ctx := cmd.Context()

			st, err := store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer st.Close()

			if err := st.EnsureSchema(ctx); err != nil {
				return err
			}

			completer, err := newCompleter(cfg)
			if err != nil {
				return err
			}

			cat, err := catalog.NewClient(cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyRefreshToken)
			if err != nil {
				return fmt.Errorf("creating catalog client: %w", err)
			}

			fetcher := fetch.New()
			defer fetcher.Close()

			p := pipeline.New(
				st,
				extract.New(fetcher),
				validate.New(cat, completer, validate.Options{}),
			)

			stats, err := p.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("run complete: %d venues, %d raw events, %d validated, %d failures (%.1fs)\n",
				stats.Venues, stats.RawEvents, stats.Validated, stats.Failures, stats.Duration.Seconds())
			return nil
		},
	}
}

func newDiscoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover <url>",
		Short: "Derive selectors and a date grammar for a venue calendar page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.RequireOpenAI(); err != nil {
				return err
			}

			ctx := cmd.Context()
			pageURL := venue.NormalizeURL(args[0])

			completer, err := newCompleter(cfg)
			if err != nil {
				return err
			}

			fetcher := fetch.New()
			defer fetcher.Close()

			html, ok := fetcher.Fetch(ctx, pageURL)
			if !ok {
				return fmt.Errorf("fetching %s failed", pageURL)
			}

			var opts []discovery.Option
			if flagThreshold > 0 {
				opts = append(opts, discovery.WithMinSuccessRate(flagThreshold))
			}
			result, err := discovery.New(completer, opts...).Discover(ctx, html, pageURL)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
			fmt.Println(string(out))

			if flagSave {
				path, err := discovery.SaveCandidate(cfg.DataDir, result)
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stderr, "candidate saved to %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagSave, "save", false, "Save the candidate config for review")
	cmd.Flags().Float64Var(&flagThreshold, "min-success-rate", 0, "Override the date parse success threshold")
	return cmd
}

// populateFile is the JSON shape accepted by the populate command.
type populateFile struct {
	Name   string       `json:"name"`
	City   string       `json:"city"`
	URL    string       `json:"url"`
	Config venue.Config `json:"scraping_config"`
}

func newPopulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "populate <config.json>",
		Short: "Upsert a reviewed venue configuration into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading config file: %w", err)
			}
			var pf populateFile
			if err := json.Unmarshal(data, &pf); err != nil {
				return fmt.Errorf("decoding config file: %w", err)
			}
			if pf.Name == "" || pf.URL == "" {
				return fmt.Errorf("config file must set name and url")
			}
			pf.URL = venue.NormalizeURL(pf.URL)
			if pf.Config.BaseURL == "" {
				pf.Config.BaseURL = pf.URL
			}
			if err := pf.Config.Validate(); err != nil {
				return fmt.Errorf("invalid scraping config: %w", err)
			}

			ctx := cmd.Context()
			st, err := store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer st.Close()

			if err := st.EnsureSchema(ctx); err != nil {
				return err
			}

			venueID, err := st.SaveVenue(ctx, pf.Name, pf.City, pf.URL, pf.Config)
			if err != nil {
				return err
			}
			fmt.Printf("venue %q saved with id %d\n", pf.Name, venueID)
			return nil
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Learn a venue's pre-filter config from its event history",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.RequireDatabase(); err != nil {
				return err
			}
			if err := cfg.RequireOpenAI(); err != nil {
				return err
			}
			if flagVenueID <= 0 {
				return fmt.Errorf("--venue-id is required")
			}

			ctx := cmd.Context()
			st, err := store.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer st.Close()

			counts, err := st.HistoricalNameCounts(ctx, flagVenueID)
			if err != nil {
				return err
			}

			completer, err := newCompleter(cfg)
			if err != nil {
				return err
			}

			result, err := patterns.Analyze(ctx, completer, flagVenueID, counts)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("encoding result: %w", err)
			}
			fmt.Println(string(out))

			if flagDryRun {
				return nil
			}
			if err := st.SaveValidationConfig(ctx, flagVenueID, result); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "validation config saved for venue %d\n", flagVenueID)
			return nil
		},
	}

	cmd.Flags().IntVar(&flagVenueID, "venue-id", 0, "Venue to analyze (required)")
	cmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "Print the learned config without saving it")
	cmd.MarkFlagRequired("venue-id")
	return cmd
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the venue discovery HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.RequireOpenAI(); err != nil {
				return err
			}

			completer, err := newCompleter(cfg)
			if err != nil {
				return err
			}

			fetcher := fetch.New()
			defer fetcher.Close()

			handler := server.NewHandler(fetcher, discovery.New(completer), cfg.DataDir)
			logger.Info("discovery api listening", logger.Fields{"addr": cfg.ListenAddr})
			server.New(cfg.ListenAddr, handler).Spin()
			return nil
		},
	}
}

func newCompleter(cfg *config.Config) (*ai.Client, error) {
	var opts []ai.Option
	if cfg.OpenAIBaseURL != "" {
		opts = append(opts, ai.WithBaseURL(cfg.OpenAIBaseURL))
	}
	if cfg.OpenAIModel != "" {
		opts = append(opts, ai.WithModel(cfg.OpenAIModel))
	}
	client, err := ai.NewClient(cfg.OpenAIAPIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating reasoning client: %w", err)
	}
	return client, nil
}
