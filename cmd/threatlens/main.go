package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lucid-vigil/threatlens/pkg/api"
	"github.com/lucid-vigil/threatlens/pkg/config"
	"github.com/lucid-vigil/threatlens/pkg/feed"
	"github.com/lucid-vigil/threatlens/pkg/logger"
	"github.com/lucid-vigil/threatlens/pkg/modelstore"
	"github.com/lucid-vigil/threatlens/pkg/orchestrator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "threatlens",
		Short:         "Attack pattern analysis engine for threat intelligence feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newPredictCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newModelsCmd())
	return root
}

// setup loads configuration, initializes logging and builds the
// orchestrator. Every subcommand starts here.
func setup() (*config.Config, *orchestrator.Orchestrator, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Init(cfg.LogLevel)

	orch, err := orchestrator.New(cfg, log.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize analysis engine: %w", err)
	}
	return cfg, orch, nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newAnalyzeCmd() *cobra.Command {
	var (
		input string
		days  int
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the full analysis battery over a CSV attack feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, orch, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			events, err := feed.NewLoader(log.Logger).LoadFile(input)
			if err != nil {
				return fmt.Errorf("failed to load attack feed: %w", err)
			}

			report := orch.Run(ctx, events, days)
			return printJSON(cmd, report)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "path to the attack feed CSV (required)")
	cmd.Flags().IntVarP(&days, "days", "d", 0, "only analyze events from the last N days (0 = all)")
	cmd.MarkFlagRequired("input")
	return cmd
}

func newPredictCmd() *cobra.Command {
	var (
		input  string
		source string
		attack string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Rank probable target countries for an attack profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, orch, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			events, err := feed.NewLoader(log.Logger).LoadFile(input)
			if err != nil {
				return fmt.Errorf("failed to load attack feed: %w", err)
			}

			// Train on the feed, then query the fitted model.
			if report := orch.Run(ctx, events, 0); !report.Prediction.Success {
				return fmt.Errorf("prediction model could not be trained: %s", report.Prediction.Message)
			}

			result := orch.Predict(ctx, source, attack, days)
			return printJSON(cmd, result)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "path to the attack feed CSV (required)")
	cmd.Flags().StringVarP(&source, "source", "s", "", "source country of the hypothetical attack (required)")
	cmd.Flags().StringVarP(&attack, "type", "t", "", "attack type of the hypothetical attack (required)")
	cmd.Flags().IntVarP(&days, "days", "d", 30, "prediction timeframe in days")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("type")
	return cmd
}

func newWatchCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the feed directory and re-analyze whenever a new feed lands",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, orch, err := setup()
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			log.Info().Str("feed_dir", cfg.FeedDir).Msg("Watching feed directory")

			watcher := feed.NewWatcher(cfg.FeedDir, log.Logger)
			err = watcher.Watch(ctx, func(ctx context.Context, path string, events []feed.Event) {
				all, err := loadFeedDir(cfg.FeedDir)
				if err != nil {
					log.Error().Err(err).Msg("Failed to reload feed directory")
					return
				}
				report := orch.Run(ctx, all, days)
				printJSON(cmd, report)
			})
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("feed watcher failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 0, "only analyze events from the last N days (0 = all)")
	return cmd
}

func newServeCmd() *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve analysis over HTTP with periodic re-analysis of the feed directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, orch, err := setup()
			if err != nil {
				return err
			}

			interval, err := time.ParseDuration(cfg.Analysis.RunInterval)
			if err != nil {
				return fmt.Errorf("invalid run_interval %q: %w", cfg.Analysis.RunInterval, err)
			}

			ctx, cancel := signalContext()
			defer cancel()

			log.Info().
				Str("feed_dir", cfg.FeedDir).
				Str("api_port", cfg.APIPort).
				Dur("interval", interval).
				Msg("Threatlens starting")

			// New feed files trigger an immediate re-analysis between ticks.
			watcher := feed.NewWatcher(cfg.FeedDir, log.Logger)
			go func() {
				err := watcher.Watch(ctx, func(ctx context.Context, path string, events []feed.Event) {
					if all, err := loadFeedDir(cfg.FeedDir); err == nil {
						orch.Run(ctx, all, days)
					}
				})
				if err != nil && ctx.Err() == nil {
					log.Error().Err(err).Msg("Feed watcher stopped")
				}
			}()

			go orch.RunPeriodic(ctx, interval, days, func(ctx context.Context) ([]feed.Event, error) {
				return loadFeedDir(cfg.FeedDir)
			})

			if err := api.NewServer(cfg.APIPort, orch, log.Logger).Start(ctx); err != nil {
				return fmt.Errorf("API server failed: %w", err)
			}

			log.Info().Msg("Threatlens stopped")
			return nil
		},
	}

	cmd.Flags().IntVarP(&days, "days", "d", 0, "only analyze events from the last N days (0 = all)")
	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List persisted model artifacts by kind",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, orch, err := setup()
			if err != nil {
				return err
			}

			models, err := orch.Models()
			if err != nil {
				return fmt.Errorf("failed to list models: %w", err)
			}

			kinds := make([]string, 0, len(models))
			for kind := range models {
				kinds = append(kinds, string(kind))
			}
			sort.Strings(kinds)

			for _, kind := range kinds {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", kind)
				for _, name := range models[modelstore.Kind(kind)] {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
				}
			}
			return nil
		},
	}
}

// loadFeedDir loads and concatenates every CSV feed in the directory.
func loadFeedDir(dir string) ([]feed.Event, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	loader := feed.NewLoader(log.Logger)
	var events []feed.Event
	for _, path := range paths {
		loaded, err := loader.LoadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping unreadable feed file")
			continue
		}
		events = append(events, loaded...)
	}
	return events, nil
}

func printJSON(cmd *cobra.Command, payload interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}
