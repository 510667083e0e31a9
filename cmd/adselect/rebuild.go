package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aevon-lab/adselect/internal/aggregation"
	"github.com/aevon-lab/adselect/internal/core/catalog"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/spf13/cobra"
)

func newRebuildCmd() *cobra.Command {
	var bannerID string
	var full bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Build one snapshot from storage and print it as JSON",
		Long: "Runs the same rebuild the server performs, without serving. Prints a summary by default, " +
			"every banner with --full, or a single banner with --banner.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Resolved.RebuildTimeout)
			defer cancel()

			repo, closeRepo, err := openRepository(cfg.Database)
			if err != nil {
				return err
			}
			defer closeRepo()

			if _, err := catalog.Seed(ctx, repo, cfg.Resolved.Seeds); err != nil {
				return err
			}

			snapOpts := stats.Options{BestKeywordsLimit: cfg.Stats.BestKeywordsLimit}
			aggregator := aggregation.NewAggregator(repo, aggregation.RebuildParameter{
				Horizon:     cfg.Resolved.Horizon,
				BatchSize:   cfg.Stats.BatchSize,
				WorkerCount: cfg.Stats.WorkerCount,
				Snapshot:    snapOpts,
			})
			snap, err := aggregator.Rebuild(ctx, time.Now().UTC())
			if err != nil {
				return fmt.Errorf("rebuild: %w", err)
			}
			stats.NewCache(snapOpts).Publish(snap)

			var out interface{}
			switch {
			case bannerID != "":
				bd, ok := snap.DumpBanner(bannerID)
				if !ok {
					return fmt.Errorf("banner %q is not in the snapshot", bannerID)
				}
				out = bd
			case full:
				out = snap.Dump()
			default:
				out = map[string]interface{}{
					"built_at":  snap.BuiltAt(),
					"campaigns": len(snap.Campaigns()),
					"banners":   snap.BannerCount(),
					"horizon":   cfg.Stats.Horizon,
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&bannerID, "banner", "", "Print only this banner's statistics")
	cmd.Flags().BoolVar(&full, "full", false, "Print every banner")
	return cmd
}
