package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aevon-lab/adselect/internal/aggregation"
	"github.com/aevon-lab/adselect/internal/core/catalog"
	"github.com/aevon-lab/adselect/internal/core/stats"
	"github.com/aevon-lab/adselect/internal/decision"
	"github.com/aevon-lab/adselect/internal/ingestion"
	"github.com/aevon-lab/adselect/internal/metrics"
	"github.com/aevon-lab/adselect/internal/notify"
	"github.com/aevon-lab/adselect/internal/projection"
	"github.com/aevon-lab/adselect/internal/rpc"
	"github.com/aevon-lab/adselect/internal/rtb"
	"github.com/aevon-lab/adselect/internal/selection"
	"github.com/aevon-lab/adselect/internal/server"
	"github.com/spf13/cobra"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("[Main] Loaded config",
		"path", configPath,
		"database", cfg.Database.Type,
		"horizon", cfg.Stats.Horizon,
		"seed_campaigns", len(cfg.Resolved.Seeds),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Storage
	repo, closeRepo, err := openRepository(cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer closeRepo()

	// 2. Seed campaigns from the catalog directory
	if _, err := catalog.Seed(ctx, repo, cfg.Resolved.Seeds); err != nil {
		return err
	}

	// 3. Stats cache and update pipeline
	m := metrics.New()
	snapOpts := stats.Options{BestKeywordsLimit: cfg.Stats.BestKeywordsLimit}
	cache := stats.NewCache(snapOpts)
	aggregator := aggregation.NewAggregator(repo, aggregation.RebuildParameter{
		Horizon:     cfg.Resolved.Horizon,
		BatchSize:   cfg.Stats.BatchSize,
		WorkerCount: cfg.Stats.WorkerCount,
		Snapshot:    snapOpts,
	})
	pipeline := aggregation.NewPipeline(cache, aggregator, aggregation.PipelineParameter{
		Interval:       cfg.Resolved.RebuildInterval,
		Timeout:        cfg.Resolved.RebuildTimeout,
		Retries:        cfg.Stats.RebuildRetries,
		RetryBackoff:   cfg.Resolved.RebuildBackoff,
		DeltaThreshold: cfg.Stats.DeltaThreshold,
	}, aggregation.WithObserver(m))

	// 4. Decision and ingestion services
	selector := selection.NewSelector(selection.Options{
		ColdStartScore: cfg.Selection.ColdStartScore,
		MaxResults:     cfg.Selection.MaxResults,
	})
	decisionSvc := decision.NewService(cache, selector, repo, pipeline, decision.WithObserver(m))
	ingestionSvc := ingestion.NewService(repo, pipeline, cfg.Server.MaxBodySizeMB)

	// 5. HTTP surfaces
	srv := server.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), repo, cache, cfg.Server.Mode)
	decisionSvc.RegisterRoutes(srv.Engine)
	ingestionSvc.RegisterRoutes(srv.Engine)
	projection.NewService(cache).RegisterRoutes(srv.Engine)
	rpc.NewHandler(decisionSvc, ingestionSvc, cfg.Server.MaxBodySizeMB).RegisterRoutes(srv.Engine)
	rtb.NewAdapter(decisionSvc, 0).RegisterRoutes(srv.Engine)
	m.RegisterRoutes(srv.Engine)

	// 6. Background workers
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := pipeline.Start(ctx); err != nil {
			slog.Error("[Main] Update pipeline stopped with error", "error", err)
		}
	}()

	if cfg.Notify.Enabled {
		sub := notify.NewSubscriber(notify.Options{
			Addr:     cfg.Notify.Addr,
			Password: cfg.Notify.Password,
			DB:       cfg.Notify.DB,
			Channel:  cfg.Notify.Channel,
		}, ingestionSvc)
		if err := sub.Start(ctx); err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("start impression subscriber: %w", err)
		}
		defer func() {
			if err := sub.Close(); err != nil {
				slog.Error("[Main] Failed to close impression subscriber", "error", err)
			}
		}()
	} else {
		slog.Info("[Main] Redis impression subscriber disabled by config")
	}

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("[Main] Server stopped with error", "error", err)
		stop()
	}

	wg.Wait()
	slog.Info("[Main] Shutdown complete")
	return nil
}
