package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trailmates/trailmates/internal/app/domain/adventures"
	"github.com/trailmates/trailmates/internal/app/domain/friends"
	"github.com/trailmates/trailmates/internal/app/domain/participants"
	"github.com/trailmates/trailmates/internal/app/domain/popularity"
	"github.com/trailmates/trailmates/internal/app/domain/recommender"
	"github.com/trailmates/trailmates/internal/app/domain/users"
	"github.com/trailmates/trailmates/internal/db"
	"github.com/trailmates/trailmates/internal/observability/tracer"
	"github.com/trailmates/trailmates/internal/pkg/cache"
	"github.com/trailmates/trailmates/internal/pkg/config"
	"github.com/trailmates/trailmates/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

// run boots the snapshot daemon: it refreshes aggregate metric snapshots on
// the configured cadence, replacing the cron job the platform used to run.
func run() error {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Error loading .env file, using environment variables")
	}

	if err := logger.Init(zapcore.InfoLevel, zap.String("service", "trailmates-snapshotd")); err != nil {
		return err
	}
	l := logger.Log
	defer func() { _ = l.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	otelShutdown, err := tracer.InitOtelProviders("trailmates", cfg.Observability.OTLPEndpoint, cfg.Observability.MetricsAddr)
	if err != nil {
		return err
	}
	defer func() {
		if err := otelShutdown(context.Background()); err != nil {
			l.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}()

	dbCfg, err := db.NewDatabaseConfig(cfg, l)
	if err != nil {
		return err
	}

	pool, err := db.Init(dbCfg.ConnectionURL, l)
	if err != nil {
		return err
	}
	defer pool.Close()

	if !db.WaitForDB(context.Background(), pool, l) {
		return fmt.Errorf("database is not reachable")
	}

	if err := db.RunMigrations(dbCfg.ConnectionURL, l); err != nil {
		return err
	}

	adventureRepo := adventures.NewRepository(pool, l)
	participantRepo := participants.NewRepository(pool, l)
	userRepo := users.NewRepository(pool, l)
	friendsRepo := friends.NewRepository(pool, l)
	popularityRepo := popularity.NewRepository(pool, l)
	popularitySvc := popularity.NewService(popularityRepo, adventureRepo, participantRepo, userRepo, l)

	store := cache.NewMemoryStore(cfg.Recommender.CacheTTL, 10*time.Minute)
	popularityTotals := popularity.NewWindowedTotals(popularityRepo, cfg.Recommender.PopularityLookback, time.Now)
	recommenderSvc := recommender.NewService(adventureRepo, participantRepo, friendsRepo, popularityTotals, l,
		recommender.FromConfig(cfg.Recommender, store)...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l.Info("Snapshot daemon started", zap.Duration("cadence", cfg.SnapshotCadence))

	refresh := func() {
		refreshCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if err := popularitySvc.RefreshSnapshots(refreshCtx, time.Now()); err != nil {
			l.Error("Snapshot refresh failed", zap.Error(err))
		}
		// Rebuild the anonymous recommendation set so the next read after a
		// refresh is served from cache.
		if _, err := recommenderSvc.Recommendations(refreshCtx, recommender.Viewer{}); err != nil {
			l.Error("Recommendation warmup failed", zap.Error(err))
		}
	}

	refresh()
	ticker := time.NewTicker(cfg.SnapshotCadence)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			refresh()
		case <-ctx.Done():
			l.Info("Shutting down")
			return nil
		}
	}
}
