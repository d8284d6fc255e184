package metrics

import (
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// AppMetrics holds the application's metric instruments.
type AppMetrics struct {
	JoinsTotal             metric.Int64Counter
	LeavesTotal            metric.Int64Counter
	DuplicateJoinsTotal    metric.Int64Counter
	RankingDurationSeconds metric.Float64Histogram
	RankingCandidates      metric.Int64Histogram
	SnapshotRefreshTotal   metric.Int64Counter
	PopularityEventsTotal  metric.Int64Counter
}

var (
	appMetrics *AppMetrics
	once       sync.Once
)

// Get returns the process-wide metric instruments, creating them on first
// use from the globally configured MeterProvider. Before the provider is
// configured the instruments are no-ops, so domain code (and its tests) can
// record unconditionally.
func Get() *AppMetrics {
	once.Do(func() {
		meter := otel.GetMeterProvider().Meter("trailmates")
		m := &AppMetrics{}
		var err error

		m.JoinsTotal, err = meter.Int64Counter(
			"adventure_joins_total",
			metric.WithDescription("Total number of successful adventure joins (first joins and rejoins)"),
			metric.WithUnit("{join}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create adventure_joins_total: %v", err)
		}

		m.LeavesTotal, err = meter.Int64Counter(
			"adventure_leaves_total",
			metric.WithDescription("Total number of adventure leaves that changed state"),
			metric.WithUnit("{leave}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create adventure_leaves_total: %v", err)
		}

		m.DuplicateJoinsTotal, err = meter.Int64Counter(
			"adventure_duplicate_joins_total",
			metric.WithDescription("Total number of join attempts rejected because the user was already active"),
			metric.WithUnit("{attempt}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create adventure_duplicate_joins_total: %v", err)
		}

		m.RankingDurationSeconds, err = meter.Float64Histogram(
			"recommendation_ranking_duration_seconds",
			metric.WithDescription("Duration of one personalized ranking pass"),
			metric.WithUnit("s"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create recommendation_ranking_duration_seconds: %v", err)
		}

		m.RankingCandidates, err = meter.Int64Histogram(
			"recommendation_candidates",
			metric.WithDescription("Number of candidate adventures per ranking pass"),
			metric.WithUnit("{adventure}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create recommendation_candidates: %v", err)
		}

		m.SnapshotRefreshTotal, err = meter.Int64Counter(
			"metric_snapshot_refreshes_total",
			metric.WithDescription("Total number of explicit metric snapshot refreshes"),
			metric.WithUnit("{refresh}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create metric_snapshot_refreshes_total: %v", err)
		}

		m.PopularityEventsTotal, err = meter.Int64Counter(
			"adventure_popularity_events_total",
			metric.WithDescription("Total number of recorded view/search events"),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			log.Fatalf("Metrics: Failed to create adventure_popularity_events_total: %v", err)
		}

		appMetrics = m
	})
	return appMetrics
}
