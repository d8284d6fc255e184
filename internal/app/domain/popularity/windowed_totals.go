package popularity

import (
	"context"
	"time"
)

// WindowedTotals restricts the popularity sums to a trailing window of
// lookbackDays so ranking consumers see recent interest rather than
// all-time counts. A lookback of zero or less keeps the all-time totals.
type WindowedTotals struct {
	repo         Repository
	lookbackDays int
	now          func() time.Time
}

func NewWindowedTotals(repo Repository, lookbackDays int, now func() time.Time) *WindowedTotals {
	if now == nil {
		now = time.Now
	}
	return &WindowedTotals{repo: repo, lookbackDays: lookbackDays, now: now}
}

// ViewTotals returns summed view weights per adventure within the window.
func (w *WindowedTotals) ViewTotals(ctx context.Context) (map[int64]int64, error) {
	if w.lookbackDays <= 0 {
		return w.repo.ViewTotals(ctx)
	}
	return w.repo.ViewTotalsSince(ctx, w.since())
}

// SearchTotals returns summed search weights per adventure within the window.
func (w *WindowedTotals) SearchTotals(ctx context.Context) (map[int64]int64, error) {
	if w.lookbackDays <= 0 {
		return w.repo.SearchTotals(ctx)
	}
	return w.repo.SearchTotalsSince(ctx, w.since())
}

func (w *WindowedTotals) since() time.Time {
	return w.now().AddDate(0, 0, -w.lookbackDays)
}
