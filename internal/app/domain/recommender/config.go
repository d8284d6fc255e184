package recommender

import (
	"github.com/trailmates/trailmates/internal/pkg/cache"
	"github.com/trailmates/trailmates/internal/pkg/config"
)

// FromConfig translates the deployment configuration into service options:
// per-signal weights always, result caching when a store is supplied.
func FromConfig(cfg config.RecommenderConfig, store cache.Store) []Option {
	opts := []Option{WithWeights(Weights{
		Proximity:    cfg.ProximityWeight,
		Friends:      cfg.FriendsWeight,
		Participants: cfg.ParticipantsWeight,
		Views:        cfg.ViewsWeight,
		Searches:     cfg.SearchesWeight,
	})}
	if store != nil {
		opts = append(opts, WithCache(store, cfg.CacheTTL))
	}
	return opts
}
