package engine

import (
	"time"

	"github.com/llehouerou/notifyd/internal/hints"
	"github.com/llehouerou/notifyd/internal/notify"
	"github.com/llehouerou/notifyd/internal/ratelimit"
	"github.com/llehouerou/notifyd/internal/store"
)

const (
	DefaultWorkers       = 4
	DefaultEnrichTimeout = 5 * time.Second

	imageCacheEntries = 64
)

// Settings is the runtime configuration of an Engine. Reload replaces it
// as a whole.
type Settings struct {
	Policy    store.Policy
	Content   hints.Options
	RateLimit ratelimit.Options
	Grouping  notify.GroupingMode
	// Workers bounds concurrent enrichment.
	Workers int
	// EnrichTimeout bounds the time spent decoding images for one request.
	// Text content is still committed when it elapses.
	EnrichTimeout time.Duration
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		Policy:  store.DefaultPolicy(),
		Content: hints.DefaultOptions(),
		RateLimit: ratelimit.Options{
			Limit:       ratelimit.DefaultLimit,
			Window:      ratelimit.DefaultWindow,
			MaxSenders:  ratelimit.DefaultMaxSenders,
			GlobalRate:  50,
			GlobalBurst: 200,
		},
		Grouping:      notify.GroupNone,
		Workers:       DefaultWorkers,
		EnrichTimeout: DefaultEnrichTimeout,
	}
}

func (s *Settings) workers() int64 {
	if s.Workers <= 0 {
		return DefaultWorkers
	}
	return int64(s.Workers)
}

func (s *Settings) enrichTimeout() time.Duration {
	if s.EnrichTimeout <= 0 {
		return DefaultEnrichTimeout
	}
	return s.EnrichTimeout
}

// Capabilities returns the protocol capabilities for these settings.
func (s *Settings) Capabilities() []string {
	icon := "icon-static"
	if s.Content.EnableAnimations {
		icon = "icon-multi"
	}
	return []string{
		"actions",
		"action-icons",
		"body",
		"body-hyperlinks",
		"body-images",
		"body-markup",
		icon,
		"persistence",
		"sound",
	}
}
