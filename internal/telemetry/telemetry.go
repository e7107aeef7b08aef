package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Translation request outcomes.
const (
	OutcomeCached = "cached"
	OutcomeFresh  = "fresh"
	OutcomeError  = "error"
)

var (
	// TranslationRequests counts translate requests by outcome.
	TranslationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talmud_translation_requests_total",
		Help: "Translation requests by outcome (cached, fresh, error).",
	}, []string{"outcome"})

	// TranslationCost accumulates billed provider cost in dollars. Cache hits
	// add nothing here.
	TranslationCost = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talmud_translation_cost_dollars_total",
		Help: "Cumulative billed cost of provider translation calls.",
	})

	// SefariaCacheEvents counts hits and misses per cache pool (text, links).
	SefariaCacheEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "talmud_sefaria_cache_events_total",
		Help: "Sefaria client cache hits and misses by pool.",
	}, []string{"pool", "event"})

	// MalformedStreamFrames counts provider stream frames that failed to decode
	// and were skipped. Skipping is policy, not an accident; this counter is the
	// diagnostic for it.
	MalformedStreamFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "talmud_stream_malformed_frames_total",
		Help: "Provider stream frames skipped due to decode failure.",
	})
)
