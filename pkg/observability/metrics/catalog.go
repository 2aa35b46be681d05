package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	searchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_search_requests_total",
			Help: "Keyword searches by collection and outcome",
		},
		[]string{"collection", "outcome"},
	)

	searchResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_search_results",
			Help:    "Number of records returned per keyword search",
			Buckets: []float64{0, 1, 2, 5, 10},
		},
		[]string{"collection"},
	)

	pageRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_page_requests_total",
			Help: "Paginated listings by collection, direction and outcome",
		},
		[]string{"collection", "direction", "outcome"},
	)

	// variantGroupsTotal counts group creations by final state
	// (complete, partially_created, partially_linked, invalid_argument).
	variantGroupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_variant_groups_total",
			Help: "Variant group creations by final state",
		},
		[]string{"state"},
	)

	variantGroupSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_variant_group_size",
			Help:    "Number of variants requested per group",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_events_published_total",
			Help: "Catalog events handed to the event bus by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)
)

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}

// RecordSearch counts one search and the size of its result.
func RecordSearch(collection string, results int, err error) {
	searchRequestsTotal.WithLabelValues(collection, outcome(err)).Inc()
	if err == nil {
		searchResults.WithLabelValues(collection).Observe(float64(results))
	}
}

// RecordPage counts one paginated listing.
func RecordPage(collection, direction string, err error) {
	if direction == "" {
		direction = "none"
	}
	pageRequestsTotal.WithLabelValues(collection, direction, outcome(err)).Inc()
}

// RecordVariantGroup counts one group creation attempt.
func RecordVariantGroup(state string, size int) {
	variantGroupsTotal.WithLabelValues(state).Inc()
	variantGroupSize.Observe(float64(size))
}

// RecordEventPublished counts one event publication.
func RecordEventPublished(topic string, err error) {
	eventsPublishedTotal.WithLabelValues(topic, outcome(err)).Inc()
}
