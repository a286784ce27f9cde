// Package metrics holds the Prometheus instruments of a keysweep peer.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values for OutcomesTotal.
const (
	ResultFound    = "found"
	ResultNotFound = "not_found"
	ResultFailed   = "failed"
)

// Metrics provides observability for the search and its peer exchange.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	KeysTested            *prometheus.CounterVec
	AnnouncementsSent     prometheus.Counter
	AnnouncementsReceived prometheus.Counter
	SearchDuration        prometheus.Histogram
	Outcomes              *prometheus.CounterVec
}

// New creates the instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		KeysTested: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keysweep_keys_tested_total",
			Help: "Total number of candidate keys tested, per peer",
		}, []string{"peer"}),
		AnnouncementsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "keysweep_announcements_sent_total",
			Help: "Total number of found-key announcements sent to peers",
		}),
		AnnouncementsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "keysweep_announcements_received_total",
			Help: "Total number of found-key announcements applied from peers",
		}),
		SearchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "keysweep_search_duration_seconds",
			Help:    "Wall time of one peer's search",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 12),
		}),
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keysweep_outcomes_total",
			Help: "Search outcomes produced by the reporter",
		}, []string{"result"}),
	}
}

// AddKeysTested adds n tested keys to the counter of peer.
func (m *Metrics) AddKeysTested(peer int, n uint64) {
	if m == nil {
		return
	}
	m.KeysTested.WithLabelValues(strconv.Itoa(peer)).Add(float64(n))
}

// IncrementAnnouncementsSent counts one announcement fan-out.
func (m *Metrics) IncrementAnnouncementsSent(n int) {
	if m == nil {
		return
	}
	m.AnnouncementsSent.Add(float64(n))
}

// IncrementAnnouncementsReceived counts one applied announcement.
func (m *Metrics) IncrementAnnouncementsReceived() {
	if m == nil {
		return
	}
	m.AnnouncementsReceived.Inc()
}

// ObserveSearch records the duration of a search.
func (m *Metrics) ObserveSearch(d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.Observe(d.Seconds())
}

// RecordOutcome counts one outcome under the given result label.
func (m *Metrics) RecordOutcome(result string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(result).Inc()
}
