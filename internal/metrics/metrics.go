// Package metrics exposes synchronization outcomes as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/chmdznr/recsync/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records sync and rollback outcomes on its own registry
type Metrics struct {
	registry      *prometheus.Registry
	batches       prometheus.Counter
	records       *prometheus.CounterVec
	modifications prometheus.Counter
	columnsAdded  prometheus.Counter
	batchDuration prometheus.Histogram
	rollbacks     *prometheus.CounterVec
}

// New creates the metrics set and registers it on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		batches: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recsync",
			Name:      "batches_total",
			Help:      "Batches synchronized.",
		}),
		records: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recsync",
			Name:      "records_total",
			Help:      "Records processed by outcome.",
		}, []string{"outcome"}),
		modifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recsync",
			Name:      "field_modifications_total",
			Help:      "Field-level changes applied.",
		}),
		columnsAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "recsync",
			Name:      "schema_columns_added_total",
			Help:      "Columns added by schema migrations.",
		}),
		batchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "recsync",
			Name:      "batch_duration_seconds",
			Help:      "Time spent applying a batch.",
			Buckets:   prometheus.DefBuckets,
		}),
		rollbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "recsync",
			Name:      "rollbacks_total",
			Help:      "Rollback attempts by result.",
		}, []string{"result"}),
	}
}

// ObserveSync records a committed batch
func (m *Metrics) ObserveSync(s *models.SyncSummary) {
	m.batches.Inc()
	m.records.WithLabelValues("new").Add(float64(s.New))
	m.records.WithLabelValues("updated").Add(float64(s.Updated))
	m.records.WithLabelValues("unchanged").Add(float64(s.Unchanged))
	m.records.WithLabelValues("refreshed").Add(float64(s.Refreshed))
	m.records.WithLabelValues("error").Add(float64(len(s.Errors)))
	m.modifications.Add(float64(len(s.Modifications)))
	m.columnsAdded.Add(float64(len(s.AddedColumns)))
	m.batchDuration.Observe(s.Duration.Seconds())
}

// ObserveRollback records a rollback attempt
func (m *Metrics) ObserveRollback(ok bool) {
	result := "not_found"
	if ok {
		result = "restored"
	}
	m.rollbacks.WithLabelValues(result).Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
