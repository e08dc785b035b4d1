package prefsync

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/orgbook/prefsync/pkg/models"
	"github.com/orgbook/prefsync/pkg/prefs"
)

// Save outcomes as exported on the saves counter. A degraded save that
// only reached the mirror is still a success for the caller, but the two
// paths are counted apart because a rising local_pending rate is the
// operational signal that the remote store is down.
const (
	outcomeRemote       = "remote"
	outcomeLocalPending = "local_pending"
)

type metrics struct {
	registry *prometheus.Registry

	saves     *prometheus.CounterVec
	deletes   *prometheus.CounterVec
	reconcile *prometheus.CounterVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prefsync",
			Name:      "saves_total",
			Help:      "Preference saves by kind and outcome (remote or local_pending).",
		}, []string{"kind", "outcome"}),
		deletes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prefsync",
			Name:      "deletes_total",
			Help:      "Preference deletions by kind.",
		}, []string{"kind"}),
		reconcile: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "prefsync",
			Name:      "reconcile_records_total",
			Help:      "Records handled by reconciliation runs, by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.saves,
		m.deletes,
		m.reconcile,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) observeSave(kind models.Kind, pending bool) {
	outcome := outcomeRemote
	if pending {
		outcome = outcomeLocalPending
	}
	m.saves.WithLabelValues(string(kind), outcome).Inc()
}

func (m *metrics) observeDelete(kind models.Kind) {
	m.deletes.WithLabelValues(string(kind)).Inc()
}

func (m *metrics) observeReconcile(rep prefs.Report) {
	m.reconcile.WithLabelValues("pushed").Add(float64(rep.Pushed))
	m.reconcile.WithLabelValues("skipped").Add(float64(rep.Skipped))
	m.reconcile.WithLabelValues("failed").Add(float64(rep.Failed))
}
