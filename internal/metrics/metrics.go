package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "handlescope"

// Transaction outcomes recorded by TransactionsTotal.
const (
	OutcomeBegun        = "begun"
	OutcomeCommitted    = "committed"
	OutcomeRolledBack   = "rolled_back"
	OutcomeCommitFailed = "commit_failed"
	OutcomeBeginFailed  = "begin_failed"
)

// Metrics holds the collectors for handle and transaction lifecycles.
// All recording methods accept a nil receiver.
type Metrics struct {
	HandlesOpenedTotal *prometheus.CounterVec
	HandlesClosedTotal *prometheus.CounterVec
	HandlesActive      *prometheus.GaugeVec
	TransactionsTotal  *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewWithRegistry registers every collector on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		HandlesOpenedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handles_opened_total",
				Help:      "Handles opened, by manager.",
			},
			[]string{"manager"},
		),
		HandlesClosedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handles_closed_total",
				Help:      "Handles closed, by manager.",
			},
			[]string{"manager"},
		),
		HandlesActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "handles_active",
				Help:      "Handles currently registered, by manager.",
			},
			[]string{"manager"},
		),
		TransactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Transaction boundary events, by outcome.",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests, by method, route pattern and status.",
			},
			[]string{"method", "pattern", "status"},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.HandlesOpenedTotal,
		m.HandlesClosedTotal,
		m.HandlesActive,
		m.TransactionsTotal,
		m.HTTPRequestsTotal,
	)

	return m
}

func (m *Metrics) HandleOpened(manager string) {
	if m == nil {
		return
	}
	m.HandlesOpenedTotal.WithLabelValues(manager).Inc()
}

func (m *Metrics) HandleClosed(manager string) {
	if m == nil {
		return
	}
	m.HandlesClosedTotal.WithLabelValues(manager).Inc()
}

// HandleRegistered moves the active gauge for managers that keep handles
// between calls.
func (m *Metrics) HandleRegistered(manager string, delta float64) {
	if m == nil {
		return
	}
	m.HandlesActive.WithLabelValues(manager).Add(delta)
}

func (m *Metrics) Transaction(outcome string) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(method, pattern string, status int) {
	if m == nil {
		return
	}
	if pattern == "" {
		pattern = "unmatched"
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pattern, strconv.Itoa(status)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
