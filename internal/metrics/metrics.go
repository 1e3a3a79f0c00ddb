// Package metrics exports store, RPC and reconciliation metrics to Prometheus.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmynk/vibecheck/internal/apperr"
	"github.com/mmynk/vibecheck/internal/storage"
)

const namespace = "vibecheck"

// Outcome labels of store operations.
const (
	OutcomeOK        = "ok"
	OutcomeNotFound  = "not_found"
	OutcomeConflict  = "conflict"
	OutcomeTransient = "transient"
	OutcomeError     = "error"
)

// Metrics holds every collector. It implements storage.Observer.
type Metrics struct {
	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	rpcRequests   *prometheus.CounterVec
	rpcDuration   *prometheus.HistogramVec
	reconciled    prometheus.Counter
	reconcileRuns *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Document store operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Latency of document store operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "RPC requests by procedure and result code.",
		}, []string{"procedure", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency of RPC requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		reconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "repaired_users_total",
			Help:      "Users whose group list was repaired by reconciliation.",
		}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "membership",
			Name:      "reconcile_runs_total",
			Help:      "Reconciliation passes by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(m.storeOps, m.storeDuration, m.rpcRequests, m.rpcDuration, m.reconciled, m.reconcileRuns)
	return m
}

// ObserveOp records one store operation.
func (m *Metrics) ObserveOp(op string, d time.Duration, err error) {
	m.storeOps.WithLabelValues(op, Outcome(err)).Inc()
	m.storeDuration.WithLabelValues(op).Observe(d.Seconds())
}

// ObserveRPC records one RPC. code is the Connect code name, "ok" on success.
func (m *Metrics) ObserveRPC(procedure, code string, d time.Duration) {
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
	m.rpcDuration.WithLabelValues(procedure).Observe(d.Seconds())
}

// ObserveReconcile records one reconciliation pass.
func (m *Metrics) ObserveReconcile(repaired int, err error) {
	m.reconciled.Add(float64(repaired))
	result := OutcomeOK
	if err != nil {
		result = OutcomeError
	}
	m.reconcileRuns.WithLabelValues(result).Inc()
}

// Outcome classifies a store error for the outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, apperr.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		return OutcomeConflict
	case apperr.Retryable(err):
		return OutcomeTransient
	default:
		return OutcomeError
	}
}

var _ storage.Observer = (*Metrics)(nil)
