// Package metrics holds the Prometheus collectors for the storage engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Storage counts backend operations and the recovery paths around them.
// A nil *Storage is valid and records nothing.
type Storage struct {
	operations        *prometheus.CounterVec
	retries           *prometheus.CounterVec
	regionCorrections *prometheus.CounterVec
	fallbacks         *prometheus.CounterVec
	reconciliations   *prometheus.CounterVec
}

// NewStorage creates the storage collectors and registers them with reg.
func NewStorage(reg prometheus.Registerer) (*Storage, error) {
	m := &Storage{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operations_total",
				Help: "Storage backend operations by backend, operation and outcome.",
			},
			[]string{"backend", "operation", "outcome"},
		),
		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_retries_total",
				Help: "Retried remote storage attempts after transient failures.",
			},
			[]string{"operation"},
		),
		regionCorrections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_region_corrections_total",
				Help: "Remote clients rebuilt for the bucket's canonical region.",
			},
			[]string{"region"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_upload_fallbacks_total",
				Help: "Uploads redirected from the remote backend to local disk.",
			},
			[]string{"reason"},
		),
		reconciliations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_reconciliation_total",
				Help: "Metadata and object store divergences by kind.",
			},
			[]string{"kind"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.operations, m.retries, m.regionCorrections, m.fallbacks, m.reconciliations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Storage) Operation(backend, operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(backend, operation, outcome).Inc()
}

func (m *Storage) Retry(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

func (m *Storage) RegionCorrected(region string) {
	if m == nil {
		return
	}
	m.regionCorrections.WithLabelValues(region).Inc()
}

func (m *Storage) Fallback(reason string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(reason).Inc()
}

func (m *Storage) Reconciliation(kind string) {
	if m == nil {
		return
	}
	m.reconciliations.WithLabelValues(kind).Inc()
}
