package service

import (
	"context"

	"docvault/internal/model"
	"docvault/internal/storage"
)

// HealthReport aggregates backend health. Status is degraded when any
// configured backend is degraded.
type HealthReport struct {
	Status   storage.HealthStatus                  `json:"status"`
	Backends map[model.StorageType]storage.Health `json:"backends"`
}

func (s *documentService) Health(ctx context.Context) HealthReport {
	r := HealthReport{
		Status:   storage.HealthHealthy,
		Backends: make(map[model.StorageType]storage.Health, 2),
	}
	for _, b := range []storage.Backend{s.local, s.remote} {
		if b == nil {
			continue
		}
		h := b.HealthCheck(ctx)
		r.Backends[b.Type()] = h
		if !h.Healthy() {
			r.Status = storage.HealthDegraded
		}
	}
	return r
}
