package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// memRepo is an in-memory DocumentRepository for end-to-end service tests.
type memRepo struct {
	mu        sync.Mutex
	docs      map[string]model.Document
	changedAt map[string]time.Time
	now       func() time.Time

	createErr error
	deleteErr error
}

func newMemRepo(now func() time.Time) *memRepo {
	return &memRepo{
		docs:      make(map[string]model.Document),
		changedAt: make(map[string]time.Time),
		now:       now,
	}
}

var _ repository.DocumentRepository = (*memRepo)(nil)

func (r *memRepo) put(d model.Document, changedAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[d.ID] = d
	r.changedAt[d.ID] = changedAt
}

func (r *memRepo) Create(_ context.Context, doc *model.Document) (*model.Document, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.put(*doc, r.now())
	out := *doc
	return &out, nil
}

func (r *memRepo) FindByID(_ context.Context, id string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &d, nil
}

func (r *memRepo) page(match func(model.Document) bool, pq repository.PageQuery) *repository.PageResult[model.Document] {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := make([]model.Document, 0)
	for _, d := range r.docs {
		if match(d) {
			items = append(items, d)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	total := len(items)
	if pq.Offset > len(items) {
		pq.Offset = len(items)
	}
	items = items[pq.Offset:]
	if pq.Limit < len(items) {
		items = items[:pq.Limit]
	}
	return &repository.PageResult[model.Document]{Items: items, Total: total}
}

func (r *memRepo) List(_ context.Context, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	return r.page(func(model.Document) bool { return true }, pq), nil
}

func (r *memRepo) ListByOwner(_ context.Context, owner model.Owner, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	return r.page(func(d model.Document) bool { return d.Owner == owner }, pq), nil
}

func (r *memRepo) setStatus(id string, st model.Status, reason *string) (*model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	d.Status = st
	d.StatusReason = reason
	r.docs[id] = d
	r.changedAt[id] = r.now()
	return &d, nil
}

func (r *memRepo) MarkDeleting(_ context.Context, id string) (*model.Document, error) {
	return r.setStatus(id, model.StatusDeleting, nil)
}

func (r *memRepo) MarkUndeletable(_ context.Context, id, reason string) error {
	_, err := r.setStatus(id, model.StatusUndeletable, &reason)
	return err
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, id)
	delete(r.changedAt, id)
	return nil
}

func (r *memRepo) ListStale(_ context.Context, status model.Status, olderThan time.Time, limit int) ([]model.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Document, 0)
	for id, d := range r.docs {
		if d.Status == status && r.changedAt[id].Before(olderThan) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
