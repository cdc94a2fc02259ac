package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/batch"
)

type Batches struct {
	mu   sync.Mutex
	rows map[string]*domain.Batch
}

func NewBatches() *Batches {
	return &Batches{rows: make(map[string]*domain.Batch)}
}

func copyBatch(b *domain.Batch) domain.Batch {
	c := *b
	c.RecipientIDs = slices.Clone(b.RecipientIDs)
	c.Params = slices.Clone(b.Params)
	return c
}

func (s *Batches) Create(_ context.Context, b *domain.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	row := copyBatch(b)
	s.rows[b.ID] = &row
	return nil
}

func (s *Batches) Get(_ context.Context, id string) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := copyBatch(b)
	return &c, nil
}

func (s *Batches) list(filter func(*domain.Batch) bool) []domain.Batch {
	out := make([]domain.Batch, 0)
	for _, b := range s.rows {
		if filter(b) {
			out = append(out, copyBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Batches) List(_ context.Context, d domain.Domain, limit int) ([]domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.list(func(b *domain.Batch) bool { return d == "" || b.Domain == d })
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Batches) ListActive(_ context.Context, d domain.Domain) ([]domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.list(func(b *domain.Batch) bool { return b.Domain == d && !b.Status.IsTerminal() }), nil
}

func (s *Batches) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.rows[id]; ok && b.Status == domain.BatchDraft {
		delete(s.rows, id)
	}
	return nil
}

func (s *Batches) Activate(_ context.Context, id string, recipientIDs []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.rows[id]
	if !ok || b.Status != domain.BatchDraft {
		return domain.ErrBatchNotActive
	}
	b.Status = domain.BatchProcessing
	b.Total = len(recipientIDs)
	b.RecipientIDs = slices.Clone(recipientIDs)
	touch(&b.UpdatedAt)
	return nil
}

func (s *Batches) RecordOutcome(_ context.Context, id string, sent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.rows[id]
	if !ok {
		return nil
	}
	if sent {
		b.SentCount++
	} else {
		b.FailedCount++
	}
	touch(&b.UpdatedAt)
	return nil
}

func (s *Batches) Transition(_ context.Context, id string, from []domain.BatchStatus, to domain.BatchStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.rows[id]
	if !ok || !slices.Contains(from, b.Status) {
		return false, nil
	}
	b.Status = to
	touch(&b.UpdatedAt)
	if to.IsTerminal() {
		b.FinishedAt = b.UpdatedAt
	}
	return true, nil
}

func (s *Batches) FinishIfComplete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.rows[id]
	if !ok || b.Status != domain.BatchProcessing || !b.AllReported() {
		return false, nil
	}
	b.Status = domain.BatchCompleted
	touch(&b.UpdatedAt)
	b.FinishedAt = b.UpdatedAt
	return true, nil
}

// Put stores b as is. Tests use it to seed corrupted or stale rows.
func (s *Batches) Put(b domain.Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := copyBatch(&b)
	s.rows[b.ID] = &row
}

var _ batch.Repository = (*Batches)(nil)
