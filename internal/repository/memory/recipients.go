// Package memory holds process-local implementations of the repositories, used for single
// instance runs and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/recipient"
)

type Recipients struct {
	mu     sync.Mutex
	nextID int
	rows   map[int]*domain.Recipient
}

func NewRecipients() *Recipients {
	return &Recipients{rows: make(map[int]*domain.Recipient)}
}

func copyRecipient(r *domain.Recipient) domain.Recipient {
	c := *r
	c.Params = slices.Clone(r.Params)
	if r.BatchID != nil {
		id := *r.BatchID
		c.BatchID = &id
	}
	return c
}

func (s *Recipients) sorted(filter func(*domain.Recipient) bool) []domain.Recipient {
	out := make([]domain.Recipient, 0)
	for _, r := range s.rows {
		if filter(r) {
			out = append(out, copyRecipient(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Recipients) Create(_ context.Context, recipients []domain.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for i := range recipients {
		s.nextID++
		recipients[i].ID = s.nextID
		if recipients[i].SendStatus == "" {
			recipients[i].SendStatus = domain.StatusPending
		}
		recipients[i].CreatedAt = now
		row := copyRecipient(&recipients[i])
		s.rows[row.ID] = &row
	}
	return nil
}

func (s *Recipients) Get(_ context.Context, id int) (*domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	c := copyRecipient(r)
	return &c, nil
}

func (s *Recipients) FindByIDs(_ context.Context, d domain.Domain, ids []int) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sorted(func(r *domain.Recipient) bool {
		return r.Domain == d && slices.Contains(ids, r.ID)
	}), nil
}

func (s *Recipients) FindEligible(_ context.Context, q recipient.EligibleQuery) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	windowed := q.AppointmentFrom != nil || q.AppointmentTo != nil
	out := s.sorted(func(r *domain.Recipient) bool {
		if r.Domain != q.Domain || !r.Eligible() || r.PhoneNumber == "" {
			return false
		}
		if !windowed {
			return true
		}
		if r.AppointmentAt == nil {
			return false
		}
		if q.AppointmentFrom != nil && r.AppointmentAt.Before(*q.AppointmentFrom) {
			return false
		}
		if q.AppointmentTo != nil && !r.AppointmentAt.Before(*q.AppointmentTo) {
			return false
		}
		return true
	})

	if windowed {
		sort.SliceStable(out, func(i, j int) bool { return out[i].AppointmentAt.Before(*out[j].AppointmentAt) })
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Recipients) MarkInvalid(_ context.Context, id int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || (r.SendStatus != domain.StatusPending && r.SendStatus != domain.StatusFailed) {
		return nil
	}
	r.SendStatus = domain.StatusFailed
	r.FailureReason = reason
	r.FailureRetryable = false
	touch(&r.UpdatedAt)
	return nil
}

func (s *Recipients) AssignBatch(_ context.Context, batchID string, ids []int) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assigned := make([]int, 0, len(ids))
	for _, id := range ids {
		r, ok := s.rows[id]
		if !ok || !r.Eligible() || slices.Contains(assigned, id) {
			continue
		}
		b := batchID
		r.BatchID = &b
		r.SendStatus = domain.StatusPending
		r.ClaimedAt = nil
		touch(&r.UpdatedAt)
		assigned = append(assigned, id)
	}
	slices.Sort(assigned)
	return assigned, nil
}

func (s *Recipients) PendingInBatch(_ context.Context, batchID string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0)
	for _, r := range s.sorted(func(r *domain.Recipient) bool {
		return r.InBatch(batchID) && r.SendStatus == domain.StatusPending
	}) {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

func (s *Recipients) transition(id int, batchID string, from domain.SendStatus, apply func(*domain.Recipient)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || !r.InBatch(batchID) || r.SendStatus != from {
		return false
	}
	apply(r)
	touch(&r.UpdatedAt)
	return true
}

func (s *Recipients) Claim(_ context.Context, id int, batchID string) (bool, error) {
	return s.transition(id, batchID, domain.StatusPending, func(r *domain.Recipient) {
		now := time.Now().UTC()
		r.SendStatus = domain.StatusProcessing
		r.ClaimedAt = &now
	}), nil
}

func (s *Recipients) Unclaim(_ context.Context, id int, batchID string) error {
	s.transition(id, batchID, domain.StatusProcessing, func(r *domain.Recipient) {
		r.SendStatus = domain.StatusPending
		r.ClaimedAt = nil
	})
	return nil
}

func (s *Recipients) MarkSent(_ context.Context, id int, batchID, providerMessageID string, attempts int, at time.Time) (bool, error) {
	apply := func(r *domain.Recipient) {
		r.SendStatus = domain.StatusSent
		r.ProviderMessageID = providerMessageID
		r.FailureReason = ""
		r.FailureRetryable = false
		r.ClaimedAt = nil
		r.Attempts += attempts
		r.SentAt = &at
	}
	if s.transition(id, batchID, domain.StatusProcessing, apply) {
		return true, nil
	}
	return s.transition(id, batchID, domain.StatusPending, apply), nil
}

func (s *Recipients) MarkFailed(_ context.Context, id int, batchID, reason string, retryable bool, attempts int) (bool, error) {
	return s.transition(id, batchID, domain.StatusProcessing, func(r *domain.Recipient) {
		r.SendStatus = domain.StatusFailed
		r.FailureReason = reason
		r.FailureRetryable = retryable
		r.ClaimedAt = nil
		r.Attempts += attempts
	}), nil
}

func (s *Recipients) ReleaseClaims(_ context.Context, batchID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.rows {
		if r.InBatch(batchID) && r.SendStatus == domain.StatusProcessing {
			r.SendStatus = domain.StatusPending
			r.ClaimedAt = nil
			touch(&r.UpdatedAt)
			n++
		}
	}
	return n, nil
}

func (s *Recipients) RecoverClaims(_ context.Context, before time.Time) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := s.sorted(func(r *domain.Recipient) bool {
		return r.SendStatus == domain.StatusProcessing && r.ClaimedAt != nil && r.ClaimedAt.Before(before)
	})
	for i := range expired {
		r := s.rows[expired[i].ID]
		r.SendStatus = domain.StatusPending
		r.ClaimedAt = nil
		touch(&r.UpdatedAt)
		expired[i].SendStatus = domain.StatusPending
		expired[i].ClaimedAt = nil
	}
	return expired, nil
}

func (s *Recipients) ListFailed(_ context.Context, d domain.Domain, limit, offset int) ([]domain.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.sorted(func(r *domain.Recipient) bool {
		return r.SendStatus == domain.StatusFailed && (d == "" || r.Domain == d)
	})
	// most recently failed first
	slices.SortStableFunc(out, func(a, b domain.Recipient) int {
		if c := updatedAt(b).Compare(updatedAt(a)); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	if offset >= len(out) {
		return []domain.Recipient{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Recipients) Reset(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rows[id]
	if !ok || r.SendStatus != domain.StatusFailed {
		return domain.ErrNotFound
	}
	r.SendStatus = domain.StatusPending
	r.FailureReason = ""
	r.FailureRetryable = false
	r.BatchID = nil
	touch(&r.UpdatedAt)
	return nil
}

// Count reports how many rows have the given status.
func (s *Recipients) Count(status domain.SendStatus) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, r := range s.rows {
		if r.SendStatus == status {
			n++
		}
	}
	return n
}

func updatedAt(r domain.Recipient) time.Time {
	if r.UpdatedAt == nil {
		return time.Time{}
	}
	return *r.UpdatedAt
}

func touch(t **time.Time) {
	now := time.Now().UTC()
	*t = &now
}

var _ recipient.Repository = (*Recipients)(nil)
