package memory

import (
	"context"
	"sync"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/lock"
)

// Locks keeps process locks behind one mutex, which makes every operation a compare-and-set
// within this process only.
type Locks struct {
	mu   sync.Mutex
	rows map[domain.Domain]*domain.ProcessLock
}

func NewLocks() *Locks {
	return &Locks{rows: make(map[domain.Domain]*domain.ProcessLock)}
}

func (s *Locks) row(d domain.Domain) *domain.ProcessLock {
	l, ok := s.rows[d]
	if !ok {
		l = &domain.ProcessLock{Domain: d}
		s.rows[d] = l
	}
	return l
}

func idle(l *domain.ProcessLock) {
	l.Processing = false
	l.Paused = false
	l.ActiveBatchID = nil
	l.ProgressSent = 0
	l.ProgressFailed = 0
	l.ProgressTotal = 0
	touch(&l.UpdatedAt)
}

func (s *Locks) Get(_ context.Context, d domain.Domain) (*domain.ProcessLock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *s.row(d)
	if c.ActiveBatchID != nil {
		id := *c.ActiveBatchID
		c.ActiveBatchID = &id
	}
	return &c, nil
}

func (s *Locks) Acquire(_ context.Context, d domain.Domain, batchID string, total int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.row(d)
	if l.Processing {
		return false, nil
	}
	idle(l)
	id := batchID
	l.Processing = true
	l.ActiveBatchID = &id
	l.ProgressTotal = total
	return true, nil
}

func (s *Locks) ReleaseIf(_ context.Context, d domain.Domain, batchID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.row(d)
	if l.ActiveBatchID == nil || *l.ActiveBatchID != batchID {
		return false, nil
	}
	idle(l)
	return true, nil
}

func (s *Locks) Release(_ context.Context, d domain.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idle(s.row(d))
	return nil
}

func (s *Locks) SetPaused(_ context.Context, d domain.Domain, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.row(d)
	l.Paused = paused
	touch(&l.UpdatedAt)
	return nil
}

func (s *Locks) SetTotal(_ context.Context, d domain.Domain, batchID string, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.row(d)
	if l.HoldsBatch(batchID) {
		l.ProgressTotal = total
		touch(&l.UpdatedAt)
	}
	return nil
}

func (s *Locks) Increment(_ context.Context, d domain.Domain, batchID string, sent bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.row(d)
	if !l.HoldsBatch(batchID) {
		return nil
	}
	if sent {
		l.ProgressSent++
	} else {
		l.ProgressFailed++
	}
	touch(&l.UpdatedAt)
	return nil
}

// Put overwrites the lock row. Tests use it to simulate a crashed holder.
func (s *Locks) Put(l domain.ProcessLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[l.Domain] = &l
}

var _ lock.Store = (*Locks)(nil)
