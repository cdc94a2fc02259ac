package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/batch"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/lock"
)

// a draft batch older than this with the lock held means its starter died before activating it
const defaultDraftTimeout = time.Minute

// ProcessLock guards each domain so that at most one batch runs at a time, and serves progress
// to pollers.
type ProcessLock struct {
	locks        lock.Store
	batches      batch.Repository
	draftTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewProcessLock(locks lock.Store, batches batch.Repository, logger *slog.Logger) *ProcessLock {
	return &ProcessLock{
		locks:        locks,
		batches:      batches,
		draftTimeout: defaultDraftTimeout,
		now:          time.Now,
		logger:       logger,
	}
}

// TryAcquire takes the domain lock for batchID. A stale lock is cleared first; a live one makes it
// return false, which callers treat as "already running", not as an error.
func (p *ProcessLock) TryAcquire(ctx context.Context, d domain.Domain, batchID string, total int) (bool, error) {
	ok, err := p.locks.Acquire(ctx, d, batchID, total)
	if err != nil {
		return false, fmt.Errorf("failed to acquire %s lock: %w", d, err)
	}
	if ok {
		return true, nil
	}

	stale, err := p.StaleCheck(ctx, d)
	if err != nil {
		return false, err
	}
	if stale {
		ok, err = p.locks.Acquire(ctx, d, batchID, total)
		if err != nil {
			return false, fmt.Errorf("failed to acquire %s lock: %w", d, err)
		}
	}
	if !ok {
		p.logger.Info("batch already running, skipping", "domain", d)
	}
	return ok, nil
}

// Busy reports whether a live batch holds the domain, clearing a stale lock on the way.
func (p *ProcessLock) Busy(ctx context.Context, d domain.Domain) (bool, error) {
	if _, err := p.StaleCheck(ctx, d); err != nil {
		return false, err
	}
	l, err := p.locks.Get(ctx, d)
	if err != nil {
		return false, err
	}
	return l.Processing, nil
}

// StaleCheck clears the lock when it points at a batch that is missing, terminal, or a draft
// abandoned by a crashed starter. It reports whether it cleared anything.
func (p *ProcessLock) StaleCheck(ctx context.Context, d domain.Domain) (bool, error) {
	l, err := p.locks.Get(ctx, d)
	if err != nil {
		return false, fmt.Errorf("failed to read %s lock: %w", d, err)
	}
	if !l.Processing {
		return false, nil
	}
	if l.ActiveBatchID == nil {
		p.logger.Warn("clearing stale lock without batch", "domain", d)
		return true, p.locks.Release(ctx, d)
	}

	batchID := *l.ActiveBatchID
	b, err := p.batches.Get(ctx, batchID)
	var reason string
	switch {
	case errors.Is(err, domain.ErrNotFound):
		reason = "batch missing"
	case err != nil:
		return false, fmt.Errorf("failed to read batch %s: %w", batchID, err)
	case b.Status.IsTerminal():
		reason = "batch " + string(b.Status)
	case b.Status == domain.BatchDraft && p.now().Sub(b.CreatedAt) > p.draftTimeout:
		reason = "batch abandoned in draft"
		if _, err := p.batches.Transition(ctx, batchID, []domain.BatchStatus{domain.BatchDraft}, domain.BatchFailed); err != nil {
			return false, err
		}
	default:
		return false, nil
	}

	released, err := p.locks.ReleaseIf(ctx, d, batchID)
	if err != nil {
		return false, fmt.Errorf("failed to release stale %s lock: %w", d, err)
	}
	if released {
		p.logger.Warn("cleared stale lock", "domain", d, "batchId", batchID, "reason", reason)
	}
	return released, nil
}

func (p *ProcessLock) Status(ctx context.Context, d domain.Domain) (domain.ProgressSnapshot, error) {
	l, err := p.locks.Get(ctx, d)
	if err != nil {
		return domain.ProgressSnapshot{}, err
	}
	return l.Snapshot(), nil
}

func (p *ProcessLock) Get(ctx context.Context, d domain.Domain) (*domain.ProcessLock, error) {
	return p.locks.Get(ctx, d)
}

func (p *ProcessLock) Paused(ctx context.Context, d domain.Domain) (bool, error) {
	l, err := p.locks.Get(ctx, d)
	if err != nil {
		return false, err
	}
	return l.Paused, nil
}

// Pause makes dispatch units of the running batch leave their recipients pending.
func (p *ProcessLock) Pause(ctx context.Context, d domain.Domain) error {
	l, err := p.locks.Get(ctx, d)
	if err != nil {
		return err
	}
	if !l.Processing {
		return domain.ErrBatchNotActive
	}
	return p.locks.SetPaused(ctx, d, true)
}

func (p *ProcessLock) Resume(ctx context.Context, d domain.Domain) error {
	return p.locks.SetPaused(ctx, d, false)
}

// Release clears the domain whatever batch holds it. Safe to call repeatedly.
func (p *ProcessLock) Release(ctx context.Context, d domain.Domain) error {
	return p.locks.Release(ctx, d)
}

// ReleaseBatch clears the domain only if batchID still holds it.
func (p *ProcessLock) ReleaseBatch(ctx context.Context, d domain.Domain, batchID string) (bool, error) {
	return p.locks.ReleaseIf(ctx, d, batchID)
}

func (p *ProcessLock) SetTotal(ctx context.Context, d domain.Domain, batchID string, total int) error {
	return p.locks.SetTotal(ctx, d, batchID, total)
}

func (p *ProcessLock) IncrementSent(ctx context.Context, d domain.Domain, batchID string) error {
	return p.locks.Increment(ctx, d, batchID, true)
}

func (p *ProcessLock) IncrementFailed(ctx context.Context, d domain.Domain, batchID string) error {
	return p.locks.Increment(ctx, d, batchID, false)
}
