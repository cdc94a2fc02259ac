package lock

import (
	"context"
	"errors"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store persists one ProcessLock row per domain. Every mutation is a compare-and-set on that row.
type Store interface {
	// Get reads the lock without taking row locks. A domain never used reads as idle.
	Get(ctx context.Context, d domain.Domain) (*domain.ProcessLock, error)
	// Acquire marks the domain as processing batchID if it is idle.
	Acquire(ctx context.Context, d domain.Domain, batchID string, total int) (bool, error)
	// ReleaseIf releases the lock only while it still holds batchID.
	ReleaseIf(ctx context.Context, d domain.Domain, batchID string) (bool, error)
	// Release clears the lock unconditionally.
	Release(ctx context.Context, d domain.Domain) error
	SetPaused(ctx context.Context, d domain.Domain, paused bool) error
	// SetTotal corrects the progress total while the lock still holds batchID.
	SetTotal(ctx context.Context, d domain.Domain, batchID string, total int) error
	// Increment bumps a progress counter while the lock still holds batchID.
	Increment(ctx context.Context, d domain.Domain, batchID string, sent bool) error
}

type store struct {
	db *gorm.DB
}

func NewLockStore(db *gorm.DB) Store {
	return &store{db: db}
}

func idleValues() map[string]any {
	return map[string]any{
		"processing":      false,
		"paused":          false,
		"active_batch_id": nil,
		"progress_sent":   0,
		"progress_failed": 0,
		"progress_total":  0,
		"updated_at":      time.Now().UTC(),
	}
}

func ensureRow(tx *gorm.DB, d domain.Domain) error {
	return tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.ProcessLock{Domain: d}).Error
}

func (s *store) Get(ctx context.Context, d domain.Domain) (*domain.ProcessLock, error) {
	var l domain.ProcessLock
	err := s.db.WithContext(ctx).Where("domain = ?", d).First(&l).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.ProcessLock{Domain: d}, nil
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// Acquire holds the row lock while checking the flag so concurrent callers serialize on it
func (s *store) Acquire(ctx context.Context, d domain.Domain, batchID string, total int) (bool, error) {
	acquired := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureRow(tx, d); err != nil {
			return err
		}

		var l domain.ProcessLock
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("domain = ?", d).First(&l).Error; err != nil {
			return err
		}
		if l.Processing {
			return nil
		}

		values := idleValues()
		values["processing"] = true
		values["active_batch_id"] = batchID
		values["progress_total"] = total
		if err := tx.Model(&domain.ProcessLock{}).Where("domain = ?", d).Updates(values).Error; err != nil {
			return err
		}
		acquired = true
		return nil
	})
	return acquired, err
}

func (s *store) ReleaseIf(ctx context.Context, d domain.Domain, batchID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&domain.ProcessLock{}).
		Where("domain = ? AND active_batch_id = ?", d, batchID).
		Updates(idleValues())
	return res.RowsAffected == 1, res.Error
}

func (s *store) Release(ctx context.Context, d domain.Domain) error {
	return s.db.WithContext(ctx).Model(&domain.ProcessLock{}).
		Where("domain = ?", d).
		Updates(idleValues()).Error
}

func (s *store) SetPaused(ctx context.Context, d domain.Domain, paused bool) error {
	tx := s.db.WithContext(ctx)
	if err := ensureRow(tx, d); err != nil {
		return err
	}
	return tx.Model(&domain.ProcessLock{}).
		Where("domain = ?", d).
		Updates(map[string]any{
			"paused":     paused,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (s *store) SetTotal(ctx context.Context, d domain.Domain, batchID string, total int) error {
	return s.db.WithContext(ctx).Model(&domain.ProcessLock{}).
		Where("domain = ? AND processing AND active_batch_id = ?", d, batchID).
		Updates(map[string]any{
			"progress_total": total,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (s *store) Increment(ctx context.Context, d domain.Domain, batchID string, sent bool) error {
	column := "progress_failed"
	if sent {
		column = "progress_sent"
	}
	return s.db.WithContext(ctx).Model(&domain.ProcessLock{}).
		Where("domain = ? AND processing AND active_batch_id = ?", d, batchID).
		Updates(map[string]any{
			column:       gorm.Expr(column + " + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}
