package batch

import (
	"context"
	"errors"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"gorm.io/gorm"
)

var activeStatuses = []domain.BatchStatus{domain.BatchDraft, domain.BatchProcessing}

type Repository interface {
	Create(ctx context.Context, b *domain.Batch) error
	Get(ctx context.Context, id string) (*domain.Batch, error)
	List(ctx context.Context, d domain.Domain, limit int) ([]domain.Batch, error)
	ListActive(ctx context.Context, d domain.Domain) ([]domain.Batch, error)
	Delete(ctx context.Context, id string) error

	// Activate moves a draft batch to processing with its final recipient list.
	Activate(ctx context.Context, id string, recipientIDs []int) error
	// RecordOutcome counts one definitive dispatch result.
	RecordOutcome(ctx context.Context, id string, sent bool) error
	// Transition moves the batch to `to` only if its current status is one of from.
	Transition(ctx context.Context, id string, from []domain.BatchStatus, to domain.BatchStatus) (bool, error)
	// FinishIfComplete marks a processing batch completed once every unit has reported.
	// Only one caller ever gets true for a given batch.
	FinishIfComplete(ctx context.Context, id string) (bool, error)
}

type repo struct {
	db *gorm.DB
}

func NewBatchRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, b *domain.Batch) error {
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *repo) Get(ctx context.Context, id string) (*domain.Batch, error) {
	var b domain.Batch
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) List(ctx context.Context, d domain.Domain, limit int) ([]domain.Batch, error) {
	var batches []domain.Batch
	tx := r.db.WithContext(ctx).Order("created_at DESC")
	if d != "" {
		tx = tx.Where("domain = ?", d)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	err := tx.Find(&batches).Error
	return batches, err
}

func (r *repo) ListActive(ctx context.Context, d domain.Domain) ([]domain.Batch, error) {
	var batches []domain.Batch
	err := r.db.WithContext(ctx).
		Where("domain = ? AND status IN ?", d, activeStatuses).
		Order("created_at ASC").
		Find(&batches).Error
	return batches, err
}

func (r *repo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, domain.BatchDraft).
		Delete(&domain.Batch{}).Error
}

func (r *repo) Activate(ctx context.Context, id string, recipientIDs []int) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Batch{}).
		Where("id = ? AND status = ?", id, domain.BatchDraft).
		Select("status", "total", "recipient_ids", "updated_at").
		Updates(&domain.Batch{
			Status:       domain.BatchProcessing,
			Total:        len(recipientIDs),
			RecipientIDs: recipientIDs,
			UpdatedAt:    &now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrBatchNotActive
	}
	return nil
}

func (r *repo) RecordOutcome(ctx context.Context, id string, sent bool) error {
	column := "failed_count"
	if sent {
		column = "sent_count"
	}
	return r.db.WithContext(ctx).Model(&domain.Batch{}).
		Where("id = ?", id).
		Updates(map[string]any{
			column:       gorm.Expr(column + " + 1"),
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *repo) Transition(ctx context.Context, id string, from []domain.BatchStatus, to domain.BatchStatus) (bool, error) {
	now := time.Now().UTC()
	values := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	if to.IsTerminal() {
		values["finished_at"] = now
	}
	res := r.db.WithContext(ctx).Model(&domain.Batch{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	return res.RowsAffected == 1, res.Error
}

func (r *repo) FinishIfComplete(ctx context.Context, id string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Batch{}).
		Where("id = ? AND status = ? AND sent_count + failed_count >= total", id, domain.BatchProcessing).
		Updates(map[string]any{
			"status":      domain.BatchCompleted,
			"finished_at": now,
			"updated_at":  now,
		})
	return res.RowsAffected == 1, res.Error
}
