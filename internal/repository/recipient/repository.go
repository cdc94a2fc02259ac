package recipient

import (
	"context"
	"errors"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EligibleQuery filters recipients for an automatic resolution pass. A nil window means no
// appointment filter.
type EligibleQuery struct {
	Domain          domain.Domain
	AppointmentFrom *time.Time
	AppointmentTo   *time.Time
	Limit           int
}

type Repository interface {
	Create(ctx context.Context, recipients []domain.Recipient) error
	Get(ctx context.Context, id int) (*domain.Recipient, error)
	FindByIDs(ctx context.Context, d domain.Domain, ids []int) ([]domain.Recipient, error)
	FindEligible(ctx context.Context, q EligibleQuery) ([]domain.Recipient, error)
	MarkInvalid(ctx context.Context, id int, reason string) error

	// AssignBatch attaches the eligible recipients among ids to batchID and returns the ids it took.
	AssignBatch(ctx context.Context, batchID string, ids []int) ([]int, error)
	PendingInBatch(ctx context.Context, batchID string) ([]int, error)

	// Claim moves a pending recipient of batchID to processing. False means another unit owns it
	// or it left the batch.
	Claim(ctx context.Context, id int, batchID string) (bool, error)
	Unclaim(ctx context.Context, id int, batchID string) error
	// MarkSent also accepts a recipient whose claim was released while the send was in flight.
	MarkSent(ctx context.Context, id int, batchID, providerMessageID string, attempts int, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id int, batchID, reason string, retryable bool, attempts int) (bool, error)

	// ReleaseClaims returns every processing recipient of batchID to pending.
	ReleaseClaims(ctx context.Context, batchID string) (int, error)
	// RecoverClaims returns claims older than before to pending and reports them.
	RecoverClaims(ctx context.Context, before time.Time) ([]domain.Recipient, error)

	ListFailed(ctx context.Context, d domain.Domain, limit, offset int) ([]domain.Recipient, error)
	Reset(ctx context.Context, id int) error
}

const eligibleCond = "(send_status = ? AND (failure_reason = '' OR failure_retryable)) OR (send_status = ? AND failure_retryable)"

type repo struct {
	db *gorm.DB
}

func NewRecipientRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, recipients []domain.Recipient) error {
	if len(recipients) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&recipients).Error
}

func (r *repo) Get(ctx context.Context, id int) (*domain.Recipient, error) {
	var rec domain.Recipient
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repo) FindByIDs(ctx context.Context, d domain.Domain, ids []int) ([]domain.Recipient, error) {
	var recipients []domain.Recipient
	if len(ids) == 0 {
		return recipients, nil
	}
	err := r.db.WithContext(ctx).
		Where("domain = ? AND id IN ?", d, ids).
		Find(&recipients).Error
	return recipients, err
}

func (r *repo) FindEligible(ctx context.Context, q EligibleQuery) ([]domain.Recipient, error) {
	var recipients []domain.Recipient
	tx := r.db.WithContext(ctx).
		Where("domain = ?", q.Domain).
		Where(eligibleCond, domain.StatusPending, domain.StatusFailed).
		Where("phone_number <> ''")

	if q.AppointmentFrom != nil || q.AppointmentTo != nil {
		tx = tx.Where("appointment_at IS NOT NULL")
		if q.AppointmentFrom != nil {
			tx = tx.Where("appointment_at >= ?", *q.AppointmentFrom)
		}
		if q.AppointmentTo != nil {
			tx = tx.Where("appointment_at < ?", *q.AppointmentTo)
		}
		tx = tx.Order("appointment_at ASC").Order("id ASC")
	} else {
		tx = tx.Order("id ASC")
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	err := tx.Find(&recipients).Error
	return recipients, err
}

func (r *repo) MarkInvalid(ctx context.Context, id int, reason string) error {
	return r.db.WithContext(ctx).Model(&domain.Recipient{}).
		Where("id = ? AND send_status IN ?", id, []domain.SendStatus{domain.StatusPending, domain.StatusFailed}).
		Updates(map[string]any{
			"send_status":       domain.StatusFailed,
			"failure_reason":    reason,
			"failure_retryable": false,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// AssignBatch locks the eligible rows among ids and points them at batchID, as pending
func (r *repo) AssignBatch(ctx context.Context, batchID string, ids []int) ([]int, error) {
	var assigned []int
	if len(ids) == 0 {
		return assigned, nil
	}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []domain.Recipient
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Select("id").
			Where("id IN ?", ids).
			Where(eligibleCond, domain.StatusPending, domain.StatusFailed).
			Find(&rows).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}

		assigned = make([]int, 0, len(rows))
		for _, row := range rows {
			assigned = append(assigned, row.ID)
		}

		return tx.Model(&domain.Recipient{}).
			Where("id IN ?", assigned).
			Updates(map[string]any{
				"batch_id":    batchID,
				"send_status": domain.StatusPending,
				"claimed_at":  nil,
				"updated_at":  time.Now().UTC(),
			}).Error
	})
	return assigned, err
}

func (r *repo) PendingInBatch(ctx context.Context, batchID string) ([]int, error) {
	var ids []int
	err := r.db.WithContext(ctx).Model(&domain.Recipient{}).
		Where("batch_id = ? AND send_status = ?", batchID, domain.StatusPending).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repo) Claim(ctx context.Context, id int, batchID string) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&domain.Recipient{}).
		Where("id = ? AND batch_id = ? AND send_status = ?", id, batchID, domain.StatusPending).
		Updates(map[string]any{
			"send_status": domain.StatusProcessing,
			"claimed_at":  now,
			"updated_at":  now,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repo) Unclaim(ctx context.Context, id int, batchID string) error {
	return r.db.WithContext(ctx).Model(&domain.Recipient{}).
		Where("id = ? AND batch_id = ? AND send_status = ?", id, batchID, domain.StatusProcessing).
		Updates(map[string]any{
			"send_status": domain.StatusPending,
			"claimed_at":  nil,
			"updated_at":  time.Now().UTC(),
		}).Error
}

func (r *repo) MarkSent(ctx context.Context, id int, batchID, providerMessageID string, attempts int, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Recipient{}).
		Where("id = ? AND batch_id = ? AND send_status IN ?", id, batchID, []domain.SendStatus{domain.StatusProcessing, domain.StatusPending}).
		Updates(map[string]any{
			"send_status":         domain.StatusSent,
			"provider_message_id": providerMessageID,
			"failure_reason":      "",
			"failure_retryable":   false,
			"claimed_at":          nil,
			"attempts":            gorm.Expr("attempts + ?", attempts),
			"sent_at":             at,
			"updated_at":          time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repo) MarkFailed(ctx context.Context, id int, batchID, reason string, retryable bool, attempts int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Recipient{}).
		Where("id = ? AND batch_id = ? AND send_status = ?", id, batchID, domain.StatusProcessing).
		Updates(map[string]any{
			"send_status":       domain.StatusFailed,
			"failure_reason":    reason,
			"failure_retryable": retryable,
			"claimed_at":        nil,
			"attempts":          gorm.Expr("attempts + ?", attempts),
			"updated_at":        time.Now().UTC(),
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repo) ReleaseClaims(ctx context.Context, batchID string) (int, error) {
	res := r.db.WithContext(ctx).Model(&domain.Recipient{}).
		Where("batch_id = ? AND send_status = ?", batchID, domain.StatusProcessing).
		Updates(map[string]any{
			"send_status": domain.StatusPending,
			"claimed_at":  nil,
			"updated_at":  time.Now().UTC(),
		})
	return int(res.RowsAffected), res.Error
}

// RecoverClaims picks expired claims with row locks so two sweeps never recover the same row
func (r *repo) RecoverClaims(ctx context.Context, before time.Time) ([]domain.Recipient, error) {
	var recovered []domain.Recipient
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("send_status = ? AND claimed_at < ?", domain.StatusProcessing, before).
			Find(&recovered).Error; err != nil {
			return err
		}
		if len(recovered) == 0 {
			return nil
		}

		ids := make([]int, 0, len(recovered))
		for i := range recovered {
			ids = append(ids, recovered[i].ID)
			recovered[i].SendStatus = domain.StatusPending
			recovered[i].ClaimedAt = nil
		}

		return tx.Model(&domain.Recipient{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"send_status": domain.StatusPending,
				"claimed_at":  nil,
				"updated_at":  time.Now().UTC(),
			}).Error
	})
	return recovered, err
}

func (r *repo) ListFailed(ctx context.Context, d domain.Domain, limit, offset int) ([]domain.Recipient, error) {
	var recipients []domain.Recipient
	tx := r.db.WithContext(ctx).Where("send_status = ?", domain.StatusFailed)
	if d != "" {
		tx = tx.Where("domain = ?", d)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	err := tx.Offset(offset).Order("updated_at DESC").Order("id DESC").Find(&recipients).Error
	return recipients, err
}

// Reset clears the stored failure so the next resolution pass picks the recipient up again
func (r *repo) Reset(ctx context.Context, id int) error {
	res := r.db.WithContext(ctx).Model(&domain.Recipient{}).
		Where("id = ? AND send_status = ?", id, domain.StatusFailed).
		Updates(map[string]any{
			"send_status":       domain.StatusPending,
			"failure_reason":    "",
			"failure_retryable": false,
			"batch_id":          nil,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
