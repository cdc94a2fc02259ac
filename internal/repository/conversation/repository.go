package conversation

import (
	"context"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	FindOrCreate(ctx context.Context, phoneNumber, displayName string) (int, error)
	AppendMessage(ctx context.Context, conversationID int, content string, outbound bool, providerMessageID string) error
}

type repo struct {
	db *gorm.DB
}

func NewConversationRepository(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) FindOrCreate(ctx context.Context, phoneNumber, displayName string) (int, error) {
	tx := r.db.WithContext(ctx)
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone_number"}},
		DoNothing: true,
	}).Create(&domain.Conversation{PhoneNumber: phoneNumber, DisplayName: displayName}).Error; err != nil {
		return 0, err
	}

	var c domain.Conversation
	if err := tx.Select("id").Where("phone_number = ?", phoneNumber).First(&c).Error; err != nil {
		return 0, err
	}
	return c.ID, nil
}

func (r *repo) AppendMessage(ctx context.Context, conversationID int, content string, outbound bool, providerMessageID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg := domain.Message{
			ConversationID:    conversationID,
			Content:           content,
			Outbound:          outbound,
			ProviderMessageID: providerMessageID,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		return tx.Model(&domain.Conversation{}).
			Where("id = ?", conversationID).
			Updates(map[string]any{
				"last_message_at": now,
				"updated_at":      now,
			}).Error
	})
}
