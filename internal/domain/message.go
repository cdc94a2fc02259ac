package domain

import "time"

// Conversation groups every message exchanged with one phone number.
type Conversation struct {
	ID            int        `gorm:"primaryKey" json:"id"`
	PhoneNumber   string     `gorm:"type:varchar(32);not null;uniqueIndex" json:"phone_number"`
	DisplayName   string     `gorm:"type:varchar(120)" json:"display_name"`
	LastMessageAt *time.Time `json:"last_message_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
}

type Message struct {
	ID                int       `gorm:"primaryKey" json:"id"`
	ConversationID    int       `gorm:"not null;index" json:"conversation_id"`
	Content           string    `gorm:"type:text;not null" json:"content"`
	Outbound          bool      `gorm:"not null" json:"outbound"`
	ProviderMessageID string    `gorm:"type:varchar(128);index" json:"provider_message_id"`
	CreatedAt         time.Time `json:"created_at"`
}
