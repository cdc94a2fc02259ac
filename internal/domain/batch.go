package domain

import "time"

type BatchStatus string

const (
	BatchDraft      BatchStatus = "draft"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchCancelled  BatchStatus = "cancelled"
)

func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchCompleted, BatchFailed, BatchCancelled:
		return true
	}
	return false
}

// Batch is one dispatch run over a bounded set of recipients.
type Batch struct {
	ID           string      `gorm:"type:uuid;primaryKey" json:"id"`
	Domain       Domain      `gorm:"type:varchar(20);not null;index" json:"domain"`
	Kind         JobKind     `gorm:"type:varchar(32);not null" json:"kind"`
	Label        string      `gorm:"type:varchar(200)" json:"label"`
	Status       BatchStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	Total        int         `gorm:"not null" json:"total"`
	SentCount    int         `gorm:"not null;default:0" json:"sent_count"`
	FailedCount  int         `gorm:"not null;default:0" json:"failed_count"`
	RecipientIDs []int       `gorm:"column:recipient_ids;serializer:json" json:"recipient_ids"`
	TemplateName string      `gorm:"type:varchar(120)" json:"template_name"`
	LanguageCode string      `gorm:"type:varchar(16)" json:"language_code"`
	Params       []string    `gorm:"serializer:json" json:"params"`
	Body         string      `gorm:"type:text" json:"body"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    *time.Time  `json:"updated_at"`
	FinishedAt   *time.Time  `json:"finished_at"`
}

// Reported is the number of dispatch units that reached a definitive outcome.
func (b *Batch) Reported() int {
	return b.SentCount + b.FailedCount
}

func (b *Batch) AllReported() bool {
	return b.Reported() >= b.Total
}
