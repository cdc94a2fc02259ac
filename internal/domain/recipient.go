package domain

import (
	"time"
)

// Domain names an independent dispatch lane. Each lane has its own process lock.
type Domain string

const (
	DomainReminders Domain = "reminders"
	DomainBulkSend  Domain = "bulk_send"
)

// Domains lists every dispatch lane known to the service.
var Domains = []Domain{DomainReminders, DomainBulkSend}

func (d Domain) Valid() bool {
	switch d {
	case DomainReminders, DomainBulkSend:
		return true
	}
	return false
}

type SendStatus string

const (
	StatusPending    SendStatus = "pending"
	StatusProcessing SendStatus = "processing"
	StatusSent       SendStatus = "sent"
	StatusFailed     SendStatus = "failed"

	// set by inbound replies to appointment reminders, only observed here
	StatusConfirmed           SendStatus = "confirmed"
	StatusCancelled           SendStatus = "cancelled"
	StatusRescheduleRequested SendStatus = "reschedule_requested"
)

// ReasonInvalidPhone is stored on recipients whose number can never be delivered to.
const ReasonInvalidPhone = "invalid phone number"

type Recipient struct {
	ID                int        `gorm:"primaryKey" json:"id"`
	Domain            Domain     `gorm:"type:varchar(20);not null;index" json:"domain"`
	PhoneNumber       string     `gorm:"type:varchar(32);not null" json:"phone_number"`
	DisplayName       string     `gorm:"type:varchar(120)" json:"display_name"`
	TemplateName      string     `gorm:"type:varchar(120)" json:"template_name"`
	LanguageCode      string     `gorm:"type:varchar(16)" json:"language_code"`
	Params            []string   `gorm:"serializer:json" json:"params"`
	Body              string     `gorm:"type:text" json:"body"`
	AppointmentAt     *time.Time `gorm:"index" json:"appointment_at"`
	SendStatus        SendStatus `gorm:"type:varchar(32);not null;index" json:"send_status"`
	FailureReason     string     `gorm:"type:text" json:"failure_reason"`
	FailureRetryable  bool       `gorm:"not null;default:false" json:"failure_retryable"`
	ProviderMessageID string     `gorm:"type:varchar(128)" json:"provider_message_id"`
	BatchID           *string    `gorm:"type:uuid;index" json:"batch_id"`
	ClaimedAt         *time.Time `json:"claimed_at"`
	Attempts          int        `gorm:"not null;default:0" json:"attempts"`
	SentAt            *time.Time `json:"sent_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         *time.Time `json:"updated_at"`
}

// Eligible reports whether the recipient may be picked up by an automatic resolution pass.
// Permanently failed recipients stay out until someone clears them by hand.
func (r *Recipient) Eligible() bool {
	switch r.SendStatus {
	case StatusPending:
		return r.FailureReason == "" || r.FailureRetryable
	case StatusFailed:
		return r.FailureRetryable
	}
	return false
}

// InBatch reports whether the recipient is currently assigned to the given batch.
func (r *Recipient) InBatch(batchID string) bool {
	return r.BatchID != nil && *r.BatchID == batchID
}
