package domain

import "fmt"

type JobKind string

const (
	JobReminder          JobKind = "reminder"
	JobBulkSend          JobKind = "bulk_send"
	JobTemplateBroadcast JobKind = "template_broadcast"
)

func (k JobKind) Valid() bool {
	switch k {
	case JobReminder, JobBulkSend, JobTemplateBroadcast:
		return true
	}
	return false
}

// Domain returns the lane whose lock governs jobs of this kind.
func (k JobKind) Domain() Domain {
	if k == JobReminder {
		return DomainReminders
	}
	return DomainBulkSend
}

// SendJob is the unit of work handed to the execution substrate. Exactly one payload is set,
// matching Kind.
type SendJob struct {
	Kind        JobKind `json:"kind"`
	BatchID     string  `json:"batch_id"`
	RecipientID int     `json:"recipient_id"`

	Reminder  *ReminderPayload  `json:"reminder,omitempty"`
	BulkSend  *BulkSendPayload  `json:"bulk_send,omitempty"`
	Broadcast *BroadcastPayload `json:"broadcast,omitempty"`
}

type ReminderPayload struct {
	TemplateName string `json:"template_name"`
	LanguageCode string `json:"language_code"`
}

// BulkSendPayload carries defaults; per-recipient template, params or free text win when set.
type BulkSendPayload struct {
	TemplateName string `json:"template_name"`
	LanguageCode string `json:"language_code"`
	Body         string `json:"body"`
}

type BroadcastPayload struct {
	TemplateName string   `json:"template_name"`
	LanguageCode string   `json:"language_code"`
	Params       []string `json:"params"`
}

func (j SendJob) Domain() Domain {
	return j.Kind.Domain()
}

func (j SendJob) Validate() error {
	if j.BatchID == "" {
		return fmt.Errorf("job for recipient %d has no batch id", j.RecipientID)
	}
	var ok bool
	switch j.Kind {
	case JobReminder:
		ok = j.Reminder != nil && j.BulkSend == nil && j.Broadcast == nil
	case JobBulkSend:
		ok = j.BulkSend != nil && j.Reminder == nil && j.Broadcast == nil
	case JobTemplateBroadcast:
		ok = j.Broadcast != nil && j.Reminder == nil && j.BulkSend == nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownJobKind, j.Kind)
	}
	if !ok {
		return fmt.Errorf("job kind %q does not match its payload", j.Kind)
	}
	return nil
}

// NewSendJob builds the job for one recipient of a batch, taking the content reference from the batch.
func NewSendJob(b *Batch, recipientID int) SendJob {
	job := SendJob{Kind: b.Kind, BatchID: b.ID, RecipientID: recipientID}
	switch b.Kind {
	case JobReminder:
		job.Reminder = &ReminderPayload{TemplateName: b.TemplateName, LanguageCode: b.LanguageCode}
	case JobBulkSend:
		job.BulkSend = &BulkSendPayload{TemplateName: b.TemplateName, LanguageCode: b.LanguageCode, Body: b.Body}
	case JobTemplateBroadcast:
		job.Broadcast = &BroadcastPayload{TemplateName: b.TemplateName, LanguageCode: b.LanguageCode, Params: b.Params}
	}
	return job
}
