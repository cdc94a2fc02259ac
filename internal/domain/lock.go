package domain

import (
	"math"
	"time"
)

// ProcessLock is the single shared record per domain that says whether a batch is running.
// Processing implies ActiveBatchID is set.
type ProcessLock struct {
	Domain         Domain     `gorm:"type:varchar(20);primaryKey" json:"domain"`
	Processing     bool       `gorm:"not null;default:false" json:"processing"`
	Paused         bool       `gorm:"not null;default:false" json:"paused"`
	ActiveBatchID  *string    `gorm:"type:uuid" json:"active_batch_id"`
	ProgressSent   int        `gorm:"not null;default:0" json:"progress_sent"`
	ProgressFailed int        `gorm:"not null;default:0" json:"progress_failed"`
	ProgressTotal  int        `gorm:"not null;default:0" json:"progress_total"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

func (l *ProcessLock) HoldsBatch(batchID string) bool {
	return l.Processing && l.ActiveBatchID != nil && *l.ActiveBatchID == batchID
}

// ProgressSnapshot is what pollers see.
type ProgressSnapshot struct {
	Domain     Domain  `json:"domain"`
	Processing bool    `json:"processing"`
	Paused     bool    `json:"paused"`
	BatchID    string  `json:"batch_id,omitempty"`
	Sent       int     `json:"sent"`
	Failed     int     `json:"failed"`
	Total      int     `json:"total"`
	Percentage float64 `json:"percentage"`
}

func (l *ProcessLock) Snapshot() ProgressSnapshot {
	s := ProgressSnapshot{
		Domain:     l.Domain,
		Processing: l.Processing,
		Paused:     l.Paused,
		Sent:       l.ProgressSent,
		Failed:     l.ProgressFailed,
		Total:      l.ProgressTotal,
	}
	if l.ActiveBatchID != nil {
		s.BatchID = *l.ActiveBatchID
	}
	if s.Total > 0 {
		pct := float64(s.Sent+s.Failed) / float64(s.Total) * 100
		s.Percentage = math.Min(100, math.Round(pct*10)/10)
	}
	return s
}
