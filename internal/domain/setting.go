package domain

import "time"

// Setting keys read by the dispatch core.
const (
	SettingMaxPerDay          = "max_per_day"
	SettingDaysInAdvance      = "days_in_advance"
	SettingRateLimitPerMinute = "rate_limit_per_minute"
	SettingTemplateName       = "template_name"
	SettingRemindersEnabled   = "reminders_enabled"
	SettingBulkSendEnabled    = "bulk_send_enabled"
)

type Setting struct {
	Key       string     `gorm:"type:varchar(64);primaryKey" json:"key"`
	Value     string     `gorm:"type:text;not null" json:"value"`
	UpdatedAt *time.Time `json:"updated_at"`
}
