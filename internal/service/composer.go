package service

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/provider"
)

var errMissingContent = errors.New("missing required field")

// Composer builds the provider message for one recipient of a job. to is the normalized number.
type Composer interface {
	Compose(job domain.SendJob, r *domain.Recipient, to string) (provider.Message, error)
}

type ComposerFunc func(job domain.SendJob, r *domain.Recipient, to string) (provider.Message, error)

func (f ComposerFunc) Compose(job domain.SendJob, r *domain.Recipient, to string) (provider.Message, error) {
	return f(job, r, to)
}

// DefaultComposers returns one composer per job kind. Appointment times are rendered in loc.
func DefaultComposers(loc *time.Location) map[domain.JobKind]Composer {
	if loc == nil {
		loc = time.Local
	}
	return map[domain.JobKind]Composer{
		domain.JobReminder:          reminderComposer(loc),
		domain.JobBulkSend:          ComposerFunc(composeBulkSend),
		domain.JobTemplateBroadcast: ComposerFunc(composeBroadcast),
	}
}

// reminderComposer fills the template with the stored params, or with the patient name and the
// appointment date and time when none are stored.
func reminderComposer(loc *time.Location) Composer {
	return ComposerFunc(func(job domain.SendJob, r *domain.Recipient, to string) (provider.Message, error) {
		p := job.Reminder
		if p == nil || p.TemplateName == "" {
			return provider.Message{}, fmt.Errorf("%w: template name", errMissingContent)
		}
		params := slices.Clone(r.Params)
		if len(params) == 0 {
			if r.AppointmentAt == nil {
				return provider.Message{}, fmt.Errorf("%w: appointment date", errMissingContent)
			}
			at := r.AppointmentAt.In(loc)
			params = []string{r.DisplayName, at.Format("2006-01-02"), at.Format("15:04")}
		}
		return provider.Message{
			To:           to,
			TemplateName: p.TemplateName,
			LanguageCode: p.LanguageCode,
			Params:       params,
		}, nil
	})
}

// composeBulkSend prefers the recipient's own template or text over the batch defaults.
func composeBulkSend(job domain.SendJob, r *domain.Recipient, to string) (provider.Message, error) {
	p := job.BulkSend
	if p == nil {
		return provider.Message{}, fmt.Errorf("%w: bulk send payload", errMissingContent)
	}

	msg := provider.Message{To: to, LanguageCode: p.LanguageCode}
	if r.LanguageCode != "" {
		msg.LanguageCode = r.LanguageCode
	}
	switch {
	case r.TemplateName != "":
		msg.TemplateName = r.TemplateName
		msg.Params = slices.Clone(r.Params)
	case r.Body != "":
		msg.Body = r.Body
	case p.TemplateName != "":
		msg.TemplateName = p.TemplateName
		msg.Params = slices.Clone(r.Params)
	case p.Body != "":
		msg.Body = p.Body
	default:
		return provider.Message{}, fmt.Errorf("%w: template or body", errMissingContent)
	}
	return msg, nil
}

func composeBroadcast(job domain.SendJob, r *domain.Recipient, to string) (provider.Message, error) {
	p := job.Broadcast
	if p == nil || p.TemplateName == "" {
		return provider.Message{}, fmt.Errorf("%w: template name", errMissingContent)
	}
	params := slices.Clone(p.Params)
	if len(params) == 0 {
		params = slices.Clone(r.Params)
	}
	return provider.Message{
		To:           to,
		TemplateName: p.TemplateName,
		LanguageCode: p.LanguageCode,
		Params:       params,
	}, nil
}
