// Package resolver turns a selection request into the concrete, ordered list of recipients a
// batch will send to.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/phone"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/recipient"
)

type Policy string

const (
	PolicyAllEligible Policy = "all_eligible"
	PolicyExplicitIDs Policy = "explicit_ids"
	PolicyUploaded    Policy = "uploaded"
)

func (p Policy) Valid() bool {
	switch p {
	case PolicyAllEligible, PolicyExplicitIDs, PolicyUploaded:
		return true
	}
	return false
}

// UploadEntry is one row of an uploaded contact list.
type UploadEntry struct {
	Phone  string   `json:"phone"`
	Name   string   `json:"name"`
	Params []string `json:"params"`
	Body   string   `json:"body"`
}

type Request struct {
	Domain   domain.Domain
	Policy   Policy
	IDs      []int
	Uploaded []UploadEntry
	// DaysAhead selects appointments on the calendar day now+DaysAhead. Reminders only.
	DaysAhead int
	Limit     int
	// DryRun resolves without writing anything.
	DryRun bool
}

// Rejection explains why an uploaded row or requested id was left out.
type Rejection struct {
	Index  int    `json:"index"`
	ID     int    `json:"id,omitempty"`
	Phone  string `json:"phone,omitempty"`
	Reason string `json:"reason"`
}

type Result struct {
	Recipients []domain.Recipient `json:"recipients"`
	// Invalid recipients were marked permanently failed during resolution.
	Invalid  []domain.Recipient `json:"invalid"`
	Rejected []Rejection        `json:"rejected"`
	// Truncated counts eligible recipients dropped by the limit.
	Truncated int `json:"truncated"`
}

type Resolver struct {
	recipients recipient.Repository
	normalizer *phone.Normalizer
	location   *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

type Option func(*Resolver)

// WithLocation sets the calendar used to compute the target appointment day.
func WithLocation(loc *time.Location) Option {
	return func(r *Resolver) {
		if loc != nil {
			r.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		r.now = now
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func New(recipients recipient.Repository, normalizer *phone.Normalizer, opts ...Option) *Resolver {
	r := &Resolver{
		recipients: recipients,
		normalizer: normalizer,
		location:   time.Local,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TargetDay returns the [start, end) window of the calendar day daysAhead from now.
func (r *Resolver) TargetDay(daysAhead int) (time.Time, time.Time) {
	now := r.now().In(r.location)
	start := time.Date(now.Year(), now.Month(), now.Day()+daysAhead, 0, 0, 0, 0, r.location)
	return start, start.AddDate(0, 0, 1)
}

func (r *Resolver) Resolve(ctx context.Context, req Request) (*Result, error) {
	if !req.Domain.Valid() {
		return nil, fmt.Errorf("%w: unknown domain %q", domain.ErrInvalidRequest, req.Domain)
	}

	var (
		res *Result
		err error
	)
	switch req.Policy {
	case PolicyAllEligible:
		res, err = r.allEligible(ctx, req)
	case PolicyExplicitIDs:
		res, err = r.explicitIDs(ctx, req)
	case PolicyUploaded:
		res, err = r.uploaded(ctx, req)
	default:
		return nil, fmt.Errorf("%w: unknown selection policy %q", domain.ErrInvalidRequest, req.Policy)
	}
	if err != nil {
		return nil, err
	}

	if req.Limit > 0 && len(res.Recipients) > req.Limit {
		res.Truncated = len(res.Recipients) - req.Limit
		res.Recipients = res.Recipients[:req.Limit]
	}
	return res, nil
}

func (r *Resolver) allEligible(ctx context.Context, req Request) (*Result, error) {
	q := recipient.EligibleQuery{Domain: req.Domain}
	if req.Domain == domain.DomainReminders {
		from, to := r.TargetDay(req.DaysAhead)
		q.AppointmentFrom, q.AppointmentTo = &from, &to
	}

	candidates, err := r.recipients.FindEligible(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to find eligible recipients: %w", err)
	}
	return r.screen(ctx, candidates, req.DryRun)
}

func (r *Resolver) explicitIDs(ctx context.Context, req Request) (*Result, error) {
	found, err := r.recipients.FindByIDs(ctx, req.Domain, req.IDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load recipients: %w", err)
	}
	byID := make(map[int]domain.Recipient, len(found))
	for _, rec := range found {
		byID[rec.ID] = rec
	}

	var (
		ordered  []domain.Recipient
		rejected []Rejection
		seen     = make(map[int]bool, len(req.IDs))
	)
	for i, id := range req.IDs {
		if seen[id] {
			rejected = append(rejected, Rejection{Index: i, ID: id, Reason: "duplicate id"})
			continue
		}
		seen[id] = true

		rec, ok := byID[id]
		switch {
		case !ok:
			rejected = append(rejected, Rejection{Index: i, ID: id, Reason: "not found"})
		case !rec.Eligible():
			rejected = append(rejected, Rejection{Index: i, ID: id, Reason: fmt.Sprintf("not eligible (%s)", rec.SendStatus)})
		case rec.PhoneNumber == "":
			rejected = append(rejected, Rejection{Index: i, ID: id, Reason: "missing phone number"})
		default:
			ordered = append(ordered, rec)
		}
	}

	res, err := r.screen(ctx, ordered, req.DryRun)
	if err != nil {
		return nil, err
	}
	res.Rejected = append(rejected, res.Rejected...)
	return res, nil
}

// uploaded stores the list as bulk-send recipients. Invalid numbers are stored already failed so
// the operator can see them; duplicates within the upload are not stored.
func (r *Resolver) uploaded(ctx context.Context, req Request) (*Result, error) {
	if req.Domain != domain.DomainBulkSend {
		return nil, fmt.Errorf("%w: uploaded lists are only accepted for %s", domain.ErrInvalidRequest, domain.DomainBulkSend)
	}
	if req.DryRun {
		return nil, fmt.Errorf("%w: uploaded lists cannot be previewed", domain.ErrInvalidRequest)
	}
	res := &Result{}
	rows := make([]domain.Recipient, 0, len(req.Uploaded))
	seen := make(map[string]int, len(req.Uploaded))

	for i, entry := range req.Uploaded {
		key := phone.Digits(entry.Phone)
		normalized, err := r.normalizer.Normalize(entry.Phone)
		if err == nil {
			key = normalized
		}
		if first, dup := seen[key]; dup && key != "" {
			res.Rejected = append(res.Rejected, Rejection{
				Index:  i,
				Phone:  entry.Phone,
				Reason: fmt.Sprintf("duplicate of row %d", first),
			})
			continue
		}
		seen[key] = i

		row := domain.Recipient{
			Domain:      domain.DomainBulkSend,
			PhoneNumber: normalized,
			DisplayName: entry.Name,
			Params:      slices.Clone(entry.Params),
			Body:        entry.Body,
			SendStatus:  domain.StatusPending,
		}
		if err != nil {
			row.PhoneNumber = key
			row.SendStatus = domain.StatusFailed
			row.FailureReason = domain.ReasonInvalidPhone
		}
		rows = append(rows, row)
	}

	if err := r.recipients.Create(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to store uploaded recipients: %w", err)
	}

	for _, row := range rows {
		if row.SendStatus == domain.StatusFailed {
			res.Invalid = append(res.Invalid, row)
		} else {
			res.Recipients = append(res.Recipients, row)
		}
	}
	if len(res.Invalid) > 0 {
		r.logger.Info("uploaded list contained invalid numbers", "invalid", len(res.Invalid))
	}
	return res, nil
}

// screen normalizes phones, marks invalid numbers permanently failed and drops duplicate ids.
func (r *Resolver) screen(ctx context.Context, candidates []domain.Recipient, dryRun bool) (*Result, error) {
	res := &Result{Recipients: make([]domain.Recipient, 0, len(candidates))}
	seen := make(map[int]bool, len(candidates))

	for _, rec := range candidates {
		if seen[rec.ID] {
			continue
		}
		seen[rec.ID] = true

		normalized, err := r.normalizer.Normalize(rec.PhoneNumber)
		if err != nil {
			if !dryRun {
				if err := r.recipients.MarkInvalid(ctx, rec.ID, domain.ReasonInvalidPhone); err != nil {
					return nil, fmt.Errorf("failed to mark recipient %d invalid: %w", rec.ID, err)
				}
			}
			rec.SendStatus = domain.StatusFailed
			rec.FailureReason = domain.ReasonInvalidPhone
			rec.FailureRetryable = false
			res.Invalid = append(res.Invalid, rec)
			r.logger.Warn("recipient has an invalid phone number", "recipientId", rec.ID)
			continue
		}
		rec.PhoneNumber = normalized
		res.Recipients = append(res.Recipients, rec)
	}
	return res, nil
}
