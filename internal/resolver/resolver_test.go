package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/phone"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bogota = time.FixedZone("COT", -5*3600)

func newResolver(repo *memory.Recipients) *Resolver {
	now := time.Date(2026, 10, 16, 22, 30, 0, 0, bogota)
	return New(repo, phone.NewNormalizer("57"),
		WithLocation(bogota),
		WithClock(func() time.Time { return now }),
	)
}

func appointment(day, hour int) *time.Time {
	t := time.Date(2026, 10, day, hour, 0, 0, 0, bogota)
	return &t
}

func TestTargetDay(t *testing.T) {
	r := newResolver(memory.NewRecipients())

	from, to := r.TargetDay(2)
	assert.Equal(t, time.Date(2026, 10, 18, 0, 0, 0, 0, bogota), from)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, bogota), to)

	from, _ = r.TargetDay(1)
	assert.Equal(t, 17, from.Day())
}

func TestResolveRemindersForTargetDay(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRecipients()
	require.NoError(t, repo.Create(ctx, []domain.Recipient{
		{Domain: domain.DomainReminders, PhoneNumber: "300 123 4567", AppointmentAt: appointment(18, 14)},
		{Domain: domain.DomainReminders, PhoneNumber: "3001234568", AppointmentAt: appointment(18, 8)},
		{Domain: domain.DomainReminders, PhoneNumber: "3001234569", AppointmentAt: appointment(17, 8)},
		{Domain: domain.DomainReminders, PhoneNumber: "12345", AppointmentAt: appointment(18, 9)},
		{Domain: domain.DomainReminders, PhoneNumber: "3001234570", AppointmentAt: appointment(18, 10), SendStatus: domain.StatusSent},
		{Domain: domain.DomainReminders, PhoneNumber: "3001234571", AppointmentAt: appointment(18, 11), SendStatus: domain.StatusFailed, FailureReason: "rejected"},
		{Domain: domain.DomainReminders, PhoneNumber: "3001234572", AppointmentAt: appointment(18, 12), SendStatus: domain.StatusFailed, FailureReason: "timeout", FailureRetryable: true},
	}))

	res, err := newResolver(repo).Resolve(ctx, Request{
		Domain:    domain.DomainReminders,
		Policy:    PolicyAllEligible,
		DaysAhead: 2,
	})
	require.NoError(t, err)

	ids := make([]int, 0, len(res.Recipients))
	for _, r := range res.Recipients {
		ids = append(ids, r.ID)
	}
	// soonest first; sent and permanently failed are out
	assert.Equal(t, []int{2, 7, 1}, ids)
	assert.Equal(t, "573001234567", res.Recipients[2].PhoneNumber)

	require.Len(t, res.Invalid, 1)
	assert.Equal(t, 4, res.Invalid[0].ID)
	stored, _ := repo.Get(ctx, 4)
	assert.Equal(t, domain.StatusFailed, stored.SendStatus)
	assert.Equal(t, domain.ReasonInvalidPhone, stored.FailureReason)
	assert.False(t, stored.Eligible())
}

func TestResolveLimit(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRecipients()
	rows := make([]domain.Recipient, 5)
	for i := range rows {
		rows[i] = domain.Recipient{Domain: domain.DomainBulkSend, PhoneNumber: "300123456" + string(rune('0'+i))}
	}
	require.NoError(t, repo.Create(ctx, rows))

	res, err := newResolver(repo).Resolve(ctx, Request{Domain: domain.DomainBulkSend, Policy: PolicyAllEligible, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, res.Recipients, 3)
	assert.Equal(t, 2, res.Truncated)
	assert.Equal(t, 1, res.Recipients[0].ID)
}

func TestResolveExplicitIDsKeepsInputOrder(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRecipients()
	require.NoError(t, repo.Create(ctx, []domain.Recipient{
		{Domain: domain.DomainBulkSend, PhoneNumber: "3001234561"},
		{Domain: domain.DomainBulkSend, PhoneNumber: "3001234562", SendStatus: domain.StatusSent},
		{Domain: domain.DomainBulkSend, PhoneNumber: "3001234563"},
		{Domain: domain.DomainReminders, PhoneNumber: "3001234564"},
	}))

	res, err := newResolver(repo).Resolve(ctx, Request{
		Domain: domain.DomainBulkSend,
		Policy: PolicyExplicitIDs,
		IDs:    []int{3, 2, 1, 3, 4, 99},
	})
	require.NoError(t, err)

	require.Len(t, res.Recipients, 2)
	assert.Equal(t, 3, res.Recipients[0].ID)
	assert.Equal(t, 1, res.Recipients[1].ID)

	reasons := map[int]string{}
	for _, r := range res.Rejected {
		reasons[r.Index] = r.Reason
	}
	assert.Equal(t, "not eligible (sent)", reasons[1])
	assert.Equal(t, "duplicate id", reasons[3])
	assert.Equal(t, "not found", reasons[4])
	assert.Equal(t, "not found", reasons[5])
}

func TestResolveUploaded(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRecipients()

	res, err := newResolver(repo).Resolve(ctx, Request{
		Domain: domain.DomainBulkSend,
		Policy: PolicyUploaded,
		Uploaded: []UploadEntry{
			{Phone: "300 123 4567", Name: "Ana"},
			{Phone: "+57 300-123-4567", Name: "Ana again"},
			{Phone: "555"},
			{Phone: "3109876543", Params: []string{"Luis"}},
		},
	})
	require.NoError(t, err)

	require.Len(t, res.Recipients, 2)
	assert.Equal(t, "573001234567", res.Recipients[0].PhoneNumber)
	assert.Equal(t, "573109876543", res.Recipients[1].PhoneNumber)
	assert.Equal(t, []string{"Luis"}, res.Recipients[1].Params)
	assert.NotZero(t, res.Recipients[0].ID)

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 1, res.Rejected[0].Index)
	assert.Equal(t, "duplicate of row 0", res.Rejected[0].Reason)

	require.Len(t, res.Invalid, 1)
	assert.Equal(t, domain.ReasonInvalidPhone, res.Invalid[0].FailureReason)

	failed, _ := repo.ListFailed(ctx, domain.DomainBulkSend, 0, 0)
	assert.Len(t, failed, 1)
}

func TestResolveRejectsBadRequests(t *testing.T) {
	r := newResolver(memory.NewRecipients())
	ctx := context.Background()

	_, err := r.Resolve(ctx, Request{Domain: "sms", Policy: PolicyAllEligible})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = r.Resolve(ctx, Request{Domain: domain.DomainBulkSend, Policy: "everyone"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	_, err = r.Resolve(ctx, Request{Domain: domain.DomainReminders, Policy: PolicyUploaded})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestResolveDryRunDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRecipients()
	require.NoError(t, repo.Create(ctx, []domain.Recipient{
		{Domain: domain.DomainReminders, PhoneNumber: "999", AppointmentAt: appointment(17, 9)},
	}))

	res, err := newResolver(repo).Resolve(ctx, Request{
		Domain:    domain.DomainReminders,
		Policy:    PolicyAllEligible,
		DaysAhead: 1,
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Recipients)
	assert.Len(t, res.Invalid, 1)

	stored, _ := repo.Get(ctx, 1)
	assert.Equal(t, domain.StatusPending, stored.SendStatus)
}
