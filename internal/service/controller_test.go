package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/phone"
	"github.com/aniladanir/hospital-messenger-service/internal/provider"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/memory"
	"github.com/aniladanir/hospital-messenger-service/internal/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 10 * time.Second
	tick    = 5 * time.Millisecond
)

func TestStartDispatchesWholeBatch(t *testing.T) {
	h := newHarness(t, withWorkers(4))
	ctx := context.Background()
	h.seedBulk(t, 10)

	res, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)
	require.NotNil(t, res.Batch)
	assert.Equal(t, 10, res.Batch.Total)
	assert.Equal(t, domain.BatchProcessing, res.Batch.Status)

	require.Eventually(t, func() bool {
		return h.batchStatus(res.Batch.ID) == domain.BatchCompleted
	}, waitFor, tick)

	b, err := h.batches.Get(ctx, res.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, b.SentCount)
	assert.Zero(t, b.FailedCount)
	assert.NotNil(t, b.FinishedAt)

	snap, err := h.controller.Status(ctx, domain.DomainBulkSend)
	require.NoError(t, err)
	assert.False(t, snap.Processing)

	assert.Equal(t, 10, h.client.Calls())
	assert.Equal(t, 10, h.recipients.Count(domain.StatusSent))
	assert.Len(t, h.conversations.Messages(), 10)
}

func TestStartRejectsWhileBusy(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedBulk(t, 3)

	release := make(chan struct{})
	h.client.hook = func(n int, msg provider.Message) (string, error) {
		<-release
		return "wamid", nil
	}

	first, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)

	_, err = h.controller.Start(ctx, bulkRequest())
	assert.ErrorIs(t, err, domain.ErrBusy)

	batches, err := h.controller.ListBatches(ctx, domain.DomainBulkSend, 10)
	require.NoError(t, err)
	assert.Len(t, batches, 1, "rejected start must not leave a batch behind")

	close(release)
	require.Eventually(t, func() bool {
		return h.batchStatus(first.Batch.ID) == domain.BatchCompleted
	}, waitFor, tick)

	// the domain is free again
	h.seedBulk(t, 1)
	second, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Batch.Total)
}

func TestStartNothingToSend(t *testing.T) {
	h := newHarness(t)

	res, err := h.controller.Start(context.Background(), bulkRequest())
	assert.ErrorIs(t, err, domain.ErrNothingToSend)
	require.NotNil(t, res)
	assert.Nil(t, res.Batch)

	busy, err := h.lock.Busy(context.Background(), domain.DomainBulkSend)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestStartDisabled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedBulk(t, 2)
	require.NoError(t, h.settings.Set(ctx, domain.SettingBulkSendEnabled, "false"))

	_, err := h.controller.Start(ctx, bulkRequest())
	assert.ErrorIs(t, err, domain.ErrDisabled)
	assert.Zero(t, h.client.Calls())
}

func TestStartValidatesContent(t *testing.T) {
	h := newHarness(t)
	req := bulkRequest()
	req.Body = ""

	_, err := h.controller.Start(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = h.controller.Start(context.Background(), StartRequest{Kind: "fax"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.ErrorIs(t, err, domain.ErrUnknownJobKind)
}

func TestStartCapsBatchWithMaxPerDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedBulk(t, 5)
	require.NoError(t, h.settings.Set(ctx, domain.SettingMaxPerDay, "3"))

	res, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Batch.Total)
	assert.Equal(t, 2, res.Resolution.Truncated)
}

func TestCompletionAccountingWithFailures(t *testing.T) {
	h := newHarness(t, withWorkers(3))
	ctx := context.Background()
	h.seedBulk(t, 6)

	rejected := map[string]bool{phoneFor(1): true, phoneFor(4): true}
	h.client.hook = func(n int, msg provider.Message) (string, error) {
		if rejected[msg.To] {
			return "", &provider.Error{Kind: provider.KindInvalidRecipient, StatusCode: 400, Code: 131026}
		}
		return "wamid", nil
	}

	res, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return h.batchStatus(res.Batch.ID) == domain.BatchCompleted
	}, waitFor, tick)

	b, err := h.batches.Get(ctx, res.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, b.SentCount)
	assert.Equal(t, 2, b.FailedCount)
	assert.Equal(t, b.Total, b.SentCount+b.FailedCount)

	// permanent failures are attempted once and stay out of later passes
	assert.Equal(t, 1, h.client.CallsTo(phoneFor(1)))
	failed, err := h.controller.ListFailed(ctx, domain.DomainBulkSend, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	for _, r := range failed {
		assert.False(t, r.Eligible())
	}

	_, err = h.controller.Start(ctx, bulkRequest())
	assert.ErrorIs(t, err, domain.ErrNothingToSend)
}

func TestPauseAndResume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedBulk(t, 10)

	h.client.hook = func(n int, msg provider.Message) (string, error) {
		if n == 3 {
			assert.NoError(t, h.controller.Pause(ctx, domain.DomainBulkSend))
		}
		return "wamid", nil
	}

	res, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.handled.Load() == 10 }, waitFor, tick)
	assert.Equal(t, 3, h.client.Calls())
	assert.Equal(t, domain.BatchProcessing, h.batchStatus(res.Batch.ID))
	assert.Equal(t, 7, h.recipients.Count(domain.StatusPending))

	snap, err := h.controller.Status(ctx, domain.DomainBulkSend)
	require.NoError(t, err)
	assert.True(t, snap.Paused)
	assert.Equal(t, 3, snap.Sent)
	assert.Equal(t, 30.0, snap.Percentage)

	n, err := h.controller.Resume(ctx, domain.DomainBulkSend)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	require.Eventually(t, func() bool {
		return h.batchStatus(res.Batch.ID) == domain.BatchCompleted
	}, waitFor, tick)
	assert.Equal(t, 10, h.client.Calls())
	for i := range 10 {
		assert.Equal(t, 1, h.client.CallsTo(phoneFor(i)), "recipient %d", i)
	}
}

func TestPauseRequiresRunningBatch(t *testing.T) {
	h := newHarness(t)
	err := h.controller.Pause(context.Background(), domain.DomainBulkSend)
	assert.ErrorIs(t, err, domain.ErrBatchNotActive)
}

func TestCancelStopsDispatch(t *testing.T) {
	const workers = 3
	h := newHarness(t, withWorkers(workers))
	ctx := context.Background()
	h.seedBulk(t, 100)

	h.client.hook = func(n int, msg provider.Message) (string, error) {
		if n == 5 {
			l, err := h.locks.Get(ctx, domain.DomainBulkSend)
			if assert.NoError(t, err) && assert.NotNil(t, l.ActiveBatchID) {
				_, err = h.controller.Cancel(ctx, *l.ActiveBatchID)
				assert.NoError(t, err)
			}
		}
		return "wamid", nil
	}

	res, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.handled.Load() == 100 }, waitFor, tick)
	assert.Equal(t, domain.BatchCancelled, h.batchStatus(res.Batch.ID))

	sent := h.recipients.Count(domain.StatusSent)
	assert.GreaterOrEqual(t, sent, 5)
	assert.LessOrEqual(t, sent, 5+workers-1)
	assert.Zero(t, h.recipients.Count(domain.StatusProcessing))

	busy, err := h.lock.Busy(ctx, domain.DomainBulkSend)
	require.NoError(t, err)
	assert.False(t, busy)

	_, err = h.controller.Cancel(ctx, res.Batch.ID)
	assert.ErrorIs(t, err, domain.ErrBatchNotActive)

	// the untouched recipients are picked up by the next batch
	h.client.hook = nil
	next, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)
	assert.Equal(t, 100-sent, next.Batch.Total)
}

func TestCancelUnknownBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.controller.Cancel(context.Background(), "3f0b7f7e-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClearStuck(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := h.seedBulk(t, 2)

	// a batch whose workers died mid-send
	stuck := domain.Batch{
		ID:        "6a1c9a86-1d7b-4f0e-9d5c-2b7f3f1d0c11",
		Domain:    domain.DomainBulkSend,
		Kind:      domain.JobBulkSend,
		Status:    domain.BatchProcessing,
		Total:     2,
		Body:      "hola",
		CreatedAt: time.Now(),
	}
	h.batches.Put(stuck)
	_, err := h.recipients.AssignBatch(ctx, stuck.ID, ids)
	require.NoError(t, err)
	ok, err := h.recipients.Claim(ctx, ids[0], stuck.ID)
	require.NoError(t, err)
	require.True(t, ok)
	acquired, err := h.lock.TryAcquire(ctx, domain.DomainBulkSend, stuck.ID, 2)
	require.NoError(t, err)
	require.True(t, acquired)

	res, err := h.controller.ClearStuck(ctx, domain.DomainBulkSend)
	require.NoError(t, err)
	assert.Equal(t, []string{stuck.ID}, res.FailedBatches)
	assert.Equal(t, 1, res.ReleasedClaims)
	assert.Equal(t, domain.BatchFailed, h.batchStatus(stuck.ID))
	assert.Zero(t, h.recipients.Count(domain.StatusProcessing))

	// clearing twice is harmless
	res, err = h.controller.ClearStuck(ctx, domain.DomainBulkSend)
	require.NoError(t, err)
	assert.Empty(t, res.FailedBatches)

	next, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, next.Batch.Total)
}

func TestReconcileRecoversExpiredClaims(t *testing.T) {
	h := newHarness(t, func(c *harnessConfig) { c.claimTimeout = 20 * time.Millisecond })
	ctx := context.Background()
	ids := h.seedBulk(t, 3)

	b := domain.Batch{
		ID:        "0b6f2c4e-5a7d-4c1e-8f3b-9d2a6e4c7b10",
		Domain:    domain.DomainBulkSend,
		Kind:      domain.JobBulkSend,
		Status:    domain.BatchProcessing,
		Total:     3,
		Body:      "hola",
		CreatedAt: time.Now(),
	}
	h.batches.Put(b)
	_, err := h.recipients.AssignBatch(ctx, b.ID, ids)
	require.NoError(t, err)
	acquired, err := h.lock.TryAcquire(ctx, domain.DomainBulkSend, b.ID, 3)
	require.NoError(t, err)
	require.True(t, acquired)
	for _, id := range ids {
		ok, err := h.recipients.Claim(ctx, id, b.ID)
		require.NoError(t, err)
		require.True(t, ok)
	}

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, h.controller.Reconcile(ctx))

	require.Eventually(t, func() bool {
		return h.batchStatus(b.ID) == domain.BatchCompleted
	}, waitFor, tick)
	assert.Equal(t, 3, h.client.Calls())

	busy, err := h.lock.Busy(ctx, domain.DomainBulkSend)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestReconcileFinalizesLostReport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	b := domain.Batch{
		ID:          "9c7e1f2a-3b4d-4e5f-8a6b-7c8d9e0f1a2b",
		Domain:      domain.DomainReminders,
		Kind:        domain.JobReminder,
		Status:      domain.BatchProcessing,
		Total:       2,
		SentCount:   1,
		FailedCount: 1,
		CreatedAt:   time.Now(),
	}
	h.batches.Put(b)
	acquired, err := h.lock.TryAcquire(ctx, domain.DomainReminders, b.ID, 2)
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, h.controller.Reconcile(ctx))
	assert.Equal(t, domain.BatchCompleted, h.batchStatus(b.ID))

	busy, err := h.lock.Busy(ctx, domain.DomainReminders)
	require.NoError(t, err)
	assert.False(t, busy)

	// finalizing again changes nothing
	done, err := h.controller.FinalizeIfComplete(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestResetRecipient(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedBulk(t, 1)
	h.client.hook = func(int, provider.Message) (string, error) {
		return "", &provider.Error{Kind: provider.KindRejected, Err: errors.New("template paused")}
	}

	res, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return h.batchStatus(res.Batch.ID) == domain.BatchCompleted
	}, waitFor, tick)

	failed, err := h.controller.ListFailed(ctx, domain.DomainBulkSend, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	require.NoError(t, h.controller.ResetRecipient(ctx, failed[0].ID))
	assert.ErrorIs(t, h.controller.ResetRecipient(ctx, failed[0].ID), domain.ErrNotFound)

	h.client.hook = nil
	next, err := h.controller.Start(ctx, bulkRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, next.Batch.Total)
}

func TestStartExplicitIDs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := h.seedBulk(t, 4)

	req := bulkRequest()
	req.Selection = resolver.Request{Policy: resolver.PolicyExplicitIDs, IDs: []int{ids[2], ids[0], 999}}
	res, err := h.controller.Start(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batch.Total)
	require.Len(t, res.Resolution.Rejected, 1)
	assert.Equal(t, 999, res.Resolution.Rejected[0].ID)

	require.Eventually(t, func() bool {
		return h.batchStatus(res.Batch.ID) == domain.BatchCompleted
	}, waitFor, tick)
	assert.Zero(t, h.client.CallsTo(phoneFor(1)))
}

func TestStartReminderDefaultsToNextDay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ids := seedAppointments(t, h, 0, 1, 1, 2)

	res, err := h.controller.Start(ctx, StartRequest{
		Kind:         domain.JobReminder,
		Selection:    resolver.Request{Policy: resolver.PolicyAllEligible},
		TemplateName: "appointment_reminder",
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{ids[1], ids[2]}, res.Batch.RecipientIDs)

	require.Eventually(t, func() bool {
		return h.batchStatus(res.Batch.ID) == domain.BatchCompleted
	}, waitFor, tick)
	assert.Zero(t, h.client.CallsTo(phoneFor(100)))
	assert.Zero(t, h.client.CallsTo(phoneFor(103)))
}

// uploadRace starts a competing batch while an upload is being stored.
type uploadRace struct {
	*memory.Recipients
	before func()
}

func (r uploadRace) Create(ctx context.Context, rows []domain.Recipient) error {
	r.before()
	return r.Recipients.Create(ctx, rows)
}

func TestStartUploadLosingLockReportsStoredRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	competitor := &domain.Batch{
		ID:        "competitor",
		Domain:    domain.DomainBulkSend,
		Kind:      domain.JobBulkSend,
		Status:    domain.BatchDraft,
		CreatedAt: time.Now(),
	}
	race := uploadRace{Recipients: h.recipients, before: func() {
		assert.NoError(t, h.batches.Create(ctx, competitor))
		ok, err := h.lock.TryAcquire(ctx, domain.DomainBulkSend, competitor.ID, 1)
		assert.NoError(t, err)
		assert.True(t, ok)
	}}
	h.controller.resolver = resolver.New(race, phone.NewNormalizer("57"), resolver.WithLocation(time.UTC))

	req := bulkRequest()
	req.Selection = resolver.Request{
		Policy:   resolver.PolicyUploaded,
		Uploaded: []resolver.UploadEntry{{Phone: "3001234567", Name: "Ana"}, {Phone: "3001234568", Name: "Luis"}},
	}
	res, err := h.controller.Start(ctx, req)
	require.ErrorIs(t, err, domain.ErrBusy)
	require.NotNil(t, res)
	assert.Nil(t, res.Batch)
	require.Len(t, res.Stored, 2)

	for _, id := range res.Stored {
		r, err := h.recipients.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusPending, r.SendStatus)
	}

	batches, err := h.controller.ListBatches(ctx, domain.DomainBulkSend, 10)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, competitor.ID, batches[0].ID)
}
