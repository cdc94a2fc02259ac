package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/phone"
	"github.com/aniladanir/hospital-messenger-service/internal/provider"
	"github.com/aniladanir/hospital-messenger-service/internal/ratelimit"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/batch"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/conversation"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/recipient"
	"github.com/aniladanir/retry"
)

const (
	defaultBackoffBase = 5 * time.Second
	defaultBackoffMax  = 30 * time.Second
)

// BatchFinalizer completes a batch once every unit has reported.
type BatchFinalizer interface {
	FinalizeIfComplete(ctx context.Context, batchID string) (bool, error)
}

type DispatcherConfig struct {
	MaxAttempts int
	SendTimeout time.Duration
	// BackoffBase and BackoffMax bound the jittered exponential wait between attempts.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Dispatcher runs dispatch units: it sends one message to one recipient of one batch and turns
// every outcome into recipient, batch and lock updates.
type Dispatcher struct {
	recipients    recipient.Repository
	batches       batch.Repository
	conversations conversation.Repository
	lock          *ProcessLock
	finalizer     BatchFinalizer

	gate       ratelimit.Gate
	client     provider.Client
	normalizer *phone.Normalizer
	composers  map[domain.JobKind]Composer
	retrier    *retry.Retrier

	maxAttempts int
	sendTimeout time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

type DispatcherDeps struct {
	Recipients    recipient.Repository
	Batches       batch.Repository
	Conversations conversation.Repository
	Lock          *ProcessLock
	Finalizer     BatchFinalizer
	Gate          ratelimit.Gate
	Client        provider.Client
	Normalizer    *phone.Normalizer
	Composers     map[domain.JobKind]Composer
}

func NewDispatcher(deps DispatcherDeps, cfg DispatcherConfig, logger *slog.Logger) (*Dispatcher, error) {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	base := cfg.BackoffBase
	if base <= 0 {
		base = defaultBackoffBase
	}
	maxInterval := cfg.BackoffMax
	if maxInterval <= base {
		maxInterval = max(defaultBackoffMax, 2*base)
	}
	retrier, err := retry.New(
		retry.WithMaxAttemps(maxAttempts),
		retry.WithTimeFactor(base),
		retry.WithMaxInterval(maxInterval),
	)
	if err != nil {
		return nil, fmt.Errorf("encountered error when initializing retrier: %w", err)
	}

	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}
	gate := deps.Gate
	if gate == nil {
		gate = ratelimit.Unlimited{}
	}

	return &Dispatcher{
		recipients:    deps.Recipients,
		batches:       deps.Batches,
		conversations: deps.Conversations,
		lock:          deps.Lock,
		finalizer:     deps.Finalizer,
		gate:          gate,
		client:        deps.Client,
		normalizer:    deps.Normalizer,
		composers:     deps.Composers,
		retrier:       retrier,
		maxAttempts:   maxAttempts,
		sendTimeout:   sendTimeout,
		now:           time.Now,
		logger:        logger,
	}, nil
}

// unit is the state of one dispatch unit run.
type unit struct {
	job     domain.SendJob
	batch   *domain.Batch
	rec     *domain.Recipient
	claimed bool
	logger  *slog.Logger
}

// Handle never lets a failure or panic escape; whatever happens ends up in the recipient row.
func (d *Dispatcher) Handle(ctx context.Context, job domain.SendJob) {
	u := &unit{
		job: job,
		logger: d.logger.With(
			slog.String("batchId", job.BatchID),
			slog.Int("recipientId", job.RecipientID),
			slog.String("kind", string(job.Kind)),
		),
	}

	defer func() {
		if r := recover(); r != nil {
			u.logger.Error("dispatch unit panicked", "panic", r, "stack", string(debug.Stack()))
			if u.claimed {
				d.fail(ctx, u, fmt.Sprintf("internal error: %v", r), false, 0)
			}
		}
	}()

	d.run(ctx, u)
}

func (d *Dispatcher) run(ctx context.Context, u *unit) {
	if err := u.job.Validate(); err != nil {
		u.logger.Error("dropping invalid job", "error", err)
		return
	}

	active, err := d.batchActive(ctx, u)
	if err != nil {
		u.logger.Error("failed to load batch", "error", err)
		return
	}
	if !active {
		return
	}

	rec, err := d.recipients.Get(ctx, u.job.RecipientID)
	if err != nil {
		u.logger.Error("failed to load recipient", "error", err)
		return
	}
	if rec.SendStatus == domain.StatusSent {
		u.logger.Debug("recipient already sent")
		return
	}
	if !rec.InBatch(u.job.BatchID) || rec.SendStatus != domain.StatusPending {
		u.logger.Debug("recipient not pending in this batch", "status", rec.SendStatus)
		return
	}
	u.rec = rec

	claimed, err := d.recipients.Claim(ctx, rec.ID, u.job.BatchID)
	if err != nil {
		u.logger.Error("failed to claim recipient", "error", err)
		return
	}
	if !claimed {
		u.logger.Debug("recipient claimed by another unit")
		return
	}
	u.claimed = true

	to, err := d.normalizer.Normalize(rec.PhoneNumber)
	if err != nil {
		d.fail(ctx, u, domain.ReasonInvalidPhone, false, 0)
		return
	}

	composer, ok := d.composers[u.job.Kind]
	if !ok {
		d.fail(ctx, u, fmt.Sprintf("no composer for %s", u.job.Kind), false, 0)
		return
	}
	msg, err := composer.Compose(u.job, rec, to)
	if err != nil {
		d.fail(ctx, u, err.Error(), false, 0)
		return
	}

	if err := d.gate.Wait(ctx); err != nil {
		d.release(ctx, u, "rate gate wait interrupted")
		return
	}

	// the batch may have been paused or cancelled while this unit waited for the gate
	if active, err := d.batchActive(ctx, u); err != nil || !active {
		d.release(ctx, u, "batch stopped while waiting")
		return
	}

	d.send(ctx, u, msg)
}

// batchActive reports whether the unit may go on: its batch is processing and its domain is not
// paused.
func (d *Dispatcher) batchActive(ctx context.Context, u *unit) (bool, error) {
	b, err := d.batches.Get(ctx, u.job.BatchID)
	if errors.Is(err, domain.ErrNotFound) {
		u.logger.Warn("batch not found")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	u.batch = b
	if b.Status != domain.BatchProcessing {
		u.logger.Debug("batch not processing", "status", b.Status)
		return false, nil
	}

	paused, err := d.lock.Paused(ctx, b.Domain)
	if err != nil {
		return false, err
	}
	if paused {
		u.logger.Debug("domain paused")
		return false, nil
	}
	return true, nil
}

func (d *Dispatcher) send(ctx context.Context, u *unit, msg provider.Message) {
	var (
		messageID string
		lastErr   *provider.Error
		attempts  int
	)

	retryFunc := func(int) (terminate bool) {
		if attempts >= d.maxAttempts {
			return true
		}
		// the retrier has already waited out the backoff
		if attempts > 0 {
			if err := d.gate.Wait(ctx); err != nil {
				return true
			}
		}
		attempts++
		attemptLogger := u.logger.With(slog.Int("attempt", attempts))

		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		id, err := d.client.Send(sendCtx, msg)
		cancel()
		if err == nil {
			messageID, lastErr = id, nil
			return true
		}

		lastErr = provider.Classify(err)
		attemptLogger.Error("failed to send message",
			"errorKind", lastErr.Kind,
			"retryable", lastErr.Retryable,
			"error", lastErr.Error())
		return !lastErr.Retryable
	}

	<-d.retrier.Retry(ctx, retryFunc, true)

	switch {
	case messageID != "":
		d.succeed(ctx, u, msg, messageID, attempts)
	case ctx.Err() != nil && (lastErr == nil || lastErr.Retryable):
		d.release(ctx, u, "shutting down")
	case lastErr == nil:
		d.fail(ctx, u, "send was not attempted", true, attempts)
	default:
		d.fail(ctx, u, lastErr.Error(), lastErr.Retryable, attempts)
	}
}

func (d *Dispatcher) succeed(ctx context.Context, u *unit, msg provider.Message, messageID string, attempts int) {
	// outcome writes must land even when the worker is being stopped
	ctx = context.WithoutCancel(ctx)

	ok, err := d.recipients.MarkSent(ctx, u.rec.ID, u.job.BatchID, messageID, attempts, d.now().UTC())
	if err != nil {
		u.logger.Error("failed to mark recipient sent", "messageId", messageID, "error", err)
		return
	}
	if !ok {
		u.logger.Warn("recipient changed while sending, outcome not recorded", "messageId", messageID)
		return
	}
	u.claimed = false
	u.logger.Info("message sent", "messageId", messageID, "attempts", attempts)

	if d.conversations != nil {
		convID, err := d.conversations.FindOrCreate(ctx, msg.To, u.rec.DisplayName)
		if err != nil {
			u.logger.Error("failed to find conversation", "error", err)
		} else if err := d.conversations.AppendMessage(ctx, convID, msg.Text(), true, messageID); err != nil {
			u.logger.Error("failed to append outbound message", "conversationId", convID, "error", err)
		}
	}

	d.report(ctx, u, true)
}

// fail records a definitive failure. Retryable failures come back in the next automatic pass.
func (d *Dispatcher) fail(ctx context.Context, u *unit, reason string, retryable bool, attempts int) {
	ctx = context.WithoutCancel(ctx)

	ok, err := d.recipients.MarkFailed(ctx, u.rec.ID, u.job.BatchID, reason, retryable, attempts)
	if err != nil {
		u.logger.Error("failed to mark recipient failed", "reason", reason, "error", err)
		return
	}
	if !ok {
		u.logger.Warn("recipient changed while sending, failure not recorded", "reason", reason)
		return
	}
	u.claimed = false
	u.logger.Warn("recipient failed", "reason", reason, "retryable", retryable, "attempts", attempts)

	d.report(ctx, u, false)
}

// release hands the claim back so a later unit can send to the recipient.
func (d *Dispatcher) release(ctx context.Context, u *unit, why string) {
	if err := d.recipients.Unclaim(context.WithoutCancel(ctx), u.rec.ID, u.job.BatchID); err != nil {
		u.logger.Error("failed to release recipient", "error", err)
		return
	}
	u.claimed = false
	u.logger.Debug("recipient released", "reason", why)
}

func (d *Dispatcher) report(ctx context.Context, u *unit, sent bool) {
	if err := d.batches.RecordOutcome(ctx, u.job.BatchID, sent); err != nil {
		u.logger.Error("failed to update batch counters", "error", err)
	}

	dom := u.job.Domain()
	var err error
	if sent {
		err = d.lock.IncrementSent(ctx, dom, u.job.BatchID)
	} else {
		err = d.lock.IncrementFailed(ctx, dom, u.job.BatchID)
	}
	if err != nil {
		u.logger.Error("failed to update progress", "error", err)
	}

	if d.finalizer != nil {
		if _, err := d.finalizer.FinalizeIfComplete(ctx, u.job.BatchID); err != nil {
			u.logger.Error("failed to finalize batch", "error", err)
		}
	}
}
