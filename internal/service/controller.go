package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/queue"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/batch"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/recipient"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/settings"
	"github.com/aniladanir/hospital-messenger-service/internal/resolver"
	"github.com/google/uuid"
)

const (
	defaultClaimTimeout      = 15 * time.Minute
	defaultReminderDaysAhead = 1
)

type StartRequest struct {
	Kind      domain.JobKind
	Label     string
	Selection resolver.Request

	TemplateName string
	LanguageCode string
	Params       []string
	Body         string
}

type StartResult struct {
	Batch      *domain.Batch
	Resolution *resolver.Result
	// Stored holds uploaded recipients that were saved although no batch started. They stay
	// pending and are picked up by the next bulk-send batch.
	Stored []int
}

type ClearResult struct {
	FailedBatches  []string `json:"failed_batches"`
	ReleasedClaims int      `json:"released_claims"`
}

type ControllerConfig struct {
	// MaxPerDay caps batch size when the settings store has no value.
	MaxPerDay int
	// ClaimTimeout is how long a claim or a silent batch may last before reconciliation steps in.
	ClaimTimeout time.Duration
	// ReminderDaysAhead is used by reminder starts that do not name a day.
	ReminderDaysAhead int
}

// Controller owns the batch lifecycle: start, cancel, pause, resume, completion and recovery.
type Controller struct {
	recipients recipient.Repository
	batches    batch.Repository
	lock       *ProcessLock
	resolver   *resolver.Resolver
	queue      queue.Queue
	values     *settings.Values

	maxPerDay         int
	claimTimeout      time.Duration
	reminderDaysAhead int
	now               func() time.Time
	logger            *slog.Logger
}

type ControllerDeps struct {
	Recipients recipient.Repository
	Batches    batch.Repository
	Lock       *ProcessLock
	Resolver   *resolver.Resolver
	Queue      queue.Queue
	Values     *settings.Values
}

func NewController(deps ControllerDeps, cfg ControllerConfig, logger *slog.Logger) *Controller {
	claimTimeout := cfg.ClaimTimeout
	if claimTimeout <= 0 {
		claimTimeout = defaultClaimTimeout
	}
	reminderDaysAhead := cfg.ReminderDaysAhead
	if reminderDaysAhead <= 0 {
		reminderDaysAhead = defaultReminderDaysAhead
	}
	return &Controller{
		recipients:        deps.Recipients,
		batches:           deps.Batches,
		lock:              deps.Lock,
		resolver:          deps.Resolver,
		queue:             deps.Queue,
		values:            deps.Values,
		maxPerDay:         cfg.MaxPerDay,
		claimTimeout:      claimTimeout,
		reminderDaysAhead: reminderDaysAhead,
		now:               time.Now,
		logger:            logger,
	}
}

func enabledKey(d domain.Domain) string {
	if d == domain.DomainReminders {
		return domain.SettingRemindersEnabled
	}
	return domain.SettingBulkSendEnabled
}

// Enabled reports the feature flag of a domain. Domains are enabled unless switched off.
func (c *Controller) Enabled(ctx context.Context, d domain.Domain) bool {
	return c.values.Bool(ctx, enabledKey(d), true)
}

func validateContent(req StartRequest) error {
	switch req.Kind {
	case domain.JobReminder, domain.JobTemplateBroadcast:
		if req.TemplateName == "" {
			return fmt.Errorf("%w: template_name is required for %s", domain.ErrInvalidRequest, req.Kind)
		}
	case domain.JobBulkSend:
		if req.TemplateName == "" && req.Body == "" && req.Selection.Policy != resolver.PolicyUploaded {
			return fmt.Errorf("%w: template_name or body is required", domain.ErrInvalidRequest)
		}
	default:
		return fmt.Errorf("%w: %w %q", domain.ErrInvalidRequest, domain.ErrUnknownJobKind, req.Kind)
	}
	return nil
}

// Start resolves the recipients, takes the domain lock and submits one job per recipient.
// It returns domain.ErrBusy when another batch holds the lock and domain.ErrNothingToSend when the
// selection is empty. Nothing is sent if it returns an error. An upload that loses the lock to a
// concurrent start stays stored; the result lists those rows in Stored.
func (c *Controller) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	if err := validateContent(req); err != nil {
		return nil, err
	}
	d := req.Kind.Domain()
	req.Selection.Domain = d
	req.Selection.DryRun = false
	if d == domain.DomainReminders && req.Selection.DaysAhead <= 0 {
		req.Selection.DaysAhead = c.reminderDaysAhead
	}

	if !c.Enabled(ctx, d) {
		return nil, fmt.Errorf("%s: %w", d, domain.ErrDisabled)
	}

	// reject early so an upload is not stored while another batch runs
	busy, err := c.lock.Busy(ctx, d)
	if err != nil {
		return nil, err
	}
	if busy {
		c.logger.Info("start rejected, batch already running", "domain", d)
		return nil, domain.ErrBusy
	}

	limit := c.values.Int(ctx, domain.SettingMaxPerDay, c.maxPerDay)
	if limit > 0 && (req.Selection.Limit <= 0 || req.Selection.Limit > limit) {
		req.Selection.Limit = limit
	}

	res, err := c.resolver.Resolve(ctx, req.Selection)
	if err != nil {
		return nil, err
	}
	result := &StartResult{Resolution: res}
	if len(res.Recipients) == 0 {
		return result, domain.ErrNothingToSend
	}

	b := &domain.Batch{
		ID:           uuid.NewString(),
		Domain:       d,
		Kind:         req.Kind,
		Label:        req.Label,
		Status:       domain.BatchDraft,
		TemplateName: req.TemplateName,
		LanguageCode: req.LanguageCode,
		Params:       slices.Clone(req.Params),
		Body:         req.Body,
		CreatedAt:    c.now().UTC(),
	}
	if b.Label == "" {
		b.Label = fmt.Sprintf("%s %s", req.Kind, b.CreatedAt.Format(time.DateTime))
	}
	if err := c.batches.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	ids := make([]int, 0, len(res.Recipients))
	for _, r := range res.Recipients {
		ids = append(ids, r.ID)
	}

	acquired, err := c.lock.TryAcquire(ctx, d, b.ID, len(ids))
	if err != nil || !acquired {
		if delErr := c.batches.Delete(context.WithoutCancel(ctx), b.ID); delErr != nil {
			c.logger.Error("failed to delete unused batch", "batchId", b.ID, "error", delErr)
		}
		if err != nil {
			return nil, err
		}
		if req.Selection.Policy == resolver.PolicyUploaded {
			result.Stored = ids
			c.logger.Warn("start lost the lock, uploaded recipients stay pending", "domain", d, "stored", len(ids))
			return result, domain.ErrBusy
		}
		return nil, domain.ErrBusy
	}

	if err := c.activate(ctx, b, ids); err != nil {
		c.abort(ctx, b, err)
		if errors.Is(err, domain.ErrNothingToSend) {
			return result, err
		}
		return nil, err
	}

	jobs := make([]domain.SendJob, 0, len(b.RecipientIDs))
	for _, id := range b.RecipientIDs {
		jobs = append(jobs, domain.NewSendJob(b, id))
	}
	if err := c.queue.Enqueue(ctx, jobs...); err != nil {
		err = fmt.Errorf("failed to enqueue jobs: %w", err)
		c.abort(ctx, b, err)
		return nil, err
	}

	c.logger.Info("batch started",
		"domain", d,
		"batchId", b.ID,
		"kind", b.Kind,
		"total", b.Total,
		"invalid", len(res.Invalid),
		"truncated", res.Truncated)

	result.Batch = b
	return result, nil
}

// activate assigns the recipients to the batch and moves it to processing.
func (c *Controller) activate(ctx context.Context, b *domain.Batch, ids []int) error {
	assigned, err := c.recipients.AssignBatch(ctx, b.ID, ids)
	if err != nil {
		return fmt.Errorf("failed to assign recipients: %w", err)
	}
	if len(assigned) == 0 {
		return domain.ErrNothingToSend
	}
	if len(assigned) != len(ids) {
		if err := c.lock.SetTotal(ctx, b.Domain, b.ID, len(assigned)); err != nil {
			return fmt.Errorf("failed to update progress total: %w", err)
		}
	}
	if err := c.batches.Activate(ctx, b.ID, assigned); err != nil {
		return fmt.Errorf("failed to activate batch: %w", err)
	}

	b.Status = domain.BatchProcessing
	b.Total = len(assigned)
	b.RecipientIDs = assigned
	return nil
}

// abort fails a batch that could not be started and frees its domain.
func (c *Controller) abort(ctx context.Context, b *domain.Batch, cause error) {
	ctx = context.WithoutCancel(ctx)
	if _, err := c.batches.Transition(ctx, b.ID, []domain.BatchStatus{domain.BatchDraft, domain.BatchProcessing}, domain.BatchFailed); err != nil {
		c.logger.Error("failed to mark batch failed", "batchId", b.ID, "error", err)
	}
	if _, err := c.lock.ReleaseBatch(ctx, b.Domain, b.ID); err != nil {
		c.logger.Error("failed to release lock", "batchId", b.ID, "error", err)
	}
	c.logger.Error("batch aborted", "domain", b.Domain, "batchId", b.ID, "error", cause)
}

// FinalizeIfComplete completes the batch and frees its domain once every unit has reported.
// Any number of callers may race on it; exactly one sees true.
func (c *Controller) FinalizeIfComplete(ctx context.Context, batchID string) (bool, error) {
	done, err := c.batches.FinishIfComplete(ctx, batchID)
	if err != nil {
		return false, fmt.Errorf("failed to finish batch %s: %w", batchID, err)
	}

	b, err := c.batches.Get(ctx, batchID)
	if err != nil {
		return done, err
	}
	if !b.Status.IsTerminal() {
		return false, nil
	}

	// release even when someone else finished it, the lock may have survived a crash
	released, err := c.lock.ReleaseBatch(ctx, b.Domain, batchID)
	if err != nil {
		return done, fmt.Errorf("failed to release %s lock: %w", b.Domain, err)
	}
	if done {
		c.logger.Info("batch completed",
			"domain", b.Domain,
			"batchId", b.ID,
			"total", b.Total,
			"sent", b.SentCount,
			"failed", b.FailedCount,
			"lockReleased", released)
	}
	return done, nil
}

// Cancel stops a batch. Units already running finish; the rest find the batch cancelled and leave
// their recipients pending. The domain is free again at once.
func (c *Controller) Cancel(ctx context.Context, batchID string) (*domain.Batch, error) {
	b, err := c.batches.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	ok, err := c.batches.Transition(ctx, batchID, []domain.BatchStatus{domain.BatchDraft, domain.BatchProcessing}, domain.BatchCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel batch: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: batch is %s", domain.ErrBatchNotActive, b.Status)
	}
	if _, err := c.lock.ReleaseBatch(ctx, b.Domain, batchID); err != nil {
		return nil, fmt.Errorf("failed to release %s lock: %w", b.Domain, err)
	}

	c.logger.Info("batch cancelled", "domain", b.Domain, "batchId", batchID, "sent", b.SentCount, "failed", b.FailedCount)
	return c.batches.Get(ctx, batchID)
}

func (c *Controller) Pause(ctx context.Context, d domain.Domain) error {
	if err := c.lock.Pause(ctx, d); err != nil {
		return err
	}
	c.logger.Info("domain paused", "domain", d)
	return nil
}

// Resume clears the pause flag and resubmits the recipients of the running batch that are still
// pending. It returns how many jobs were resubmitted.
func (c *Controller) Resume(ctx context.Context, d domain.Domain) (int, error) {
	if err := c.lock.Resume(ctx, d); err != nil {
		return 0, err
	}

	l, err := c.lock.Get(ctx, d)
	if err != nil {
		return 0, err
	}
	if !l.Processing || l.ActiveBatchID == nil {
		c.logger.Info("domain resumed", "domain", d)
		return 0, nil
	}

	n, err := c.resubmitPending(ctx, *l.ActiveBatchID)
	if err != nil {
		return 0, err
	}
	c.logger.Info("domain resumed", "domain", d, "batchId", *l.ActiveBatchID, "resubmitted", n)
	return n, nil
}

func (c *Controller) resubmitPending(ctx context.Context, batchID string) (int, error) {
	b, err := c.batches.Get(ctx, batchID)
	if err != nil {
		return 0, err
	}
	if b.Status != domain.BatchProcessing {
		return 0, nil
	}
	ids, err := c.recipients.PendingInBatch(ctx, batchID)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending recipients: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	jobs := make([]domain.SendJob, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, domain.NewSendJob(b, id))
	}
	if err := c.queue.Enqueue(ctx, jobs...); err != nil {
		return 0, fmt.Errorf("failed to enqueue jobs: %w", err)
	}
	return len(jobs), nil
}

// ClearStuck is the operator's way out when stale detection is not enough: every non-terminal
// batch of the domain is failed, its claims are returned to pending and the lock is released.
func (c *Controller) ClearStuck(ctx context.Context, d domain.Domain) (*ClearResult, error) {
	active, err := c.batches.ListActive(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("failed to list active batches: %w", err)
	}

	res := &ClearResult{FailedBatches: make([]string, 0, len(active))}
	for _, b := range active {
		ok, err := c.batches.Transition(ctx, b.ID, []domain.BatchStatus{domain.BatchDraft, domain.BatchProcessing}, domain.BatchFailed)
		if err != nil {
			return nil, fmt.Errorf("failed to fail batch %s: %w", b.ID, err)
		}
		if ok {
			res.FailedBatches = append(res.FailedBatches, b.ID)
		}
		n, err := c.recipients.ReleaseClaims(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to release claims of batch %s: %w", b.ID, err)
		}
		res.ReleasedClaims += n
	}

	if err := c.lock.Release(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to release %s lock: %w", d, err)
	}

	c.logger.Warn("cleared stuck state",
		"domain", d,
		"failedBatches", res.FailedBatches,
		"releasedClaims", res.ReleasedClaims)
	return res, nil
}

// Reconcile is the periodic sweep that stands in for dead-job detection. Per domain it clears a
// stale lock, finalizes a batch whose last report was lost and resubmits a batch that went quiet.
// Claims older than the claim timeout go back to pending and are resubmitted.
func (c *Controller) Reconcile(ctx context.Context) error {
	var errs []error
	for _, d := range domain.Domains {
		if err := c.reconcileDomain(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d, err))
		}
	}
	if err := c.recoverClaims(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Controller) reconcileDomain(ctx context.Context, d domain.Domain) error {
	if _, err := c.lock.StaleCheck(ctx, d); err != nil {
		return err
	}

	l, err := c.lock.Get(ctx, d)
	if err != nil {
		return err
	}
	if !l.Processing || l.ActiveBatchID == nil {
		return nil
	}
	batchID := *l.ActiveBatchID

	done, err := c.FinalizeIfComplete(ctx, batchID)
	if err != nil || done || l.Paused {
		return err
	}

	b, err := c.batches.Get(ctx, batchID)
	if err != nil {
		return err
	}
	if b.Status != domain.BatchProcessing {
		return nil
	}
	last := b.CreatedAt
	if b.UpdatedAt != nil {
		last = *b.UpdatedAt
	}
	if c.now().Sub(last) < c.claimTimeout {
		return nil
	}

	n, err := c.resubmitPending(ctx, batchID)
	if err != nil {
		return err
	}
	if n > 0 {
		c.logger.Warn("batch stalled, resubmitted pending recipients", "domain", d, "batchId", batchID, "resubmitted", n)
	}
	return nil
}

func (c *Controller) recoverClaims(ctx context.Context) error {
	recovered, err := c.recipients.RecoverClaims(ctx, c.now().Add(-c.claimTimeout))
	if err != nil {
		return fmt.Errorf("failed to recover claims: %w", err)
	}
	if len(recovered) == 0 {
		return nil
	}

	batches := make(map[string]*domain.Batch)
	jobs := make([]domain.SendJob, 0, len(recovered))
	for _, r := range recovered {
		if r.BatchID == nil {
			continue
		}
		b, ok := batches[*r.BatchID]
		if !ok {
			b, err = c.batches.Get(ctx, *r.BatchID)
			if err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			batches[*r.BatchID] = b
		}
		if b == nil || b.Status != domain.BatchProcessing {
			continue
		}
		jobs = append(jobs, domain.NewSendJob(b, r.ID))
	}

	c.logger.Warn("recovered expired claims", "recovered", len(recovered), "resubmitted", len(jobs))
	if len(jobs) == 0 {
		return nil
	}
	return c.queue.Enqueue(ctx, jobs...)
}

func (c *Controller) Status(ctx context.Context, d domain.Domain) (domain.ProgressSnapshot, error) {
	return c.lock.Status(ctx, d)
}

func (c *Controller) GetBatch(ctx context.Context, id string) (*domain.Batch, error) {
	return c.batches.Get(ctx, id)
}

func (c *Controller) ListBatches(ctx context.Context, d domain.Domain, limit int) ([]domain.Batch, error) {
	return c.batches.List(ctx, d, limit)
}

func (c *Controller) ListFailed(ctx context.Context, d domain.Domain, limit, offset int) ([]domain.Recipient, error) {
	return c.recipients.ListFailed(ctx, d, limit, offset)
}

// ResetRecipient clears a failed recipient so the next resolution pass includes it again.
func (c *Controller) ResetRecipient(ctx context.Context, id int) error {
	if err := c.recipients.Reset(ctx, id); err != nil {
		return err
	}
	c.logger.Info("recipient reset", "recipientId", id)
	return nil
}
