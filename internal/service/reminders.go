package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/settings"
	"github.com/aniladanir/hospital-messenger-service/internal/resolver"
)

type RemindersConfig struct {
	Interval          time.Duration
	ReconcileInterval time.Duration
	RunOnStart        bool

	// the scheduled and the manual path look at different days by default
	DaysAheadScheduled int
	DaysAheadManual    int

	TemplateName string
	LanguageCode string
}

// Reminders is the scheduler trigger for appointment reminders. It also drives the periodic
// reconciliation sweep.
type Reminders struct {
	controller *Controller
	resolver   *resolver.Resolver
	values     *settings.Values
	cfg        RemindersConfig
	logger     *slog.Logger

	mtx       sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewReminders(controller *Controller, res *resolver.Resolver, values *settings.Values, cfg RemindersConfig, logger *slog.Logger) (*Reminders, error) {
	if cfg.Interval <= 0 {
		return nil, errors.New("reminder interval must be > 0")
	}
	if cfg.ReconcileInterval <= 0 {
		return nil, errors.New("reconcile interval must be > 0")
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "es"
	}
	return &Reminders{
		controller: controller,
		resolver:   res,
		values:     values,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Start runs the scheduler in the background
func (s *Reminders) Start() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if s.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	go func() {
		defer close(s.done)

		remindTicker := time.NewTicker(s.cfg.Interval)
		defer remindTicker.Stop()
		reconcileTicker := time.NewTicker(s.cfg.ReconcileInterval)
		defer reconcileTicker.Stop()

		// initial run
		s.safeTick(ctx, "reconcile", s.reconcile)
		if s.cfg.RunOnStart {
			s.safeTick(ctx, "reminders", s.runDue)
		}

		for {
			select {
			case <-remindTicker.C:
				s.safeTick(ctx, "reminders", s.runDue)
			case <-reconcileTicker.C:
				s.safeTick(ctx, "reconcile", s.reconcile)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.logger.Info("scheduler started", "interval", s.cfg.Interval.String(), "reconcileInterval", s.cfg.ReconcileInterval.String())
}

// Stop halts the scheduler and waits for a running tick to return
func (s *Reminders) Stop() {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	if !s.isRunning {
		return
	}

	s.cancel()
	<-s.done
	s.isRunning = false
	s.logger.Info("scheduler stopped")
}

func (s *Reminders) IsRunning() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.isRunning
}

func (s *Reminders) safeTick(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler tick panic recovered", "tick", name, "panic", r)
		}
	}()
	fn(ctx)
}

func (s *Reminders) runDue(ctx context.Context) {
	if _, err := s.RunDueReminders(ctx); err != nil {
		s.logger.Error("scheduled reminder run failed", "error", err)
	}
}

func (s *Reminders) reconcile(ctx context.Context) {
	if err := s.controller.Reconcile(ctx); err != nil {
		s.logger.Error("reconciliation failed", "error", err)
	}
}

// RunDueReminders is the scheduled entry point. A disabled feature, a running batch or an empty
// day are normal outcomes: they are logged and return a nil batch without error.
func (s *Reminders) RunDueReminders(ctx context.Context) (*domain.Batch, error) {
	days := s.values.Int(ctx, domain.SettingDaysInAdvance, s.cfg.DaysAheadScheduled)
	res, err := s.start(ctx, days, "scheduled")
	switch {
	case errors.Is(err, domain.ErrDisabled):
		s.logger.Info("reminders disabled, skipping scheduled run")
		return nil, nil
	case errors.Is(err, domain.ErrBusy):
		s.logger.Info("reminder batch already running, skipping scheduled run")
		return nil, nil
	case errors.Is(err, domain.ErrNothingToSend):
		s.logger.Info("no reminders due", "daysAhead", days)
		return nil, nil
	case err != nil:
		return nil, err
	}
	return res.Batch, nil
}

// RunNow is the manual trigger. daysAhead <= 0 uses the manual default. Busy and empty results are
// returned to the caller.
func (s *Reminders) RunNow(ctx context.Context, daysAhead int) (*StartResult, error) {
	if daysAhead <= 0 {
		daysAhead = s.cfg.DaysAheadManual
	}
	return s.start(ctx, daysAhead, "manual")
}

// Preview resolves the reminders that a manual run would send, without writing anything.
func (s *Reminders) Preview(ctx context.Context, daysAhead int) (*resolver.Result, error) {
	if daysAhead <= 0 {
		daysAhead = s.cfg.DaysAheadManual
	}
	return s.resolver.Resolve(ctx, resolver.Request{
		Domain:    domain.DomainReminders,
		Policy:    resolver.PolicyAllEligible,
		DaysAhead: daysAhead,
		Limit:     s.values.Int(ctx, domain.SettingMaxPerDay, s.controller.maxPerDay),
		DryRun:    true,
	})
}

func (s *Reminders) start(ctx context.Context, daysAhead int, trigger string) (*StartResult, error) {
	from, _ := s.resolver.TargetDay(daysAhead)
	return s.controller.Start(ctx, StartRequest{
		Kind:  domain.JobReminder,
		Label: fmt.Sprintf("%s reminders for %s", trigger, from.Format(time.DateOnly)),
		Selection: resolver.Request{
			Policy:    resolver.PolicyAllEligible,
			DaysAhead: daysAhead,
		},
		TemplateName: s.values.String(ctx, domain.SettingTemplateName, s.cfg.TemplateName),
		LanguageCode: s.cfg.LanguageCode,
	})
}
