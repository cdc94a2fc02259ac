package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/phone"
	"github.com/aniladanir/hospital-messenger-service/internal/provider"
	"github.com/aniladanir/hospital-messenger-service/internal/queue"
	"github.com/aniladanir/hospital-messenger-service/internal/ratelimit"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/memory"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/settings"
	"github.com/aniladanir/hospital-messenger-service/internal/resolver"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClient struct {
	mu    sync.Mutex
	calls []provider.Message
	hook  func(n int, msg provider.Message) (string, error)
}

func (f *fakeClient) Send(ctx context.Context, msg provider.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, msg)
	n := len(f.calls)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		return hook(n, msg)
	}
	return fmt.Sprintf("wamid.%d", n), nil
}

func (f *fakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeClient) CallsTo(to string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.calls {
		if m.To == to {
			n++
		}
	}
	return n
}

type harnessConfig struct {
	workers      int
	gate         ratelimit.Gate
	claimTimeout time.Duration
	maxPerDay    int
}

type harness struct {
	recipients    *memory.Recipients
	batches       *memory.Batches
	locks         *memory.Locks
	conversations *memory.Conversations
	settings      *memory.Settings

	lock       *ProcessLock
	resolver   *resolver.Resolver
	controller *Controller
	dispatcher *Dispatcher
	pool       *queue.Pool
	client     *fakeClient

	handled atomic.Int32
}

func newHarness(t *testing.T, opts ...func(*harnessConfig)) *harness {
	t.Helper()
	cfg := harnessConfig{workers: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &harness{
		recipients:    memory.NewRecipients(),
		batches:       memory.NewBatches(),
		locks:         memory.NewLocks(),
		conversations: memory.NewConversations(),
		settings:      memory.NewSettings(),
		client:        &fakeClient{},
	}
	values := settings.NewValues(h.settings)
	normalizer := phone.NewNormalizer("57")

	h.lock = NewProcessLock(h.locks, h.batches, discard)
	h.resolver = resolver.New(h.recipients, normalizer, resolver.WithLocation(time.UTC))
	h.pool = queue.NewPool(cfg.workers, 16, discard)
	h.controller = NewController(ControllerDeps{
		Recipients: h.recipients,
		Batches:    h.batches,
		Lock:       h.lock,
		Resolver:   h.resolver,
		Queue:      h.pool,
		Values:     values,
	}, ControllerConfig{MaxPerDay: cfg.maxPerDay, ClaimTimeout: cfg.claimTimeout}, discard)

	var err error
	h.dispatcher, err = NewDispatcher(DispatcherDeps{
		Recipients:    h.recipients,
		Batches:       h.batches,
		Conversations: h.conversations,
		Lock:          h.lock,
		Finalizer:     h.controller,
		Gate:          cfg.gate,
		Client:        h.client,
		Normalizer:    normalizer,
		Composers:     DefaultComposers(time.UTC),
	}, DispatcherConfig{
		MaxAttempts: 3,
		SendTimeout: time.Second,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}, discard)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.pool.Run(ctx, queue.HandlerFunc(func(ctx context.Context, job domain.SendJob) {
			defer h.handled.Add(1)
			h.dispatcher.Handle(ctx, job)
		}))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = h.pool.Close()
	})
	return h
}

func withWorkers(n int) func(*harnessConfig) {
	return func(c *harnessConfig) { c.workers = n }
}

func phoneFor(i int) string {
	return fmt.Sprintf("5730012%05d", i)
}

// seedBulk stores n pending bulk-send recipients and returns their ids.
func (h *harness) seedBulk(t *testing.T, n int) []int {
	t.Helper()
	rows := make([]domain.Recipient, n)
	for i := range rows {
		rows[i] = domain.Recipient{
			Domain:      domain.DomainBulkSend,
			PhoneNumber: phoneFor(i),
			DisplayName: fmt.Sprintf("contact %d", i),
		}
	}
	require.NoError(t, h.recipients.Create(context.Background(), rows))
	ids := make([]int, n)
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids
}

func bulkRequest() StartRequest {
	return StartRequest{
		Kind:      domain.JobBulkSend,
		Label:     "test",
		Selection: resolver.Request{Policy: resolver.PolicyAllEligible},
		Body:      "hola",
	}
}

func (h *harness) batchStatus(id string) domain.BatchStatus {
	b, err := h.batches.Get(context.Background(), id)
	if err != nil {
		return ""
	}
	return b.Status
}

// startBatch stores a processing bulk-send batch over ids and gives it the domain lock, as Start
// would, without submitting any job.
func (h *harness) startBatch(t *testing.T, ids []int) *domain.Batch {
	t.Helper()
	ctx := context.Background()
	b := &domain.Batch{
		ID:        uuid.NewString(),
		Domain:    domain.DomainBulkSend,
		Kind:      domain.JobBulkSend,
		Status:    domain.BatchDraft,
		Body:      "hola",
		CreatedAt: time.Now(),
	}
	require.NoError(t, h.batches.Create(ctx, b))
	acquired, err := h.lock.TryAcquire(ctx, b.Domain, b.ID, len(ids))
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, h.controller.activate(ctx, b, ids))
	return b
}

type gateFunc func(ctx context.Context) error

func (f gateFunc) Wait(ctx context.Context) error { return f(ctx) }
