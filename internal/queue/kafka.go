package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	kgo "github.com/segmentio/kafka-go"
)

type KafkaConfig struct {
	Brokers string `json:"brokers" yaml:"brokers"` // comma separated
	Topic   string `json:"topic" yaml:"topic"`
	GroupID string `json:"group_id" yaml:"group_id"`
	Workers int    `json:"workers" yaml:"workers"`
}

// DefaultGroupID is the consumer group used when none is configured.
const DefaultGroupID = "hospital-messenger"

type fetcher interface {
	FetchMessage(ctx context.Context) (kgo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kgo.Message) error
	Close() error
}

// Kafka publishes jobs to a work topic and consumes them through a consumer group. Offsets are
// committed only after a job was handled, so a crashed worker's jobs are redelivered.
type Kafka struct {
	writer  *kgo.Writer
	reader  fetcher
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

func NewKafka(cfg KafkaConfig, logger *slog.Logger) (*Kafka, error) {
	brokers := splitCSV(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	groupID := cfg.GroupID
	if groupID == "" {
		groupID = DefaultGroupID
	}
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Kafka{
		writer: &kgo.Writer{
			Addr:         kgo.TCP(brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kgo.LeastBytes{},
			RequiredAcks: kgo.RequireOne,
		},
		reader: kgo.NewReader(kgo.ReaderConfig{
			Brokers:        brokers,
			Topic:          cfg.Topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0, // manual commits
		}),
		workers: workers,
		timeout: 5 * time.Second,
		logger:  logger,
	}, nil
}

func encodeJob(job domain.SendJob) (kgo.Message, error) {
	b, err := json.Marshal(job)
	if err != nil {
		return kgo.Message{}, err
	}
	return kgo.Message{
		Key:   []byte(strconv.Itoa(job.RecipientID)),
		Value: b,
		Time:  time.Now(),
	}, nil
}

func decodeJob(m kgo.Message) (domain.SendJob, error) {
	var job domain.SendJob
	if err := json.Unmarshal(m.Value, &job); err != nil {
		return job, err
	}
	return job, job.Validate()
}

func (k *Kafka) Enqueue(ctx context.Context, jobs ...domain.SendJob) error {
	if len(jobs) == 0 {
		return nil
	}
	msgs := make([]kgo.Message, 0, len(jobs))
	for _, job := range jobs {
		m, err := encodeJob(job)
		if err != nil {
			return fmt.Errorf("failed to encode job for recipient %d: %w", job.RecipientID, err)
		}
		msgs = append(msgs, m)
	}

	// publishing outlives the caller's cancellation
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()
	return k.writer.WriteMessages(cctx, msgs...)
}

func (k *Kafka) Run(ctx context.Context, h Handler) error {
	var wg sync.WaitGroup
	for range k.workers {
		wg.Go(func() {
			k.consume(ctx, h)
		})
	}
	wg.Wait()
	return nil
}

func (k *Kafka) consume(ctx context.Context, h Handler) {
	for {
		m, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				// canceled or reader closed
				return
			}
			k.logger.Error("failed to fetch job", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}

		job, err := decodeJob(m)
		if err != nil {
			// commit bad messages so they are not redelivered forever
			k.logger.Error("dropping malformed job", "offset", m.Offset, "error", err)
			k.commit(ctx, m)
			continue
		}

		h.Handle(ctx, job)

		if ctx.Err() != nil {
			// shutting down mid-job: leave it uncommitted for redelivery
			return
		}
		k.commit(ctx, m)
	}
}

func (k *Kafka) commit(ctx context.Context, m kgo.Message) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := k.reader.CommitMessages(cctx, m); err != nil {
		k.logger.Error("failed to commit job offset", "offset", m.Offset, "error", err)
	}
}

func (k *Kafka) Close() error {
	return errors.Join(k.writer.Close(), k.reader.Close())
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
