package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	txcontext "dictkeys/pkg/platform/tx"
)

// Outbox is the relay's view of the outbox table.
type Outbox interface {
	ListUnpublished(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Publisher sends one record to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

const (
	HeaderEventName = "event-name"
	HeaderEventID   = "event-id"

	defaultRelayInterval  = time.Second
	defaultRelayBatchSize = 100
)

// Relay moves outbox records to kafka. Records are published in creation
// order keyed by key id, so every key's events stay ordered within a
// partition. Delivery is at least once.
type Relay struct {
	outbox    Outbox
	tx        txcontext.Runner
	publisher Publisher
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

type RelayOption func(*Relay)

func WithRelayInterval(d time.Duration) RelayOption {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithRelayBatchSize(n int) RelayOption {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(outbox Outbox, tx txcontext.Runner, publisher Publisher, topic string, opts ...RelayOption) *Relay {
	r := &Relay{
		outbox:    outbox,
		tx:        tx,
		publisher: publisher,
		topic:     topic,
		interval:  defaultRelayInterval,
		batchSize: defaultRelayBatchSize,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				r.logger.ErrorContext(ctx, "outbox relay flush failed", "error", err)
				break
			}
			if n < r.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch and returns how many records were published.
// Records published before a failure are still marked.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var published []uuid.UUID
	var publishErr error
	err := r.tx.RunInTx(ctx, func(ctx context.Context) error {
		records, err := r.outbox.ListUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		for _, rec := range records {
			headers := map[string]string{
				HeaderEventName: rec.EventType,
				HeaderEventID:   rec.ID.String(),
			}
			if err := r.publisher.Publish(ctx, r.topic, []byte(rec.AggregateID), rec.Payload, headers); err != nil {
				publishErr = err
				break
			}
			published = append(published, rec.ID)
		}
		return r.outbox.MarkPublished(ctx, published, r.now())
	})
	if err != nil {
		return 0, err
	}
	if publishErr != nil {
		r.logger.WarnContext(ctx, "outbox relay stopped mid-batch",
			"published", len(published),
			"error", publishErr,
		)
	}
	return len(published), publishErr
}
