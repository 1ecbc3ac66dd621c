// Package events publishes order lifecycle events to Kafka.
//
// Emit never blocks the caller: events go into a bounded in-memory outbox and
// a background loop writes them in batches, keeping failed batches for the
// next tick.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/metrics"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type Type string

const (
	TypeOrderPlaced   Type = "order_placed"
	TypeStatusChanged Type = "status_changed"
)

const DefaultTopic = "storefront-orders"

type Event struct {
	ID         string             `json:"id"`
	Type       Type               `json:"type"`
	Profile    string             `json:"profile"`
	OrderID    string             `json:"order_id"`
	UserID     string             `json:"user_id"`
	Status     domain.OrderStatus `json:"status"`
	Total      decimal.Decimal    `json:"total"`
	ItemCount  int                `json:"item_count"`
	OccurredAt time.Time          `json:"occurred_at"`
}

func OrderPlaced(profile string, o domain.Order) Event {
	count := 0
	for _, item := range o.Items {
		count += item.Quantity
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       TypeOrderPlaced,
		Profile:    profile,
		OrderID:    o.ID,
		UserID:     o.UserID,
		Status:     o.Status,
		Total:      o.Total,
		ItemCount:  count,
		OccurredAt: time.Now().UTC(),
	}
}

func StatusChanged(profile string, o domain.Order) Event {
	e := OrderPlaced(profile, o)
	e.Type = TypeStatusChanged
	return e
}

// Writer is the subset of *kafka.Writer the outbox needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

type Outbox struct {
	writer     Writer
	logger     *slog.Logger
	queue      chan Event
	pending    []Event
	tick       time.Duration
	batchSize  int
	maxPending int
}

type Option func(*Outbox)

func WithTick(d time.Duration) Option {
	return func(o *Outbox) { o.tick = d }
}

func WithCapacity(n int) Option {
	return func(o *Outbox) {
		o.queue = make(chan Event, n)
		o.maxPending = n
	}
}

func NewOutbox(w Writer, logger *slog.Logger, opts ...Option) *Outbox {
	o := &Outbox{
		writer:     w,
		logger:     logger,
		queue:      make(chan Event, 1024),
		tick:       time.Second,
		batchSize:  100,
		maxPending: 1024,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Emit queues e for publishing. When the queue is full the event is dropped.
func (o *Outbox) Emit(ctx context.Context, e Event) {
	select {
	case o.queue <- e:
	default:
		metrics.EventsPublished.WithLabelValues(string(e.Type), "dropped").Inc()
		o.logger.WarnContext(ctx, "event queue full, dropping event", "type", e.Type, "order_id", e.OrderID)
	}
}

// Run publishes queued events until ctx is cancelled, then makes one last
// attempt to flush and closes the writer.
func (o *Outbox) Run(ctx context.Context) {
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	for {
		select {
		case e := <-o.queue:
			o.enqueue(e)
			if len(o.pending) >= o.batchSize {
				o.flush(ctx)
			}
		case <-ticker.C:
			o.flush(ctx)
		case <-ctx.Done():
			o.drain()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			o.flush(shutdownCtx)
			cancel()
			if err := o.writer.Close(); err != nil {
				o.logger.Error("failed to close event writer", "error", err)
			}
			return
		}
	}
}

func (o *Outbox) enqueue(e Event) {
	if len(o.pending) >= o.maxPending {
		dropped := o.pending[0]
		o.pending = o.pending[1:]
		metrics.EventsPublished.WithLabelValues(string(dropped.Type), "dropped").Inc()
		o.logger.Warn("outbox full, dropping oldest event", "type", dropped.Type, "order_id", dropped.OrderID)
	}
	o.pending = append(o.pending, e)
}

func (o *Outbox) drain() {
	for {
		select {
		case e := <-o.queue:
			o.enqueue(e)
		default:
			return
		}
	}
}

func (o *Outbox) flush(ctx context.Context) {
	o.drain()
	for len(o.pending) > 0 {
		n := min(len(o.pending), o.batchSize)
		batch := o.pending[:n]

		msgs := make([]kafka.Message, 0, n)
		for _, e := range batch {
			msg, err := toMessage(e)
			if err != nil {
				o.logger.Error("failed to encode event", "type", e.Type, "order_id", e.OrderID, "error", err)
				continue
			}
			msgs = append(msgs, msg)
		}

		if err := o.writer.WriteMessages(ctx, msgs...); err != nil {
			o.logger.Warn("failed to publish events, will retry", "count", len(msgs), "error", err)
			for _, e := range batch {
				metrics.EventsPublished.WithLabelValues(string(e.Type), "retry").Inc()
			}
			return
		}

		for _, e := range batch {
			metrics.EventsPublished.WithLabelValues(string(e.Type), "ok").Inc()
		}
		o.pending = o.pending[n:]
	}
	o.pending = nil
}

func toMessage(e Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(e.OrderID), // order_id keeps per-order ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}, nil
}

// Pending reports how many events are waiting to be published. It must only
// be called while Run is not running.
func (o *Outbox) Pending() int {
	o.drain()
	return len(o.pending)
}
