package kafka

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/ariefcatur/go-resilient-orders/internal/tracing"
	"github.com/segmentio/kafka-go"
)

// Publisher emits domain events. Delivery is best-effort.
type Publisher interface {
	PublishEvent(ctx context.Context, key string, env Envelope) error
}

// Discard drops every event. Used when no brokers are configured.
type Discard struct{}

func (Discard) PublishEvent(context.Context, string, Envelope) error { return nil }

type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     *slog.Logger
}

func NewProducer(brokers []string, topic string, buf int, log *slog.Logger) *Producer {
	if log == nil {
		log = slog.Default()
	}
	p := &Producer{
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log,
	}
	p.w = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
		Completion: func(msgs []kafka.Message, err error) {
			if err != nil {
				p.log.Error("kafka write failed", "topic", topic, "messages", len(msgs), "err", err)
			}
		},
	}
	return p
}

// Start runs the write loop until Close is called and the inbox is drained.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.WithoutCancel(ctx), m); err != nil {
				p.log.Error("kafka enqueue failed", "topic", p.w.Topic, "err", err)
			}
		}
		if err := p.w.Close(); err != nil {
			p.log.Error("kafka writer close", "err", err)
		}
	}()
}

func (p *Producer) PublishEvent(ctx context.Context, key string, env Envelope) error {
	m := message(ctx, key, env)
	select {
	case p.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func message(ctx context.Context, key string, env Envelope) kafka.Message {
	headers := append([]kafka.Header{
		{Key: "x-event-type", Value: []byte(env.EventType)},
		{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
	}, tracing.KafkaHeaders(ctx)...)
	return kafka.Message{
		Key:     []byte(key),
		Value:   MustMarshal(env),
		Time:    env.OccurredAt,
		Headers: headers,
	}
}

// Close stops accepting messages; the loop flushes what is queued and exits.
func (p *Producer) Close() { close(p.inbox) }

func (p *Producer) WaitClosed() { <-p.closeCh }
