// Package publish pushes decoded ticks onto the realtime Kafka topic for
// downstream consumers outside this process.
package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

const (
	queueSize    = 1024
	writeTimeout = 5 * time.Second
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher produces every tick to the realtime topic keyed by ticker,
// keeping one symbol's stream ordered on a single partition. Publishing is
// best-effort: a full queue or a failed produce drops the tick.
type KafkaPublisher struct {
	writer messageWriter
	logger *slog.Logger
	queue  chan domain.PriceTick
	done   chan struct{}
}

// NewKafkaPublisher creates a publisher for the given brokers and topic and
// starts its delivery loop.
func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newKafkaPublisher(w, logger)
}

func newKafkaPublisher(w messageWriter, logger *slog.Logger) *KafkaPublisher {
	p := &KafkaPublisher{
		writer: w,
		logger: logger.With(slog.String("component", "publish_kafka")),
		queue:  make(chan domain.PriceTick, queueSize),
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

// Publish enqueues the tick without blocking the caller.
func (p *KafkaPublisher) Publish(tick domain.PriceTick) {
	select {
	case p.queue <- tick:
	default:
		p.logger.Warn("realtime queue overflow, dropping tick",
			slog.String("ticker", tick.Ticker),
		)
	}
}

// Close stops the delivery loop.
func (p *KafkaPublisher) Close() {
	close(p.done)
}

func (p *KafkaPublisher) run() {
	for {
		select {
		case <-p.done:
			return
		case tick := <-p.queue:
			payload, err := json.Marshal(tick)
			if err != nil {
				p.logger.Warn("tick marshal failed", slog.String("error", err.Error()))
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err = p.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(tick.Ticker),
				Value: payload,
			})
			cancel()
			if err != nil {
				p.logger.Warn("tick produce failed",
					slog.String("ticker", tick.Ticker),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

var _ domain.PricePublisher = (*KafkaPublisher)(nil)
