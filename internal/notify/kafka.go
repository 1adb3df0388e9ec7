package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DanielNuud/reactive-my-stock-app/internal/domain"
)

const (
	// queueSize bounds the in-flight notification buffer; overflow drops the
	// command with a warning rather than stalling the tick path.
	queueSize = 256

	// writeTimeout bounds each Kafka produce.
	writeTimeout = 5 * time.Second
)

// messageWriter is the slice of kafka.Writer the sink uses; narrowed for tests.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaSink publishes notification commands to the notifications topic keyed
// by user, so one user's notifications stay ordered on a single partition.
type KafkaSink struct {
	writer messageWriter
	logger *slog.Logger
	queue  chan domain.Notification
	done   chan struct{}
}

// NewKafkaSink creates a sink producing to the given brokers and topic and
// starts its background delivery loop.
func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return newKafkaSink(w, logger)
}

func newKafkaSink(w messageWriter, logger *slog.Logger) *KafkaSink {
	s := &KafkaSink{
		writer: w,
		logger: logger.With(slog.String("component", "notify_kafka")),
		queue:  make(chan domain.Notification, queueSize),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Send enqueues the notification. It never blocks: a full queue drops the
// command and logs the overflow.
func (s *KafkaSink) Send(_ context.Context, n domain.Notification) error {
	select {
	case s.queue <- n:
		return nil
	default:
		s.logger.Warn("notification queue overflow, dropping",
			slog.String("user", n.UserKey),
			slog.String("code", n.Code),
		)
		return fmt.Errorf("notify: queue full")
	}
}

// Close stops the delivery loop. Queued notifications are abandoned; delivery
// is best-effort by contract.
func (s *KafkaSink) Close() {
	close(s.done)
}

// run drains the queue onto Kafka. Produce failures are logged and the
// command is dropped; the consumer side tolerates gaps.
func (s *KafkaSink) run() {
	for {
		select {
		case <-s.done:
			return
		case n := <-s.queue:
			payload, err := json.Marshal(n)
			if err != nil {
				s.logger.Warn("notification marshal failed", slog.String("error", err.Error()))
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err = s.writer.WriteMessages(ctx, kafka.Message{
				Key:   []byte(n.UserKey),
				Value: payload,
			})
			cancel()
			if err != nil {
				s.logger.Warn("notification produce failed",
					slog.String("user", n.UserKey),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Compile-time interface check.
var _ domain.NotificationSink = (*KafkaSink)(nil)
