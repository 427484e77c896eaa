package kafka

import (
	"context"
	"errors"
	"testing"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
)

type stubWriter struct {
	msgs []kafkago.Message
	err  error
}

func (s *stubWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	s.msgs = append(s.msgs, msgs...)
	return s.err
}

func (s *stubWriter) Close() error { return nil }

func TestPublishCarriesKeyAndHeaders(t *testing.T) {
	w := &stubWriter{}
	p := &Publisher{writer: w}

	id, err := p.Publish(context.Background(), "orders", "order-1", []byte(`{}`), map[string]string{"event_type": "order.created"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if id != "orders/order-1" {
		t.Fatalf("unexpected id %q", id)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(w.msgs))
	}
	msg := w.msgs[0]
	if msg.Topic != "orders" || string(msg.Key) != "order-1" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if Header(msg, "event_type") != "order.created" || Header(msg, "missing") != "" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}
}

func TestPublishWrapsWriterError(t *testing.T) {
	boom := errors.New("leader not available")
	p := &Publisher{writer: &stubWriter{err: boom}}
	if _, err := p.Publish(context.Background(), "orders", "k", nil, nil); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewPublisherRequiresBrokers(t *testing.T) {
	if _, err := NewPublisher(config.KafkaConfig{Brokers: []string{" ", ""}}, nil); !errors.Is(err, errNoBrokers) {
		t.Fatalf("expected errNoBrokers, got %v", err)
	}
}
