package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/angelmondragon/restaurant-backend/pkg/config"
	"github.com/angelmondragon/restaurant-backend/pkg/logger"
)

var errNoBrokers = errors.New("kafka brokers are required")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes outbox events to Kafka. One writer serves every topic;
// the topic travels on each message.
type Publisher struct {
	writer  messageWriter
	brokers []string
	timeout time.Duration
}

func NewPublisher(cfg config.KafkaConfig, logg *logger.Logger) (*Publisher, error) {
	brokers := trimBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errNoBrokers
	}
	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
		Transport:    &kafkago.Transport{ClientID: cfg.ClientID},
	}
	if logg != nil {
		logg.Info(logg.WithField(context.Background(), "brokers", brokers), "kafka publisher initialized")
	}
	return &Publisher{writer: writer, brokers: brokers, timeout: cfg.WriteTimeout}, nil
}

func trimBrokers(brokers []string) []string {
	out := []string{}
	for _, b := range brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Publish writes one message keyed by aggregate id so a partition keeps the
// aggregate's events ordered. Kafka has no server message id; the returned
// id is topic plus key.
func (p *Publisher) Publish(ctx context.Context, topic, key string, data []byte, attrs map[string]string) (string, error) {
	if p == nil || p.writer == nil {
		return "", errors.New("kafka publisher not initialized")
	}
	headers := make([]kafkago.Header, 0, len(attrs))
	for k, v := range attrs {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	msg := kafkago.Message{
		Topic:   topic,
		Key:     []byte(key),
		Value:   data,
		Headers: headers,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("kafka write %s: %w", topic, err)
	}
	return topic + "/" + key, nil
}

// Ping dials the first reachable broker.
func (p *Publisher) Ping(ctx context.Context) error {
	if p == nil {
		return errors.New("kafka publisher not initialized")
	}
	var lastErr error
	for _, addr := range p.brokers {
		conn, err := kafkago.DialContext(ctx, "tcp", addr)
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	return fmt.Errorf("no kafka broker reachable: %w", lastErr)
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// Consume reads topic as part of groupID until ctx is done. Offsets are
// committed only after handler succeeds.
func Consume(ctx context.Context, cfg config.KafkaConfig, topic, groupID string, logg *logger.Logger, handler func(ctx context.Context, msg kafkago.Message) error) error {
	brokers := trimBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return errNoBrokers
	}
	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logg.Error(logg.WithField(ctx, "topic", topic), "kafka fetch failed", err)
			continue
		}
		if err := handler(ctx, msg); err != nil {
			logg.Error(logg.WithFields(ctx, map[string]any{"topic": topic, "offset": msg.Offset}), "kafka handler failed", err)
			continue
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logg.Error(logg.WithField(ctx, "topic", topic), "kafka commit failed", err)
		}
	}
}

// Header returns the value of a message header or "".
func Header(msg kafkago.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
