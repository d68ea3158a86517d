package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// ErrChannelUnavailable is returned without touching the broker while the
// breaker is open. Callers should treat it as "no attempt made", not as a
// failed publish attempt.
var ErrChannelUnavailable = errors.New("command channel unavailable")

type ProducerConfig struct {
	Brokers       []string
	Topic         string
	FailThreshold int // breaker: consecutive failures before opening
	OpenForMs     int // breaker: open window in milliseconds
}

// Producer publishes command messages keyed by device id, guarded by a
// micro circuit breaker so a dead broker fails fast instead of blocking
// every entry in the batch.
type Producer struct {
	w  *kafka.Writer
	br *MicroBreaker
}

func NewProducerFromConfig(c ProducerConfig) *Producer {
	threshold := c.FailThreshold
	if threshold <= 0 {
		threshold = 3
	}
	openFor := c.OpenForMs
	if openFor <= 0 {
		openFor = 15000
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(c.Brokers...),
		Topic:        c.Topic,
		Balancer:     &kafka.Hash{}, // same device id -> same partition, preserves per-device order
		RequiredAcks: kafka.RequireAll,
	}

	return &Producer{
		w:  w,
		br: NewMicroBreaker(threshold, time.Duration(openFor)*time.Millisecond),
	}
}

// Publish writes one message addressed to key. Publish either succeeds (the
// message is durably queued at the broker) or returns an error; device-side
// application is confirmed elsewhere.
func (p *Producer) Publish(ctx context.Context, key string, value []byte) error {
	if !p.br.TryAcquire() {
		return ErrChannelUnavailable
	}

	err := p.w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
	if err != nil {
		p.br.OnFailure()
		return err
	}

	p.br.OnSuccess()

	return nil
}

func (p *Producer) Close() error { return p.w.Close() }
