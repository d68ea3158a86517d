package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bokristoffersson/settings-gateway/internal/kafka"
	"github.com/bokristoffersson/settings-gateway/internal/metrics"
	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/bokristoffersson/settings-gateway/internal/repository"
	"go.uber.org/zap"
)

// CommandChannel is the publish-only side of the command transport.
type CommandChannel interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// OutboxStore is the slice of the outbox the publisher needs.
type OutboxStore interface {
	ProcessPending(ctx context.Context, limit int, dispatch repository.DispatchFunc) (repository.DispatchStats, error)
	CountStalePublished(ctx context.Context, olderThan time.Duration) (int, error)
}

// Publisher drains pending outbox entries on a fixed interval and dispatches
// them as command envelopes, independent of request traffic.
type Publisher struct {
	// Dependencies
	Outbox  OutboxStore
	Channel CommandChannel
	Log     *zap.Logger

	// Behavior
	Interval       time.Duration
	BatchSize      int
	PublishTimeout time.Duration
	ConfirmWindow  time.Duration // staleness gauge threshold for published entries
}

// New builds a publisher with sane defaults.
func New(outbox OutboxStore, channel CommandChannel, log *zap.Logger) *Publisher {
	return &Publisher{
		Outbox:         outbox,
		Channel:        channel,
		Log:            log,
		Interval:       5 * time.Second,
		BatchSize:      50,
		PublishTimeout: 3 * time.Second,
		ConfirmWindow:  5 * time.Minute,
	}
}

// Run polls until ctx is cancelled. The in-flight pass finishes its
// transaction before Run returns.
func (p *Publisher) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		p.Interval = 5 * time.Second
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 50
	}
	if p.PublishTimeout <= 0 {
		p.PublishTimeout = 3 * time.Second
	}

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) {
	stats, err := p.Outbox.ProcessPending(ctx, p.BatchSize, p.dispatch)
	if err != nil {
		if ctx.Err() == nil {
			p.Log.Error("process pending failed", zap.Error(err))
		}
		return
	}

	metrics.CommandsTotal.WithLabelValues("published").Add(float64(stats.Published))
	metrics.CommandsTotal.WithLabelValues("retried").Add(float64(stats.Retried))
	metrics.CommandsTotal.WithLabelValues("failed").Add(float64(stats.Failed))

	if stats.Published+stats.Retried+stats.Failed+stats.Skipped > 0 {
		p.Log.Info("dispatch pass",
			zap.Int("published", stats.Published),
			zap.Int("retried", stats.Retried),
			zap.Int("failed", stats.Failed),
			zap.Int("skipped", stats.Skipped),
		)
	}

	p.reportStaleness(ctx)
}

// dispatch builds the command envelope for one entry and publishes it keyed by
// device id, bounded by the publish timeout.
func (p *Publisher) dispatch(ctx context.Context, e model.OutboxEntry) error {
	var payload model.ChangePayload
	if err := json.Unmarshal(e.Payload, &payload); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}

	env := model.CommandEnvelope{
		EntryID:        e.ID,
		DeviceID:       payload.DeviceID,
		IdempotencyKey: payload.IdempotencyKey,
		Fields:         payload.Fields,
		IssuedAt:       time.Now().UTC(),
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, p.PublishTimeout)
	defer cancel()

	if err := p.Channel.Publish(pctx, payload.DeviceID, b); err != nil {
		if errors.Is(err, kafka.ErrChannelUnavailable) {
			// Breaker open: no attempt was made, keep the retry budget intact.
			return repository.ErrDispatchSkipped
		}
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

func (p *Publisher) reportStaleness(ctx context.Context) {
	if p.ConfirmWindow <= 0 {
		return
	}
	n, err := p.Outbox.CountStalePublished(ctx, p.ConfirmWindow)
	if err != nil {
		if ctx.Err() == nil {
			p.Log.Error("stale count failed", zap.Error(err))
		}
		return
	}
	metrics.PublishedStale.Set(float64(n))
	if n > 0 {
		p.Log.Warn("published entries past confirmation window",
			zap.Int("count", n),
			zap.Duration("window", p.ConfirmWindow),
		)
	}
}
