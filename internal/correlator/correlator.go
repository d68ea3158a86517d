package correlator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bokristoffersson/settings-gateway/internal/kafka"
	"github.com/bokristoffersson/settings-gateway/internal/metrics"
	"github.com/bokristoffersson/settings-gateway/internal/model"
	"go.uber.org/zap"
)

// Consumer is the subscribe side of the confirmation stream.
type Consumer interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

// OutboxStore is the slice of the outbox the correlator needs.
type OutboxStore interface {
	ListPublishedByDevice(ctx context.Context, deviceID string) ([]model.OutboxEntry, error)
	Confirm(ctx context.Context, id int64) (bool, error)
}

// Correlator closes the loop: it consumes the telemetry stream continuously
// and confirms published entries whose expected values the device now reports.
// It never talks to the publisher directly; the outbox rows are the only
// shared state.
type Correlator struct {
	Consumer Consumer
	Outbox   OutboxStore
	Log      *zap.Logger

	// Tolerance bounds the float comparison between expected and reported
	// values. Integer fields always compare exactly.
	Tolerance float64
}

func New(consumer Consumer, outbox OutboxStore, log *zap.Logger, tolerance float64) *Correlator {
	if tolerance <= 0 {
		tolerance = 0.05
	}
	return &Correlator{
		Consumer:  consumer,
		Outbox:    outbox,
		Log:       log,
		Tolerance: tolerance,
	}
}

// Run consumes until ctx is cancelled.
func (c *Correlator) Run(ctx context.Context) error {
	for {
		m, err := c.Consumer.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.Log.Error("telemetry fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}

		c.processOne(ctx, m)
	}
}

func (c *Correlator) processOne(ctx context.Context, m kafka.Message) {
	var reading model.TelemetryReading
	if err := json.Unmarshal(m.Value, &reading); err != nil || reading.DeviceID == "" {
		// poison -> commit, skip
		_ = c.Consumer.Commit(ctx, m)
		if err != nil {
			c.Log.Warn("bad telemetry json", zap.Error(err))
		} else {
			c.Log.Warn("telemetry missing device_id")
		}
		return
	}

	if err := c.correlate(ctx, reading); err != nil {
		// The reading stays uncommitted and is redelivered; confirmation is a
		// conditional update so reprocessing is harmless.
		if ctx.Err() == nil {
			c.Log.Error("correlate failed", zap.String("device_id", reading.DeviceID), zap.Error(err))
		}
		return
	}

	if err := c.Consumer.Commit(ctx, m); err != nil && ctx.Err() == nil {
		c.Log.Error("telemetry commit failed", zap.Error(err))
	}
}

// correlate confirms the oldest published entry whose expected patch the
// reading satisfies. Unmatched candidates stay published for a later reading.
func (c *Correlator) correlate(ctx context.Context, reading model.TelemetryReading) error {
	entries, err := c.Outbox.ListPublishedByDevice(ctx, reading.DeviceID)
	if err != nil {
		return err
	}

	for _, e := range entries {
		var payload model.ChangePayload
		if err := json.Unmarshal(e.Payload, &payload); err != nil {
			c.Log.Warn("bad outbox payload", zap.Int64("entry_id", e.ID), zap.Error(err))
			continue
		}

		if !payload.Fields.MatchedBy(reading.Fields, c.Tolerance) {
			continue
		}

		ok, err := c.Outbox.Confirm(ctx, e.ID)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with another correlator or with the failure path.
			// Already-transitioned is success, not an error.
			continue
		}

		metrics.CommandsTotal.WithLabelValues("confirmed").Inc()
		c.Log.Info("entry confirmed",
			zap.Int64("entry_id", e.ID),
			zap.String("device_id", reading.DeviceID),
		)
		return nil
	}

	return nil
}
