package publisher

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bokristoffersson/settings-gateway/internal/kafka"
	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/bokristoffersson/settings-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memOutbox applies the same transition contract as the sqlx implementation,
// over an in-memory slice.
type memOutbox struct {
	mu      sync.Mutex
	entries []model.OutboxEntry
}

func (m *memOutbox) ProcessPending(ctx context.Context, limit int, dispatch repository.DispatchFunc) (repository.DispatchStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats repository.DispatchStats
	claimed := 0
	for i := range m.entries {
		e := &m.entries[i]
		if e.Status != model.StatusPending {
			continue
		}
		if claimed >= limit {
			break
		}
		claimed++

		err := dispatch(ctx, *e)
		switch {
		case err == nil:
			e.Status = model.StatusPublished
			e.PublishedAt = sql.NullTime{Time: time.Now(), Valid: true}
			stats.Published++
		case errors.Is(err, repository.ErrDispatchSkipped):
			stats.Skipped++
		default:
			next, retries := model.NextOnPublishFailure(*e)
			e.RetryCount = retries
			e.ErrorMessage = sql.NullString{String: err.Error(), Valid: true}
			if next == model.StatusFailed {
				e.Status = model.StatusFailed
				stats.Failed++
			} else {
				stats.Retried++
			}
		}
	}
	return stats, nil
}

func (m *memOutbox) CountStalePublished(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (m *memOutbox) get(id int64) model.OutboxEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e
		}
	}
	return model.OutboxEntry{}
}

type sentMessage struct {
	key   string
	value []byte
}

// fakeChannel records publishes; failEntries makes given entry ids fail.
type fakeChannel struct {
	mu          sync.Mutex
	sent        []sentMessage
	failEntries map[int64]error
}

func (f *fakeChannel) Publish(ctx context.Context, key string, value []byte) error {
	var env model.CommandEnvelope
	_ = json.Unmarshal(value, &env)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failEntries[env.EntryID]; ok {
		return err
	}
	f.sent = append(f.sent, sentMessage{key: key, value: value})
	return nil
}

func pendingEntry(id int64, deviceID string, maxRetries int) model.OutboxEntry {
	payload, _ := json.Marshal(model.ChangePayload{
		DeviceID:       deviceID,
		IdempotencyKey: "01TESTKEY",
		Fields:         model.Patch{model.FieldTargetTemp: 21.5},
	})
	return model.OutboxEntry{
		ID:            id,
		AggregateType: model.AggregateTypeSettings,
		AggregateID:   deviceID,
		EventType:     model.EventTypeSettingUpdate,
		Payload:       payload,
		Status:        model.StatusPending,
		MaxRetries:    maxRetries,
		CreatedAt:     time.Now(),
	}
}

func newTestPublisher(outbox OutboxStore, channel CommandChannel) *Publisher {
	p := New(outbox, channel, zap.NewNop())
	p.PublishTimeout = time.Second
	return p
}

func TestPublisherDispatchesPendingEntry(t *testing.T) {
	store := &memOutbox{entries: []model.OutboxEntry{pendingEntry(42, "hp-01", 3)}}
	channel := &fakeChannel{}
	p := newTestPublisher(store, channel)

	p.tick(context.Background())

	e := store.get(42)
	assert.Equal(t, model.StatusPublished, e.Status)
	assert.True(t, e.PublishedAt.Valid)

	require.Len(t, channel.sent, 1)
	assert.Equal(t, "hp-01", channel.sent[0].key)

	var env model.CommandEnvelope
	require.NoError(t, json.Unmarshal(channel.sent[0].value, &env))
	assert.Equal(t, int64(42), env.EntryID)
	assert.Equal(t, "hp-01", env.DeviceID)
	assert.Equal(t, "01TESTKEY", env.IdempotencyKey)
	assert.Equal(t, 21.5, env.Fields[model.FieldTargetTemp])
	assert.False(t, env.IssuedAt.IsZero())
}

func TestPublisherRetryExhaustion(t *testing.T) {
	store := &memOutbox{entries: []model.OutboxEntry{pendingEntry(1, "hp-01", 3)}}
	channel := &fakeChannel{failEntries: map[int64]error{1: errors.New("broker boom")}}
	p := newTestPublisher(store, channel)

	ctx := context.Background()
	p.tick(ctx)
	p.tick(ctx)

	e := store.get(1)
	assert.Equal(t, model.StatusPending, e.Status)
	assert.Equal(t, 2, e.RetryCount)

	// third failed attempt spends the budget
	p.tick(ctx)

	e = store.get(1)
	assert.Equal(t, model.StatusFailed, e.Status)
	assert.Equal(t, 3, e.RetryCount)
	require.True(t, e.ErrorMessage.Valid)
	assert.Contains(t, e.ErrorMessage.String, "broker boom")

	// terminal: further ticks change nothing
	p.tick(ctx)
	assert.Equal(t, model.StatusFailed, store.get(1).Status)
	assert.Equal(t, 3, store.get(1).RetryCount)
}

func TestPublisherNoHeadOfLineBlockingBeyondRetryWindow(t *testing.T) {
	store := &memOutbox{entries: []model.OutboxEntry{
		pendingEntry(1, "hp-01", 2),
		pendingEntry(2, "hp-01", 2),
		pendingEntry(3, "hp-01", 2),
	}}
	channel := &fakeChannel{failEntries: map[int64]error{1: errors.New("stuck")}}
	p := newTestPublisher(store, channel)

	ctx := context.Background()
	p.tick(ctx)
	p.tick(ctx)

	assert.Equal(t, model.StatusFailed, store.get(1).Status)
	assert.Equal(t, model.StatusPublished, store.get(2).Status)
	assert.Equal(t, model.StatusPublished, store.get(3).Status)
}

func TestPublisherBreakerOpenLeavesBudgetIntact(t *testing.T) {
	store := &memOutbox{entries: []model.OutboxEntry{pendingEntry(7, "hp-02", 3)}}
	channel := &fakeChannel{failEntries: map[int64]error{7: kafka.ErrChannelUnavailable}}
	p := newTestPublisher(store, channel)

	ctx := context.Background()
	p.tick(ctx)
	p.tick(ctx)
	p.tick(ctx)
	p.tick(ctx)

	// no attempt was made: still pending with the full retry budget
	e := store.get(7)
	assert.Equal(t, model.StatusPending, e.Status)
	assert.Equal(t, 0, e.RetryCount)
}

func TestPublisherBadPayloadCountsAsAttempt(t *testing.T) {
	e := pendingEntry(9, "hp-01", 1)
	e.Payload = []byte("{not json")
	store := &memOutbox{entries: []model.OutboxEntry{e}}
	p := newTestPublisher(store, &fakeChannel{})

	p.tick(context.Background())

	got := store.get(9)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.True(t, got.ErrorMessage.Valid)
	assert.Contains(t, got.ErrorMessage.String, "bad payload")
}

func TestPublisherRunStopsOnCancel(t *testing.T) {
	store := &memOutbox{}
	p := newTestPublisher(store, &fakeChannel{})
	p.Interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop after cancel")
	}
}
