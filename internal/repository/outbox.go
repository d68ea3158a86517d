package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// ErrDispatchSkipped is returned by a DispatchFunc when no publish attempt was
// made (e.g. the command channel breaker is open). The entry stays pending and
// its retry budget is untouched.
var ErrDispatchSkipped = errors.New("dispatch skipped")

// DispatchFunc publishes one claimed entry to the command channel. A nil
// return means the message is durably queued at the broker.
type DispatchFunc func(ctx context.Context, e model.OutboxEntry) error

// DispatchStats summarizes one ProcessPending pass.
type DispatchStats struct {
	Published int
	Retried   int
	Failed    int
	Skipped   int
}

// OutboxRepository defines persistence for the outbox table. Rows are never
// deleted here; cleanup is an out-of-band housekeeping concern.
type OutboxRepository interface {
	// Insert writes a single entry with status=pending. If tx is nil, it will
	// open/commit an internal transaction; otherwise it uses the given tx.
	// Returns the assigned id.
	Insert(ctx context.Context, tx *sqlx.Tx, aggregateType, aggregateID, eventType string, payload []byte, maxRetries int) (int64, error)

	// ProcessPending claims up to limit pending entries oldest-first with a
	// locking read (FOR UPDATE SKIP LOCKED), invokes dispatch for each, and
	// advances statuses in the same transaction. Entries whose dispatch fails
	// keep status=pending until the retry budget is spent, then move to failed
	// with the error recorded. A ctx cancellation stops claiming new entries
	// but commits the transitions already made.
	ProcessPending(ctx context.Context, limit int, dispatch DispatchFunc) (DispatchStats, error)

	// Confirm transitions published -> confirmed. Returns false when the entry
	// was not in published state (a losing racer; callers treat it as a no-op).
	Confirm(ctx context.Context, id int64) (bool, error)

	// ListPublishedByDevice returns entries awaiting confirmation, oldest first.
	ListPublishedByDevice(ctx context.Context, deviceID string) ([]model.OutboxEntry, error)

	// ListByDevice returns entries for status reads, newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]model.OutboxEntry, error)

	// CountStalePublished counts published entries whose published_at is older
	// than the given window, for operator-visible staleness.
	CountStalePublished(ctx context.Context, olderThan time.Duration) (int, error)
}

// OutboxRepositoryImpl is a sqlx-backed implementation.
type OutboxRepositoryImpl struct {
	db *sqlx.DB
}

func NewOutboxRepository(db *sqlx.DB) *OutboxRepositoryImpl {
	return &OutboxRepositoryImpl{db: db}
}

var _ OutboxRepository = (*OutboxRepositoryImpl)(nil)

const entryColumns = `id, aggregate_type, aggregate_id, event_type, payload, status,
	retry_count, max_retries, error_message, created_at, published_at, confirmed_at`

// withTx runs fn in the provided tx, or starts a new transaction when tx is nil.
func (r *OutboxRepositoryImpl) withTx(ctx context.Context, tx *sqlx.Tx, fn func(*sqlx.Tx) error) error {
	if tx != nil {
		return fn(tx)
	}

	t, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() { _ = t.Rollback() }()
	if err := fn(t); err != nil {
		return err
	}

	return t.Commit()
}

func (r *OutboxRepositoryImpl) Insert(ctx context.Context, tx *sqlx.Tx, aggregateType, aggregateID, eventType string, payload []byte, maxRetries int) (int64, error) {
	const q = `
		INSERT INTO outbox (aggregate_type, aggregate_id, event_type, payload, status, retry_count, max_retries, created_at)
		VALUES (?, ?, ?, ?, 'pending', 0, ?, NOW())
	`
	var id int64
	err := r.withTx(ctx, tx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, q, aggregateType, aggregateID, eventType, payload, maxRetries)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()

		return err
	})
	return id, err
}

func (r *OutboxRepositoryImpl) ProcessPending(ctx context.Context, limit int, dispatch DispatchFunc) (DispatchStats, error) {
	var stats DispatchStats

	// The transaction is detached from the loop ctx: a shutdown signal stops
	// claiming new entries (checked below) but must not roll back transitions
	// for entries already acked by the broker.
	txCtx := context.WithoutCancel(ctx)

	tx, err := r.db.BeginTxx(txCtx, nil)
	if err != nil {
		return stats, err
	}
	defer func() { _ = tx.Rollback() }()

	// Ascending id keeps dispatch FIFO; SKIP LOCKED lets concurrent workers
	// claim disjoint rows.
	var entries []model.OutboxEntry
	err = tx.SelectContext(txCtx, &entries, `
		SELECT `+entryColumns+`
		  FROM outbox
		 WHERE status = 'pending'
		 ORDER BY id ASC
		 LIMIT ?
		 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return stats, err
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if !e.Status.CanTransition(model.StatusPublished) {
			continue
		}

		derr := dispatch(ctx, e)
		switch {
		case derr == nil:
			if _, err := tx.ExecContext(txCtx, `
				UPDATE outbox SET status = 'published', published_at = NOW()
				 WHERE id = ? AND status = 'pending'
			`, e.ID); err != nil {
				return stats, err
			}
			stats.Published++

		case errors.Is(derr, ErrDispatchSkipped):
			stats.Skipped++

		default:
			next, retries := model.NextOnPublishFailure(e)
			if next == model.StatusFailed {
				if _, err := tx.ExecContext(txCtx, `
					UPDATE outbox SET status = 'failed', retry_count = ?, error_message = ?
					 WHERE id = ? AND status = 'pending'
				`, retries, derr.Error(), e.ID); err != nil {
					return stats, err
				}
				stats.Failed++
			} else {
				if _, err := tx.ExecContext(txCtx, `
					UPDATE outbox SET retry_count = ?, error_message = ?
					 WHERE id = ? AND status = 'pending'
				`, retries, derr.Error(), e.ID); err != nil {
					return stats, err
				}
				stats.Retried++
			}
		}
	}

	return stats, tx.Commit()
}

func (r *OutboxRepositoryImpl) Confirm(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE outbox SET status = 'confirmed', confirmed_at = NOW()
		 WHERE id = ? AND status = 'published'
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()

	return n > 0, err
}

func (r *OutboxRepositoryImpl) ListPublishedByDevice(ctx context.Context, deviceID string) ([]model.OutboxEntry, error) {
	var entries []model.OutboxEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT `+entryColumns+`
		  FROM outbox
		 WHERE aggregate_id = ? AND status = 'published'
		 ORDER BY id ASC
	`, deviceID)
	return entries, err
}

func (r *OutboxRepositoryImpl) ListByDevice(ctx context.Context, deviceID string, limit int) ([]model.OutboxEntry, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	var entries []model.OutboxEntry
	err := r.db.SelectContext(ctx, &entries, `
		SELECT `+entryColumns+`
		  FROM outbox
		 WHERE aggregate_id = ?
		 ORDER BY id DESC
		 LIMIT ?
	`, deviceID, limit)
	return entries, err
}

func (r *OutboxRepositoryImpl) CountStalePublished(ctx context.Context, olderThan time.Duration) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COUNT(*)
		  FROM outbox
		 WHERE status = 'published'
		   AND published_at < NOW() - INTERVAL ? SECOND
	`, int(olderThan.Seconds()))
	return n, err
}
