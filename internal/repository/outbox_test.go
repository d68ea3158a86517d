package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func pendingRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "aggregate_type", "aggregate_id", "event_type", "payload", "status",
		"retry_count", "max_retries", "error_message", "created_at", "published_at", "confirmed_at",
	})
	now := time.Now()
	for _, id := range ids {
		rows.AddRow(id, model.AggregateTypeSettings, "hp-01", model.EventTypeSettingUpdate,
			[]byte(`{}`), "pending", 0, 3, nil, now, nil, nil)
	}
	return rows
}

// A shutdown signal arriving mid-batch must stop the claim loop but still
// commit the transitions for entries the broker already accepted.
func TestProcessPendingCommitsWorkDoneBeforeCancel(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewOutboxRepository(dbx)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .+ FROM outbox`).
		WithArgs(10).
		WillReturnRows(pendingRows(1, 2))
	mock.ExpectExec("UPDATE outbox SET status = 'published'").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stats, err := repo.ProcessPending(ctx, 10, func(ctx context.Context, e model.OutboxEntry) error {
		cancel() // shutdown lands while this entry is in flight
		return nil
	})
	require.NoError(t, err)

	// entry 1 published and committed, entry 2 never dispatched
	assert.Equal(t, 1, stats.Published)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessPendingRecordsFailureAndRetry(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewOutboxRepository(dbx)

	mock.ExpectBegin()
	mock.ExpectQuery(`(?s)SELECT .+ FROM outbox`).
		WithArgs(10).
		WillReturnRows(pendingRows(5))
	mock.ExpectExec("UPDATE outbox SET retry_count = ").
		WithArgs(1, assert.AnError.Error(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	stats, err := repo.ProcessPending(context.Background(), 10, func(ctx context.Context, e model.OutboxEntry) error {
		return assert.AnError
	})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Retried)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConfirmIsConditional(t *testing.T) {
	dbx, mock := newMockDB(t)
	repo := NewOutboxRepository(dbx)

	mock.ExpectExec("UPDATE outbox SET status = 'confirmed'").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.Confirm(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)

	// losing racer: row no longer published, zero rows affected
	mock.ExpectExec("UPDATE outbox SET status = 'confirmed'").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.Confirm(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}
