package model

import (
	"database/sql"
	"time"
)

type EntryStatus string

const (
	StatusPending   EntryStatus = "pending"
	StatusPublished EntryStatus = "published"
	StatusConfirmed EntryStatus = "confirmed"
	StatusFailed    EntryStatus = "failed"
)

func (s EntryStatus) String() string { return string(s) }

// Terminal reports whether no further transition is allowed.
func (s EntryStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// CanTransition enforces the forward-only status order:
// pending -> published -> confirmed, with failed reachable from pending and published.
func (s EntryStatus) CanTransition(to EntryStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusPending:
		return to == StatusPublished || to == StatusFailed
	case StatusPublished:
		return to == StatusConfirmed || to == StatusFailed
	default:
		return false
	}
}

// OutboxEntry is the source of truth for one settings-change intent.
// Rows are never deleted by normal operation; they remain as audit trail.
type OutboxEntry struct {
	ID            int64          `db:"id"`
	AggregateType string         `db:"aggregate_type"` // "device_settings"
	AggregateID   string         `db:"aggregate_id"`   // device id
	EventType     string         `db:"event_type"`     // "setting_update"
	Payload       []byte         `db:"payload"`
	Status        EntryStatus    `db:"status"`
	RetryCount    int            `db:"retry_count"`
	MaxRetries    int            `db:"max_retries"`
	ErrorMessage  sql.NullString `db:"error_message"`
	CreatedAt     time.Time      `db:"created_at"`
	PublishedAt   sql.NullTime   `db:"published_at"`
	ConfirmedAt   sql.NullTime   `db:"confirmed_at"`
}

const (
	AggregateTypeSettings  = "device_settings"
	EventTypeSettingUpdate = "setting_update"
)

// NextOnPublishFailure returns the status and retry count after one more
// failed publish attempt: pending while budget remains, failed once exhausted.
func NextOnPublishFailure(e OutboxEntry) (EntryStatus, int) {
	n := e.RetryCount + 1
	if n >= e.MaxRetries {
		return StatusFailed, n
	}
	return StatusPending, n
}
