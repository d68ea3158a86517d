package model

import "time"

// ChangePayload is the immutable snapshot stored in the outbox payload column.
// It carries everything needed to dispatch the command and later verify the
// confirmation against telemetry. The idempotency key is minted once at submit
// time, so every redispatch of the same entry carries the same key and the
// device-side handler can deduplicate.
type ChangePayload struct {
	DeviceID       string `json:"device_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Fields         Patch  `json:"fields"`
}

// CommandEnvelope is the message published to the command topic, keyed by
// device id.
type CommandEnvelope struct {
	EntryID        int64     `json:"entry_id"`
	DeviceID       string    `json:"device_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	Fields         Patch     `json:"fields"`
	IssuedAt       time.Time `json:"issued_at"`
}

// TelemetryReading is one record from the confirmation stream. Delivery is
// at-least-once and may reorder within a device; the correlator tolerates both.
type TelemetryReading struct {
	DeviceID   string             `json:"device_id"`
	Fields     map[string]float64 `json:"fields"`
	ReportedAt time.Time          `json:"reported_at"`
}
