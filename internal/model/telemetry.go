package model

import "time"

// TelemetryRow is a reading from the ClickHouse history view, populated by the
// external ingestion pipeline. Read-only in this service.
type TelemetryRow struct {
	DeviceID     string    `db:"device_id" json:"device_id"`
	TargetTemp   float64   `db:"target_temp" json:"target_temp"`
	HotWaterTemp float64   `db:"hot_water_temp" json:"hot_water_temp"`
	CurveOffset  float64   `db:"curve_offset" json:"curve_offset"`
	Mode         int       `db:"mode" json:"mode"`
	ReportedAt   time.Time `db:"reported_at" json:"reported_at"`
}
