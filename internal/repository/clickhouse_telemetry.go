package repository

import (
	"context"

	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// CHTelemetryRepository lists device telemetry from ClickHouse (history view).
type CHTelemetryRepository interface {
	ListByDevice(ctx context.Context, deviceID string, limit, offset int) ([]model.TelemetryRow, error)
}

type chTelemetryRepository struct {
	ch *sqlx.DB // ClickHouse connection
}

func NewCHTelemetryRepository(ch *sqlx.DB) CHTelemetryRepository {
	return &chTelemetryRepository{ch: ch}
}

func (r *chTelemetryRepository) ListByDevice(ctx context.Context, deviceID string, limit, offset int) ([]model.TelemetryRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	const q = `
		SELECT device_id, target_temp, hot_water_temp, curve_offset, mode, reported_at
		FROM setgw.telemetry
		WHERE device_id = ?
		ORDER BY reported_at DESC
		LIMIT ? OFFSET ?
	`

	var rows []model.TelemetryRow
	if err := r.ch.SelectContext(ctx, &rows, q, deviceID, limit, offset); err != nil {
		return nil, err
	}
	return rows, nil
}
