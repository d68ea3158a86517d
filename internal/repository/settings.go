package repository

import (
	"context"
	"database/sql"

	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

// SettingsRepository persists the desired-settings snapshot per device.
type SettingsRepository interface {
	// GetForUpdate locks the settings row for the duration of the transaction.
	// A device without a row yet gets the default snapshot.
	GetForUpdate(ctx context.Context, tx *sqlx.Tx, deviceID string) (model.Settings, error)
	Upsert(ctx context.Context, tx *sqlx.Tx, s model.Settings) error
	Get(ctx context.Context, deviceID string) (*model.Settings, error)
}

type SettingsRepositoryImpl struct {
	db *sqlx.DB
}

func NewSettingsRepository(db *sqlx.DB) *SettingsRepositoryImpl {
	return &SettingsRepositoryImpl{db: db}
}

var _ SettingsRepository = (*SettingsRepositoryImpl)(nil)

// DefaultSettings is the snapshot assumed for a device that has never been
// written to.
func DefaultSettings(deviceID string) model.Settings {
	return model.Settings{
		DeviceID:     deviceID,
		TargetTemp:   21,
		HotWaterTemp: 50,
		CurveOffset:  0,
		Mode:         1,
	}
}

func (r *SettingsRepositoryImpl) GetForUpdate(ctx context.Context, tx *sqlx.Tx, deviceID string) (model.Settings, error) {
	var s model.Settings
	err := tx.GetContext(ctx, &s, `
		SELECT device_id, target_temp, hot_water_temp, curve_offset, mode, updated_at
		  FROM device_settings
		 WHERE device_id = ?
		 FOR UPDATE
	`, deviceID)
	if err == sql.ErrNoRows {
		return DefaultSettings(deviceID), nil
	}
	if err != nil {
		return model.Settings{}, err
	}
	return s, nil
}

func (r *SettingsRepositoryImpl) Upsert(ctx context.Context, tx *sqlx.Tx, s model.Settings) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO device_settings (device_id, target_temp, hot_water_temp, curve_offset, mode, updated_at)
		VALUES (?, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
		    target_temp    = VALUES(target_temp),
		    hot_water_temp = VALUES(hot_water_temp),
		    curve_offset   = VALUES(curve_offset),
		    mode           = VALUES(mode),
		    updated_at     = VALUES(updated_at)
	`, s.DeviceID, s.TargetTemp, s.HotWaterTemp, s.CurveOffset, s.Mode)
	return err
}

func (r *SettingsRepositoryImpl) Get(ctx context.Context, deviceID string) (*model.Settings, error) {
	var s model.Settings
	err := r.db.GetContext(ctx, &s, `
		SELECT device_id, target_temp, hot_water_temp, curve_offset, mode, updated_at
		  FROM device_settings
		 WHERE device_id = ? LIMIT 1
	`, deviceID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
