package change

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/bokristoffersson/settings-gateway/internal/repository"
	"github.com/bokristoffersson/settings-gateway/internal/util"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInvalidPatch   = errors.New("invalid patch")
	ErrUnknownDevice  = errors.New("unknown device")
	ErrDeviceDisabled = errors.New("device disabled")
)

// Service is the write coordinator: it atomically persists the patched
// settings snapshot and a pending outbox entry in one transaction. No network
// I/O to the command or confirmation channels happens here.
type Service struct {
	db       *sqlx.DB
	devices  repository.DevicesRepository
	settings repository.SettingsRepository
	outbox   repository.OutboxRepository

	maxRetries int
}

// New constructs the change service.
func New(
	db *sqlx.DB,
	devicesRepo repository.DevicesRepository,
	settingsRepo repository.SettingsRepository,
	outboxRepo repository.OutboxRepository,
	maxRetries int,
) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{
		db:         db,
		devices:    devicesRepo,
		settings:   settingsRepo,
		outbox:     outboxRepo,
		maxRetries: maxRetries,
	}
}

// Result is what a successful SubmitChange returns: the outbox entry id and
// the not-yet-confirmed settings snapshot.
type Result struct {
	EntryID  int64          `json:"entry_id"`
	Settings model.Settings `json:"settings"`
}

// SubmitChange validates the patch, then writes the patched device_settings
// row and a pending outbox entry within a single transaction. If it returns
// success the change is durably queued even when every downstream system is
// unreachable; on error nothing is persisted.
func (s *Service) SubmitChange(ctx context.Context, deviceID string, patch model.Patch) (Result, error) {
	if err := patch.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPatch, err)
	}

	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return Result{}, fmt.Errorf("device lookup: %w", err)
	}
	if dev == nil {
		return Result{}, ErrUnknownDevice
	}
	if !dev.Enabled {
		return Result{}, ErrDeviceDisabled
	}

	// Payload snapshot, minted once so redispatches carry the same key.
	payload := model.ChangePayload{
		DeviceID:       deviceID,
		IdempotencyKey: util.New(),
		Fields:         patch,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal payload: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := s.settings.GetForUpdate(ctx, tx, deviceID)
	if err != nil {
		return Result{}, fmt.Errorf("settings get for update: %w", err)
	}

	cur.Apply(patch)

	if err := s.settings.Upsert(ctx, tx, cur); err != nil {
		return Result{}, fmt.Errorf("settings upsert: %w", err)
	}

	entryID, err := s.outbox.Insert(ctx, tx,
		model.AggregateTypeSettings, deviceID, model.EventTypeSettingUpdate, b, s.maxRetries)
	if err != nil {
		return Result{}, fmt.Errorf("insert outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Result{}, err
	}
	return Result{EntryID: entryID, Settings: cur}, nil
}

// GetStatus lists the device's outbox entries newest-first for UI polling.
func (s *Service) GetStatus(ctx context.Context, deviceID string, limit int) ([]model.OutboxEntry, error) {
	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device lookup: %w", err)
	}
	if dev == nil {
		return nil, ErrUnknownDevice
	}

	return s.outbox.ListByDevice(ctx, deviceID, limit)
}

// GetSettings returns the desired-settings snapshot for the device.
func (s *Service) GetSettings(ctx context.Context, deviceID string) (*model.Settings, error) {
	dev, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("device lookup: %w", err)
	}
	if dev == nil {
		return nil, ErrUnknownDevice
	}

	cur, err := s.settings.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		def := repository.DefaultSettings(deviceID)
		return &def, nil
	}
	return cur, nil
}
