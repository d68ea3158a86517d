package repository

import (
	"context"
	"database/sql"

	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/jmoiron/sqlx"
)

type DevicesRepository interface {
	GetByID(ctx context.Context, id string) (*model.Device, error)
}

type DevicesRepositoryImpl struct {
	db *sqlx.DB
}

func NewDevicesRepository(db *sqlx.DB) *DevicesRepositoryImpl {
	return &DevicesRepositoryImpl{db: db}
}

var _ DevicesRepository = (*DevicesRepositoryImpl)(nil)

func (r *DevicesRepositoryImpl) GetByID(ctx context.Context, id string) (*model.Device, error) {
	var d model.Device
	err := r.db.GetContext(ctx, &d, `
		SELECT id, name, model, enabled, created_at, updated_at
		  FROM devices
		 WHERE id = ? LIMIT 1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}
