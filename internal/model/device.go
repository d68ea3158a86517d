package model

import "time"

type Device struct {
	ID        string    `db:"id"` // e.g. "hp-01"
	Name      string    `db:"name"`
	Model     string    `db:"model"`
	Enabled   bool      `db:"enabled"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}
