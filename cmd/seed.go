package cmd

import (
	"fmt"
	"log"
	"time"

	"github.com/bokristoffersson/settings-gateway/internal/config"
	"github.com/bokristoffersson/settings-gateway/internal/db"
	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		log.Println(">> Seeding demo devices...")

		if err := seedDevices(sqlDB); err != nil {
			return err
		}
		if err := ensureSettings(sqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedDevices inserts deterministic demo heat pumps (idempotent).
func seedDevices(dbx *sqlx.DB) error {
	devices := []model.Device{
		{
			ID:      "hp-01",
			Name:    "Garage heat pump",
			Model:   "F730",
			Enabled: true,
		},
		{
			ID:      "hp-02",
			Name:    "Main house heat pump",
			Model:   "F1255",
			Enabled: true,
		},
		{
			ID:      "hp-03",
			Name:    "Guest house heat pump",
			Model:   "F1255",
			Enabled: true,
		},
		{
			ID:      "hp-99",
			Name:    "Decommissioned unit",
			Model:   "F370",
			Enabled: false,
		},
	}

	// idempotent upsert based on id (PRIMARY KEY)
	const q = `
INSERT INTO devices
    (id, name, model, enabled, created_at, updated_at)
VALUES
    (?, ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    name       = VALUES(name),
    model      = VALUES(model),
    enabled    = VALUES(enabled),
    updated_at = VALUES(updated_at)
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now()
	for _, d := range devices {
		if _, err := tx.Exec(q, d.ID, d.Name, d.Model, d.Enabled, now, now); err != nil {
			return fmt.Errorf("insert device %q: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit devices: %w", err)
	}
	return nil
}

// ensureSettings creates default settings rows for devices that lack one.
func ensureSettings(dbx *sqlx.DB) error {
	const q = `
INSERT INTO device_settings (device_id, target_temp, hot_water_temp, curve_offset, mode, updated_at)
SELECT d.id, 21, 50, 0, 1, NOW()
FROM devices d
LEFT JOIN device_settings s ON s.device_id = d.id
WHERE s.device_id IS NULL
`
	if _, err := dbx.Exec(q); err != nil {
		return fmt.Errorf("ensure settings: %w", err)
	}
	return nil
}
