package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bokristoffersson/settings-gateway/internal/config"
	"github.com/bokristoffersson/settings-gateway/internal/correlator"
	"github.com/bokristoffersson/settings-gateway/internal/db"
	"github.com/bokristoffersson/settings-gateway/internal/kafka"
	"github.com/bokristoffersson/settings-gateway/internal/logger"
	"github.com/bokristoffersson/settings-gateway/internal/metrics"
	"github.com/bokristoffersson/settings-gateway/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var correlatorCmd = &cobra.Command{
	Use:   "correlator",
	Short: "Run the telemetry confirmation correlator",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger.Init(cfg.Log.Level)
		metrics.MustRegister(prometheus.DefaultRegisterer)

		// 2) DB connection (MySQL)
		dbx, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer dbx.Close()

		// 3) outbox repository
		outboxRepo := repository.NewOutboxRepository(dbx)

		// 4) kafka consumer
		groupID := cfg.Kafka.GroupID
		if groupID == "" {
			groupID = "setgw-correlator"
		}

		consumer := kafka.NewConsumerFromConfig(kafka.ConsumerConfig{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.TelemetryTopic,
			GroupID:        groupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		w := correlator.New(consumer, outboxRepo, logger.Log, cfg.Correlator.Tolerance)

		// 5) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("correlator started",
			zap.String("topic", cfg.Kafka.TelemetryTopic),
			zap.String("group", groupID),
			zap.Float64("tolerance", w.Tolerance),
		)

		return w.Run(ctx)
	},
}
