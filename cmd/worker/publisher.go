package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bokristoffersson/settings-gateway/internal/config"
	"github.com/bokristoffersson/settings-gateway/internal/db"
	"github.com/bokristoffersson/settings-gateway/internal/kafka"
	"github.com/bokristoffersson/settings-gateway/internal/logger"
	"github.com/bokristoffersson/settings-gateway/internal/metrics"
	"github.com/bokristoffersson/settings-gateway/internal/publisher"
	"github.com/bokristoffersson/settings-gateway/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var publisherCmd = &cobra.Command{
	Use:   "publisher",
	Short: "Run the outbox command publisher",
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

		// 3) outbox repository + command channel
		outboxRepo := repository.NewOutboxRepository(dbx)

		producer := kafka.NewProducerFromConfig(kafka.ProducerConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.CommandTopic,
			FailThreshold: cfg.Publisher.Breaker.FailThreshold,
			OpenForMs:     cfg.Publisher.Breaker.OpenForMs,
		})
		defer producer.Close()

		w := publisher.New(outboxRepo, producer, logger.Log)

		// tune knobs
		if cfg.Publisher.Interval > 0 {
			w.Interval = cfg.Publisher.Interval
		}
		if cfg.Publisher.BatchSize > 0 {
			w.BatchSize = cfg.Publisher.BatchSize
		}
		if cfg.Publisher.PublishTimeout > 0 {
			w.PublishTimeout = cfg.Publisher.PublishTimeout
		}
		if cfg.Correlator.ConfirmWindow > 0 {
			w.ConfirmWindow = cfg.Correlator.ConfirmWindow
		}

		// 4) graceful shutdown
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Log.Info("publisher started",
			zap.String("topic", cfg.Kafka.CommandTopic),
			zap.Duration("interval", w.Interval),
			zap.Int("batch_size", w.BatchSize),
		)

		return w.Run(ctx)
	},
}
