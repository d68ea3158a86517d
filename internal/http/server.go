package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/bokristoffersson/settings-gateway/internal/config"
	"github.com/bokristoffersson/settings-gateway/internal/http/middleware"
	"github.com/bokristoffersson/settings-gateway/internal/metrics"
	"github.com/bokristoffersson/settings-gateway/internal/repository"
	"github.com/bokristoffersson/settings-gateway/internal/service/change"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	devicesRepo := repository.NewDevicesRepository(mysqlDB)
	settingsRepo := repository.NewSettingsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)

	// repos (ClickHouse)
	chTelemetryRepo := repository.NewCHTelemetryRepository(clickhouseDB)

	// services
	changeSvc := change.New(
		mysqlDB,
		devicesRepo,
		settingsRepo,
		outboxRepo,
		cfg.Publisher.MaxRetries,
	)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		KeyPrefix:      "rl:dev:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1")
	v1.POST("/devices/:id/settings", submitChangeHandler(changeSvc), rlMW)
	v1.GET("/devices/:id/settings", getSettingsHandler(changeSvc))
	v1.GET("/devices/:id/commands", listCommandsHandler(changeSvc))
	v1.GET("/reports/telemetry", telemetryReportHandler(chTelemetryRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
