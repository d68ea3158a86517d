package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bokristoffersson/settings-gateway/internal/metrics"
	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/bokristoffersson/settings-gateway/internal/service/change"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

// ChangeService is the coordinator surface the handlers need.
type ChangeService interface {
	SubmitChange(ctx context.Context, deviceID string, patch model.Patch) (change.Result, error)
	GetStatus(ctx context.Context, deviceID string, limit int) ([]model.OutboxEntry, error)
	GetSettings(ctx context.Context, deviceID string) (*model.Settings, error)
}

// submitChangeHandler accepts a settings patch and answers 202: the change is
// durably queued, confirmation is observed via the commands endpoint.
func submitChangeHandler(svc ChangeService) echo.HandlerFunc {
	return func(c echo.Context) error {
		deviceID := strings.TrimSpace(c.Param("id"))
		if deviceID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing device id"})
		}

		var patch model.Patch
		if err := c.Bind(&patch); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "bad request"})
		}

		res, err := svc.SubmitChange(c.Request().Context(), deviceID, patch)
		if err != nil {
			switch {
			case errors.Is(err, change.ErrInvalidPatch):
				return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
			case errors.Is(err, change.ErrUnknownDevice):
				return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown device"})
			case errors.Is(err, change.ErrDeviceDisabled):
				return c.JSON(http.StatusConflict, map[string]string{"error": "device disabled"})
			}

			log.Errorf("submit change failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "db error"})
		}

		metrics.CommandsTotal.WithLabelValues("accepted").Inc()

		return c.JSON(http.StatusAccepted, map[string]any{
			"accepted": true,
			"entry_id": res.EntryID,
			"settings": res.Settings,
		})
	}
}
