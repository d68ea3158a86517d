package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bokristoffersson/settings-gateway/internal/model"
	"github.com/bokristoffersson/settings-gateway/internal/service/change"
	echo "github.com/labstack/echo/v4"
)

// commandView flattens an outbox entry for the status endpoint; staleness is
// computable externally from published_at.
type commandView struct {
	ID           int64      `json:"id"`
	DeviceID     string     `json:"device_id"`
	EventType    string     `json:"event_type"`
	Status       string     `json:"status"`
	RetryCount   int        `json:"retry_count"`
	MaxRetries   int        `json:"max_retries"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	PublishedAt  *time.Time `json:"published_at,omitempty"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty"`
}

func toCommandView(e model.OutboxEntry) commandView {
	v := commandView{
		ID:         e.ID,
		DeviceID:   e.AggregateID,
		EventType:  e.EventType,
		Status:     e.Status.String(),
		RetryCount: e.RetryCount,
		MaxRetries: e.MaxRetries,
		CreatedAt:  e.CreatedAt,
	}
	if e.ErrorMessage.Valid {
		v.ErrorMessage = e.ErrorMessage.String
	}
	if e.PublishedAt.Valid {
		t := e.PublishedAt.Time
		v.PublishedAt = &t
	}
	if e.ConfirmedAt.Valid {
		t := e.ConfirmedAt.Time
		v.ConfirmedAt = &t
	}
	return v
}

// listCommandsHandler returns the device's change history newest-first.
func listCommandsHandler(svc ChangeService) echo.HandlerFunc {
	return func(c echo.Context) error {
		deviceID := strings.TrimSpace(c.Param("id"))
		if deviceID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing device id"})
		}

		limit := 50
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		entries, err := svc.GetStatus(c.Request().Context(), deviceID, limit)
		if err != nil {
			if errors.Is(err, change.ErrUnknownDevice) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown device"})
			}
			c.Logger().Errorf("list commands failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		views := make([]commandView, 0, len(entries))
		for _, e := range entries {
			views = append(views, toCommandView(e))
		}

		return c.JSON(http.StatusOK, map[string]any{
			"count":   len(views),
			"results": views,
		})
	}
}
