package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bokristoffersson/settings-gateway/internal/repository"
	echo "github.com/labstack/echo/v4"
)

// telemetryReportHandler lists recent telemetry from the ClickHouse history
// view (populated by the ingestion pipeline, read-only here).
func telemetryReportHandler(chRepo repository.CHTelemetryRepository) echo.HandlerFunc {
	return func(c echo.Context) error {
		deviceID := strings.TrimSpace(c.QueryParam("device_id"))
		if deviceID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing device_id"})
		}

		limit := 50
		offset := 0
		if v := c.QueryParam("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}
		if v := c.QueryParam("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				offset = n
			}
		}

		rows, err := chRepo.ListByDevice(c.Request().Context(), deviceID, limit, offset)
		if err != nil {
			c.Logger().Errorf("clickhouse list failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, map[string]any{
			"limit":   limit,
			"offset":  offset,
			"count":   len(rows),
			"results": rows,
		})
	}
}
