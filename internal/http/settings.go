package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/bokristoffersson/settings-gateway/internal/service/change"
	echo "github.com/labstack/echo/v4"
)

// getSettingsHandler returns the desired-settings snapshot. Whether the device
// has applied it is answered by the commands endpoint, not here.
func getSettingsHandler(svc ChangeService) echo.HandlerFunc {
	return func(c echo.Context) error {
		deviceID := strings.TrimSpace(c.Param("id"))
		if deviceID == "" {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing device id"})
		}

		s, err := svc.GetSettings(c.Request().Context(), deviceID)
		if err != nil {
			if errors.Is(err, change.ErrUnknownDevice) {
				return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown device"})
			}
			c.Logger().Errorf("get settings failed: %v", err)

			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
		}

		return c.JSON(http.StatusOK, s)
	}
}
