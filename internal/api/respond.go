package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/khidmahub/khidmahub/internal/fault"
)

// statusOf maps the fault taxonomy onto HTTP statuses.
func statusOf(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation:
		return http.StatusBadRequest
	case fault.KindPermissionDenied:
		return http.StatusForbidden
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindStateConflict, fault.KindInvariant:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// respondError renders a typed fault as JSON. Untyped errors are logged and
// hidden behind a generic 500 so internals never leak to clients.
func respondError(c echo.Context, log *zap.Logger, err error) error {
	var fe *fault.Error
	if !errors.As(err, &fe) {
		log.Error("unhandled error",
			zap.String("path", c.Path()),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	return c.JSON(statusOf(fe.Kind), echo.Map{"error": fe.Msg, "code": fe.Code})
}
