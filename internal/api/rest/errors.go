package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenHelm/internal/autopilot"
	"github.com/KevinKickass/OpenHelm/internal/pid"
	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"github.com/KevinKickass/OpenHelm/internal/sensor"
	"github.com/KevinKickass/OpenHelm/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps domain errors to a status code and a stable error code.
func (s *Server) respondError(c *gin.Context, area, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, autopilot.ErrInvalidCourse),
		errors.Is(err, rudder.ErrOutOfRange),
		errors.Is(err, rudder.ErrInvalidLimits),
		errors.Is(err, sensor.ErrInvalidReading),
		errors.Is(err, pid.ErrUnknownProfile):
		status = http.StatusBadRequest
	case errors.Is(err, autopilot.ErrNotRunning),
		errors.Is(err, autopilot.ErrNotEngaged),
		errors.Is(err, rudder.ErrNoPosition):
		status = http.StatusConflict
	case errors.Is(err, rudder.ErrConfirmationTimeout),
		errors.Is(err, rudder.ErrClosed):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(message, zap.String("area", area), zap.Error(err))
	} else {
		s.logger.Warn(message, zap.String("area", area), zap.Error(err))
	}

	c.JSON(status, types.NewErrorResponse(types.ErrorCode(area, status), message, err.Error()))
}

func badRequest(c *gin.Context, area, message string, details any) {
	c.JSON(http.StatusBadRequest, types.NewErrorResponse(types.ErrorCode(area, http.StatusBadRequest), message, details))
}
