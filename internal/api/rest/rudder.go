package rest

import (
	"errors"
	"io"
	"net/http"

	"github.com/KevinKickass/OpenHelm/internal/rudder"
	"github.com/gin-gonic/gin"
)

const areaRudder = "RUDDER"

func snapshotJSON(s rudder.Snapshot) gin.H {
	return gin.H{
		"message":             s.DisplayMessage(),
		"clutch":              s.Clutch.String(),
		"fault":               s.Fault.String(),
		"motor":               s.Motor(),
		"motor_raw":           s.MotorRaw,
		"direction":           s.Direction.String(),
		"rudder_position":     s.RudderPosition(),
		"rudder_position_raw": s.PositionRaw,
		"port_limit":          s.PortLimit(),
		"port_limit_raw":      s.PortLimitRaw,
		"stbd_limit":          s.StarboardLimit(),
		"stbd_limit_raw":      s.StarboardLimitRaw,
		"interval_ms":         s.IntervalMs,
		"echo":                s.Echo,
		"complete":            s.Complete(),
		"report_age_s":        since(s.UpdatedAt),
	}
}

// GET /api/v1/rudder/snapshot
func (s *Server) getRudderSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, snapshotJSON(s.lm.Rudder().Snapshot()))
}

// POST /api/v1/rudder/status
func (s *Server) requestRudderStatus(c *gin.Context) {
	if err := s.lm.Rudder().RequestStatus(); err != nil {
		s.respondError(c, areaRudder, "Status request failed", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message": "Status requested",
	})
}

// GET /api/v1/rudder/calibration
func (s *Server) getCalibration(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Calibration().Current())
}

type limitRequest struct {
	Raw *int `json:"raw"`
}

// bindLimit accepts an empty body, which means "capture the current position".
func bindLimit(c *gin.Context) (limitRequest, error) {
	var req limitRequest
	if c.Request.ContentLength == 0 {
		return req, nil
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// POST /api/v1/rudder/calibration/port
func (s *Server) setPortLimit(c *gin.Context) {
	s.setLimit(c, "port", s.lm.Rudder().SetPortLimit, s.lm.Rudder().CapturePortLimit)
}

// POST /api/v1/rudder/calibration/starboard
func (s *Server) setStarboardLimit(c *gin.Context) {
	s.setLimit(c, "starboard", s.lm.Rudder().SetStarboardLimit, s.lm.Rudder().CaptureStarboardLimit)
}

func (s *Server) setLimit(c *gin.Context, side string, set func(int) error, capture func() (int, error)) {
	req, err := bindLimit(c)
	if err != nil {
		badRequest(c, areaRudder, "Invalid request body", err.Error())
		return
	}

	var raw int
	captured := req.Raw == nil
	if captured {
		raw, err = capture()
	} else {
		raw = *req.Raw
		err = set(raw)
	}
	if err != nil {
		s.respondError(c, areaRudder, "Set "+side+" limit failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"side":        side,
		"raw":         raw,
		"captured":    captured,
		"calibration": s.lm.Calibration().Current(),
	})
}

// PUT /api/v1/rudder/reporting-interval
func (s *Server) setReportingInterval(c *gin.Context) {
	var req struct {
		IntervalMs int `json:"interval_ms" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, areaRudder, "Invalid request body", err.Error())
		return
	}

	if err := s.lm.Rudder().SetReportingInterval(req.IntervalMs); err != nil {
		s.respondError(c, areaRudder, "Set reporting interval failed", err)
		return
	}

	c.JSON(http.StatusOK, s.lm.Calibration().Current())
}

// PUT /api/v1/rudder/echo
func (s *Server) setEcho(c *gin.Context) {
	var req struct {
		Echo *bool `json:"echo" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, areaRudder, "Invalid request body", err.Error())
		return
	}

	if err := s.lm.Rudder().SetEcho(*req.Echo); err != nil {
		s.respondError(c, areaRudder, "Set echo failed", err)
		return
	}

	c.JSON(http.StatusOK, s.lm.Calibration().Current())
}
