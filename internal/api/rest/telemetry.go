package rest

import (
	"net/http"
	"strconv"

	"github.com/KevinKickass/OpenHelm/internal/sensor"
	"github.com/KevinKickass/OpenHelm/internal/types"
	"github.com/gin-gonic/gin"
)

const (
	areaSensor  = "SENSOR"
	areaJournal = "JOURNAL"

	defaultJournalLimit = 50
	maxJournalLimit     = 500
)

// GET /api/v1/telemetry
func (s *Server) getTelemetry(c *gin.Context) {
	c.JSON(http.StatusOK, s.lm.Telemetry().Snapshot())
}

// PUT /api/v1/sensor
func (s *Server) updateSensor(c *gin.Context) {
	var req struct {
		HeadingDeg  *float64 `json:"heading_deg" binding:"required"`
		TurnRateDps *float64 `json:"turn_rate_dps" binding:"required"`
		HeelDeg     float64  `json:"heel_deg"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, areaSensor, "Invalid request body", err.Error())
		return
	}

	reading, err := s.lm.Sensor().Update(sensor.Reading{
		HeadingDeg:  *req.HeadingDeg,
		TurnRateDps: *req.TurnRateDps,
		HeelDeg:     req.HeelDeg,
	})
	if err != nil {
		s.respondError(c, areaSensor, "Sensor update rejected", err)
		return
	}

	c.JSON(http.StatusOK, reading)
}

// GET /api/v1/sensor
func (s *Server) getSensor(c *gin.Context) {
	reading, ok := s.lm.Sensor().Latest()
	if !ok {
		c.JSON(http.StatusNotFound, types.NewErrorResponse(types.ErrorCode(areaSensor, http.StatusNotFound), "No reading received yet", nil))
		return
	}
	c.JSON(http.StatusOK, reading)
}

// GET /api/v1/journal?limit=50
func (s *Server) getJournal(c *gin.Context) {
	journal := s.lm.Journal()
	if journal == nil {
		c.JSON(http.StatusServiceUnavailable, types.NewErrorResponse(types.ErrorCode(areaJournal, http.StatusServiceUnavailable), "Journal disabled", "database.enabled is false"))
		return
	}

	limit := defaultJournalLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(c, areaJournal, "Invalid limit", v)
			return
		}
		limit = min(n, maxJournalLimit)
	}

	entries, err := journal.RecentJournalEntries(c.Request.Context(), limit)
	if err != nil {
		s.respondError(c, areaJournal, "Failed to load journal", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}
