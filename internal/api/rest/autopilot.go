package rest

import (
	"net/http"

	"github.com/KevinKickass/OpenHelm/internal/autopilot"
	"github.com/KevinKickass/OpenHelm/internal/pid"
	"github.com/gin-gonic/gin"
)

const areaAutopilot = "AUTOPILOT"

// GET /api/v1/autopilot/status
func (s *Server) getAutopilotStatus(c *gin.Context) {
	pilot := s.lm.Autopilot()
	c.JSON(http.StatusOK, gin.H{
		"status":    pilot.Status(),
		"engaged":   pilot.IsEngaged(),
		"on_course": pilot.IsOnCourse(),
	})
}

// PUT /api/v1/autopilot/course
//
// {"course": 270} engages or steers to 270; {"course": null} disengages.
func (s *Server) setCourse(c *gin.Context) {
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, areaAutopilot, "Invalid request body", err.Error())
		return
	}

	raw, ok := body["course"]
	if !ok {
		badRequest(c, areaAutopilot, "Invalid request body", "course is required, use null to disengage")
		return
	}

	course := autopilot.NoCourse
	if raw != nil {
		heading, ok := raw.(float64)
		if !ok {
			badRequest(c, areaAutopilot, "Invalid course", "course must be a number or null")
			return
		}
		course = autopilot.CourseTo(heading)
	}

	if err := s.lm.Autopilot().SetCourse(c.Request.Context(), course); err != nil {
		s.respondError(c, areaAutopilot, "Set course failed", err)
		return
	}

	c.JSON(http.StatusOK, s.lm.Autopilot().Status())
}

// POST /api/v1/autopilot/adjust
func (s *Server) adjustCourse(c *gin.Context) {
	var req struct {
		Delta *float64 `json:"delta" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, areaAutopilot, "Invalid request body", err.Error())
		return
	}

	course, err := s.lm.Autopilot().AdjustCourse(c.Request.Context(), *req.Delta)
	if err != nil {
		s.respondError(c, areaAutopilot, "Adjust course failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"course": course,
		"delta":  *req.Delta,
	})
}

// POST /api/v1/autopilot/engage
func (s *Server) engageHere(c *gin.Context) {
	course, err := s.lm.Autopilot().EngageHere(c.Request.Context())
	if err != nil {
		s.respondError(c, areaAutopilot, "Engage failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Autopilot engaged",
		"course":  course,
	})
}

// POST /api/v1/autopilot/disengage
func (s *Server) disengage(c *gin.Context) {
	if err := s.lm.Autopilot().Disengage(c.Request.Context()); err != nil {
		s.respondError(c, areaAutopilot, "Disengage failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Autopilot disengaged",
	})
}

// PUT /api/v1/autopilot/profile
//
// {"profile": "rough"} takes effect at the next engagement.
func (s *Server) setProfile(c *gin.Context) {
	var req struct {
		Profile string `json:"profile" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, areaAutopilot, "Invalid request body", err.Error())
		return
	}

	profile, err := pid.ParseProfile(req.Profile)
	if err != nil {
		s.respondError(c, areaAutopilot, "Invalid gain profile", err)
		return
	}

	if err := s.lm.Autopilot().SetProfile(profile); err != nil {
		s.respondError(c, areaAutopilot, "Set gain profile failed", err)
		return
	}

	c.JSON(http.StatusOK, s.lm.Autopilot().Status())
}
