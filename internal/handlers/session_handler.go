package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xpanvictor/voxcap/pkg/io/registry"
)

// HealthCheck reports a named dependency probe
type HealthCheck func() error

// SessionHandler exposes the live capture sessions and service health
type SessionHandler struct {
	registry registry.Registry
	checks   map[string]HealthCheck
}

func NewSessionHandler(reg registry.Registry, checks map[string]HealthCheck) *SessionHandler {
	return &SessionHandler{registry: reg, checks: checks}
}

// ListSessions handles listing live capture sessions
// @Summary List capture sessions
// @Description Capture sessions currently connected over the websocket
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ListSessionsResponse "Live sessions"
// @Router /sessions [get]
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions := h.registry.List()
	if owner := Owner(c); owner != "" {
		mine := sessions[:0]
		for _, s := range sessions {
			if s.Owner == owner {
				mine = append(mine, s)
			}
		}
		sessions = mine
	}
	c.JSON(http.StatusOK, ListSessionsResponse{Sessions: sessions})
}

// Health handles the health check
// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse "Service healthy"
// @Failure 503 {object} HealthResponse "A dependency is down"
// @Router /health [get]
func (h *SessionHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:         "ok",
		ActiveSessions: h.registry.Len(),
		Checks:         make(map[string]string, len(h.checks)),
	}
	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	c.JSON(code, resp)
}
