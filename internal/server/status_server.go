package server

import (
	"net/http"

	"github.com/staminads/staminads-sub000/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// StatusServer exposes a local read-only view of the engagement core:
// health, focus state, active duration, heartbeat tier and queue depth.
type StatusServer struct {
	engagement *service.EngagementService
	sessionID  string
	logger     *zap.Logger
}

// NewStatusServer creates the server over a running engagement service.
func NewStatusServer(engagement *service.EngagementService, sessionID string, logger *zap.Logger) *StatusServer {
	return &StatusServer{
		engagement: engagement,
		sessionID:  sessionID,
		logger:     logger,
	}
}

// Router builds the gin handler.
func (s *StatusServer) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"session_id":         s.sessionID,
			"focus_state":        string(s.engagement.FocusState()),
			"active_duration_ms": s.engagement.ActiveDuration().Milliseconds(),
			"heartbeat_tier":     s.engagement.HeartbeatTier(),
			"queue_length":       s.engagement.QueueLength(),
		})
	})

	r.POST("/flush", func(c *gin.Context) {
		s.engagement.FlushQueue()
		c.JSON(http.StatusAccepted, gin.H{
			"queue_length": s.engagement.QueueLength(),
		})
	})

	return r
}
