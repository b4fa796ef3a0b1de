package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerHealthRoutes(r *gin.Engine) {
	r.GET("/api/health", s.handleHealth)
}

// handleHealth reports liveness plus store reachability. The service can run
// without a store, so a nil store degrades rather than panics.
func (s *Server) handleHealth(c *gin.Context) {
	status := gin.H{"status": "healthy"}
	if s.store == nil {
		status["status"] = "degraded"
		status["store"] = "not configured"
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	if err := s.store.Ping(c.Request.Context()); err != nil {
		status["status"] = "degraded"
		status["store"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	c.JSON(http.StatusOK, status)
}
