package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) registerArticleRoutes(r *gin.Engine) {
	g := r.Group("/api/articles")
	g.GET("/count", s.handleArticleCount)
}

// handleArticleCount returns stored article counts grouped by category.
func (s *Server) handleArticleCount(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "store not configured"})
		return
	}
	counts, err := s.store.CountByCategory(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	c.JSON(http.StatusOK, gin.H{
		"total":      total,
		"categories": counts,
	})
}
