package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"aiharvest/logging"
	"aiharvest/orchestrator"
)

func (s *Server) registerCollectRoutes(r *gin.Engine) {
	g := r.Group("/api/collect")
	g.POST("", s.handleCollect)
}

// handleCollect triggers one collection cycle. It runs asynchronously and
// returns 202 Accepted immediately.
// Query params: sources (comma-separated adapter names), count (per-source
// item limit), lookback_hours (publication window, 0 = unlimited).
func (s *Server) handleCollect(c *gin.Context) {
	opts := orchestrator.RunOptions{}

	if v := c.Query("sources"); v != "" {
		opts.Sources = splitComma(v)
	}
	if v := c.Query("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "count must be a non-negative integer"})
			return
		}
		opts.PerSourceLimit = n
	}
	if v := c.Query("lookback_hours"); v != "" {
		h, err := strconv.Atoi(v)
		if err != nil || h < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "lookback_hours must be a non-negative integer"})
			return
		}
		opts.Lookback = time.Duration(h) * time.Hour
	}

	log := logging.New("api")
	go func() {
		report, err := s.collector.Run(context.Background(), opts)
		if err != nil {
			log.Error().Err(err).Msg("collection run failed")
			return
		}
		totals := report.Totals()
		log.Info().Int("persisted", totals.Persisted).Msg("collection run finished")
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "collection started"})
}

func splitComma(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
