// Package api exposes the collection service over HTTP.
package api

import (
	"github.com/gin-gonic/gin"

	"aiharvest/orchestrator"
	"aiharvest/store"
)

// Server holds the collaborators the HTTP handlers need.
type Server struct {
	collector *orchestrator.Collector
	store     store.ArticleStore
}

// NewServer wires the handlers to a collector and store.
func NewServer(collector *orchestrator.Collector, st store.ArticleStore) *Server {
	return &Server{collector: collector, store: st}
}

// Router constructs a Gin engine with registered routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	// Minimal middleware: recovery; logger optional to reduce verbosity
	r.Use(gin.Recovery())

	s.registerHealthRoutes(r)
	s.registerCollectRoutes(r)
	s.registerArticleRoutes(r)
	return r
}
