// Package api exposes the todo service over a JSON REST API.
package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/HendryAvila/tally/internal/todo"
)

// Server is the REST API server.
type Server struct {
	svc    *todo.Service
	router *gin.Engine
	logger *log.Logger
}

// NewServer creates a Server with every route registered. Request logs go
// to logger, never to stdout.
func NewServer(svc *todo.Service, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	router := gin.New()
	router.Use(gin.LoggerWithWriter(logger.Writer()), gin.Recovery())

	s := &Server{
		svc:    svc,
		router: router,
		logger: logger,
	}

	api := router.Group("/api")
	{
		api.GET("/todos", s.handleList)
		api.POST("/todos", s.handleCreate)
		api.POST("/todos/reset-daily", s.handleResetDaily)
		api.GET("/todos/:id", s.handleGet)
		api.PUT("/todos/:id", s.handleUpdate)
		api.PUT("/todos/:id/complete", s.handleComplete)
		api.PUT("/todos/:id/uncomplete", s.handleUncomplete)
		api.DELETE("/todos/:id", s.handleDelete)

		api.GET("/points/:entityId", s.handlePoints)
		api.GET("/tags", s.handleTags)
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
	})

	return s
}

// Handler returns the HTTP handler, for embedding or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}
