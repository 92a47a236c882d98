// Package server runs the sitepack dev server: it rebuilds the site when
// sources change, serves the output directory, pushes live-reload events to
// the browser and exposes the build history.
//
//	GET /healthz           liveness
//	GET /api/status        last build outcome
//	GET /api/builds        recent builds, newest first
//	GET /__sitepack/...    live-reload stream and client
//	GET /*                 built files, falling back to the embedded skeleton
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes wires up the JSON API on the given engine.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})

	api := r.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/builds", s.handleBuilds)
	}
}

// handleStatus reports the last build.
//
//	GET /api/status
func (s *Server) handleStatus(c *gin.Context) {
	res, err := s.Status()
	body := gin.H{"ok": err == nil, "clients": s.hub.Len()}
	if err != nil {
		body["error"] = err.Error()
	}
	if res != nil {
		names := make([]string, 0, len(res.Artifacts))
		for _, a := range res.Artifacts {
			names = append(names, a.Name)
		}
		body["artifacts"] = names
		body["modules"] = res.Modules
		body["duration_ms"] = res.Duration.Milliseconds()
	}
	c.JSON(http.StatusOK, body)
}

// handleBuilds lists recent builds.
//
//	GET /api/builds?limit=20
func (s *Server) handleBuilds(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "build history disabled"})
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	builds, err := s.store.ListBuilds(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": builds})
}
