// Package server exposes the NeonBoard exporter over HTTP with Gin.
//
//	GET /metrics  one full collection pass, rendered as text exposition
//	GET /healthz  liveness, performs no collection
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/vesaa/neonboard/internal/metrics"
)

// NewEngine builds the Gin engine with recovery, request logging and routes.
func NewEngine(s *Scraper, log zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))
	RegisterRoutes(r, s, log)
	return r
}

// RegisterRoutes wires the scrape and health routes on the given engine.
func RegisterRoutes(r *gin.Engine, s *Scraper, log zerolog.Logger) {
	r.GET("/metrics", handleScrape(s, log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
}

// handleScrape runs one pass. Upstream failures still answer 200; only a
// rendering fault yields 500.
func handleScrape(s *Scraper, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// A disconnecting client does not abort the pass; upstream calls are
		// bounded by their own timeouts.
		ctx := context.WithoutCancel(c.Request.Context())

		body, err := s.Scrape(ctx)
		if err != nil {
			log.Error().Err(err).Msg("scrape failed")
			c.String(http.StatusInternalServerError, "internal error rendering metrics\n")
			return
		}
		c.Data(http.StatusOK, metrics.ContentType, body)
	}
}

// RequestLogger logs every request at debug level.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("request")
	}
}
