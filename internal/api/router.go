// Package api exposes the administrative HTTP surface: the manual
// fetch trigger, health and metrics.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/printwatch-io/printwatch/internal/poller"
	"github.com/printwatch-io/printwatch/internal/version"
)

// Trigger runs one fetch-and-ingest cycle on demand.
type Trigger interface {
	RunNow(ctx context.Context) (poller.CycleReport, error)
}

// NewRouter builds the gin engine for the service.
func NewRouter(trigger Trigger, db *sqlx.DB, logger *log.Logger) *gin.Engine {
	if logger == nil {
		logger = log.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), RequestID())

	r.POST("/api/fetch", handleFetch(trigger, logger))
	r.GET("/healthz", handleHealthz(db))
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.GetInfo())
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func handleFetch(trigger Trigger, logger *log.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if trigger == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "error",
				"message": "fetch trigger unavailable",
			})
			return
		}
		report, err := trigger.RunNow(c.Request.Context())
		if errors.Is(err, poller.ErrFetchingDisabled) {
			c.JSON(http.StatusConflict, gin.H{
				"status":  "error",
				"message": "fetching disabled: mailbox credentials not configured",
			})
			return
		}
		if err != nil {
			logger.Printf("api: manual fetch failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"status":  "error",
				"message": err.Error(),
				"report":  report,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "success",
			"message": "mailbox fetched and processed",
			"report":  report,
		})
	}
}

func handleHealthz(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
