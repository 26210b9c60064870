package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	healthapi "github.com/Domenick1991/tourbooking/internal/api/health_service_api"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
	"github.com/gin-gonic/gin"
)

// RunWorkerHTTP serves the worker's metrics and cached health on addr until
// ctx is canceled. Health is refreshed in the background.
func RunWorkerHTTP(ctx context.Context, addr string, health *healthapi.Server, log logger.Logger, m *metrics.Metrics) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewWorkerRouter(health, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go health.Watch(watchCtx, healthInterval)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("worker metrics server started", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("worker http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// NewWorkerRouter exposes /metrics and /health. Health answers from the last
// background refresh so scrapes never hit the database.
func NewWorkerRouter(health *healthapi.Server, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		results := health.Last()
		status, state := http.StatusOK, "ok"
		if len(results) == 0 {
			status, state = http.StatusServiceUnavailable, "starting"
		}
		for _, result := range results {
			if result != "ok" {
				status, state = http.StatusServiceUnavailable, "degraded"
				break
			}
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))
	return router
}
