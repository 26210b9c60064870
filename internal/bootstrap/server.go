package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/Domenick1991/tourbooking/api"
	"github.com/Domenick1991/tourbooking/config"
	healthapi "github.com/Domenick1991/tourbooking/internal/api/health_service_api"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
	"github.com/Domenick1991/tourbooking/internal/service/booking"
	"github.com/Domenick1991/tourbooking/internal/service/packages"
	"github.com/Domenick1991/tourbooking/internal/service/payment"
	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

const healthInterval = 15 * time.Second

// Services bundles what the transports expose.
type Services struct {
	Packages packages.PackageUseCase
	Bookings booking.BookingUseCase
	Payments payment.PaymentUseCase
	Health   *healthapi.Server
}

type Servers struct {
	grpcServer *grpc.Server
	httpServer *http.Server
}

// Run starts the gRPC health server and the HTTP API and blocks until the
// context is canceled or a server fails.
func Run(ctx context.Context, cfg *config.Config, svc Services, log logger.Logger, m *metrics.Metrics) error {
	s := newServers(cfg, svc, log, m)

	errCh := make(chan error, 2)

	lis, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen gRPC %s: %w", cfg.GRPC.Address, err)
	}
	go func() { errCh <- s.grpcServer.Serve(lis) }()

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go svc.Health.Watch(watchCtx, healthInterval)

	log.Info("servers started", "http", cfg.HTTP.Address, "grpc", cfg.GRPC.Address, "mode", cfg.Mode)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.grpcServer.GracefulStop()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newServers(cfg *config.Config, svc Services, log logger.Logger, m *metrics.Metrics) *Servers {
	grpcSrv := grpc.NewServer()
	svc.Health.Register(grpcSrv)
	reflection.Register(grpcSrv)

	return &Servers{
		grpcServer: grpcSrv,
		httpServer: &http.Server{
			Addr:              cfg.HTTP.Address,
			Handler:           NewRouter(cfg, svc, log, m),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// NewRouter wires every HTTP route.
func NewRouter(cfg *config.Config, svc Services, log logger.Logger, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(log, m))

	router.GET("/health", func(c *gin.Context) {
		ok, results := svc.Health.Refresh(c.Request.Context())
		status := http.StatusOK
		state := "ok"
		if !ok {
			status = http.StatusServiceUnavailable
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "mode": cfg.Mode, "checks": results})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	if cfg.HTTP.SwaggerDir != "" {
		router.StaticFile("/docs/openapi.json", filepath.Join(cfg.HTTP.SwaggerDir, "openapi.json"))
		router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL("/docs/openapi.json"))))
	}

	group := router.Group("/api")
	pkgHandler := api.NewPackageHandler(svc.Packages, svc.Bookings)
	pkgHandler.Register(group.Group("/packages"))
	pkgHandler.RegisterDiscount(group.Group("/discount"))
	api.NewBookingHandler(svc.Bookings, svc.Payments).Register(group.Group("/bookings"))
	api.NewPaymentHandler(svc.Payments, cfg.HTTP.FrontendURL).Register(group.Group("/payments"))
	api.NewAdminHandler(svc.Bookings).Register(group.Group("/admin"), cfg.Admin.Username, cfg.Admin.Password)

	return router
}
