package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/tourbooking/config"
	healthapi "github.com/Domenick1991/tourbooking/internal/api/health_service_api"
	"github.com/Domenick1991/tourbooking/internal/bootstrap"
	"github.com/Domenick1991/tourbooking/internal/cache"
	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/kafka"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
	konnect "github.com/Domenick1991/tourbooking/internal/payment"
	"github.com/Domenick1991/tourbooking/internal/repository"
	"github.com/Domenick1991/tourbooking/internal/service/booking"
	"github.com/Domenick1991/tourbooking/internal/service/capacity"
	"github.com/Domenick1991/tourbooking/internal/service/discount"
	"github.com/Domenick1991/tourbooking/internal/service/packages"
	"github.com/Domenick1991/tourbooking/internal/service/payment"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal("connect postgres", "error", err)
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		applied, err := repository.Migrate(ctx, pool)
		if err != nil {
			log.Fatal("migrate database", "error", err)
		}
		log.Info("migrations applied", "count", len(applied), "names", applied)
	}

	m := metrics.NewMetrics("tourbooking")
	catalog := domain.DefaultCatalog()

	bookingRepo := repository.NewBookingRepository(pool, catalog)
	usageRepo := repository.NewUsageRepository(pool)
	calculator := capacity.NewCalculator(catalog, usageRepo, log, m)
	evaluator := discount.NewEvaluator(usageRepo, log, m)

	probes := []healthapi.Probe{{Name: "postgres", Check: pool.Ping}}

	var bookingOpts []booking.BookingServiceOption
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		bookingOpts = append(bookingOpts,
			booking.WithProducer(producer, cfg.Kafka.BookingTopic),
			booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		)
		probes = append(probes, healthapi.Probe{Name: "kafka", Check: producer.CheckConnection})
	} else {
		log.Warn("kafka brokers not configured, booking events are disabled")
	}

	bookingService := booking.NewBookingService(bookingRepo, catalog, calculator, evaluator, log, m, bookingOpts...)

	var paymentOpts []payment.PaymentServiceOption
	if cfg.Payment.Configured() {
		paymentOpts = append(paymentOpts, payment.WithGateway(konnect.NewClient(cfg.Payment)))
	} else {
		log.Warn("payment credentials not configured, payment initiation is disabled")
	}
	if cfg.Redis.Addr != "" {
		redisCache := cache.NewRedisCache(cfg.Redis, time.Duration(cfg.Payment.CallbackDedupTTL)*time.Minute)
		defer redisCache.Close()
		paymentOpts = append(paymentOpts, payment.WithLocks(redisCache))
		probes = append(probes, healthapi.Probe{Name: "redis", Check: redisCache.Ping})
	} else {
		log.Warn("redis not configured, payment locks and callback dedupe are disabled")
	}

	paymentService := payment.NewPaymentService(bookingService, cfg.Payment, cfg.HTTP.PublicURL, log, m, paymentOpts...)

	services := bootstrap.Services{
		Packages: packages.NewPackageService(catalog, calculator),
		Bookings: bookingService,
		Payments: paymentService,
		Health:   healthapi.NewServer(log, probes...),
	}

	if err := bootstrap.Run(ctx, cfg, services, log, m); err != nil {
		log.Fatal("server error", "error", err)
	}
	log.Info("shutdown complete")
}
