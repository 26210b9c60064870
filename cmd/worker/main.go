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
	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/Domenick1991/tourbooking/internal/email"
	"github.com/Domenick1991/tourbooking/internal/kafka"
	"github.com/Domenick1991/tourbooking/internal/logger"
	"github.com/Domenick1991/tourbooking/internal/metrics"
	"github.com/Domenick1991/tourbooking/internal/repository"
	"github.com/Domenick1991/tourbooking/internal/service/booking"
	"github.com/Domenick1991/tourbooking/internal/service/capacity"
	"github.com/Domenick1991/tourbooking/internal/service/discount"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
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

	log := logger.NewLogger(cfg.Log.Level).With("process", "worker")
	defer log.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", "mode", cfg.Mode, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatal("connect postgres", "error", err)
	}
	defer pool.Close()

	m := metrics.NewMetrics("tourbooking_worker")
	catalog := domain.DefaultCatalog()
	usageRepo := repository.NewUsageRepository(pool)

	probes := []healthapi.Probe{{Name: "postgres", Check: pool.Ping}}
	var opts []booking.BookingServiceOption
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		probes = append(probes, healthapi.Probe{Name: "kafka", Check: producer.CheckConnection})
		opts = append(opts,
			booking.WithProducer(producer, cfg.Kafka.BookingTopic),
			booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
		)
	}
	bookingService := booking.NewBookingService(
		repository.NewBookingRepository(pool, catalog),
		catalog,
		capacity.NewCalculator(catalog, usageRepo, log, m),
		discount.NewEvaluator(usageRepo, log, m),
		log, m, opts...,
	)

	scheduler := cron.New()
	if cfg.Worker.AbandonAfterMinutes > 0 {
		olderThan := time.Duration(cfg.Worker.AbandonAfterMinutes) * time.Minute
		_, err := scheduler.AddFunc(cfg.Worker.SweepSchedule, func() {
			cancelled, err := bookingService.CancelAbandoned(ctx, olderThan)
			if err != nil {
				log.Error("abandoned booking sweep failed", "error", err)
				return
			}
			if cancelled > 0 {
				log.Info("cancelled abandoned bookings", "count", cancelled)
			}
		})
		if err != nil {
			log.Fatal("invalid sweep schedule", "schedule", cfg.Worker.SweepSchedule, "error", err)
		}
		scheduler.Start()
		log.Info("abandoned booking sweep scheduled", "schedule", cfg.Worker.SweepSchedule, "older_than", olderThan.String())
	}

	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.NotificationsTopic != "" {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, log)
		defer consumer.Close()

		sender := email.NewSender(log)
		go func() {
			err := consumer.Consume(ctx, func(ctx context.Context, event kafka.BookingEvent) error {
				if err := sender.Send(ctx, event); err != nil {
					log.Warn("notification not sent", "reference", event.Reference, "type", event.Type, "error", err)
				}
				return nil
			})
			if err != nil {
				log.Error("consumer stopped", "error", err)
				stop()
			}
		}()
	}

	go func() {
		if err := bootstrap.RunWorkerHTTP(ctx, cfg.Worker.MetricsAddress, healthapi.NewServer(log, probes...), log, m); err != nil {
			log.Error("worker metrics server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	<-scheduler.Stop().Done()
}
