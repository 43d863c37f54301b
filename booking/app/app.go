package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hostelhub/booking-service/booking/config"
	"github.com/hostelhub/booking-service/booking/internal/handler"
	"github.com/hostelhub/booking-service/booking/internal/notify"
	"github.com/hostelhub/booking-service/booking/internal/repository"
	"github.com/hostelhub/booking-service/booking/internal/server"
	"github.com/hostelhub/booking-service/booking/internal/service"
	"github.com/hostelhub/booking-service/booking/migrations"
	"github.com/hostelhub/booking-service/pkg/circuit_breaker"
	"github.com/hostelhub/booking-service/pkg/kafka"
	"github.com/hostelhub/booking-service/pkg/logger"
	"github.com/hostelhub/booking-service/pkg/postgres"
)

func Run(cfg *config.Config) error {
	log := logger.NewLogger(cfg.Log, "booking")
	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		return fmt.Errorf("db init %v", err)
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		return fmt.Errorf("repo bookings %v", err)
	}

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return fmt.Errorf("kafka producer %v", err)
	}
	dispatcher := notify.NewAsyncRetry(
		notify.NewKafkaDispatcher(producer),
		log,
		cfg.Engine.NotifyAttempts,
		cfg.Engine.NotifyBackoff,
	)

	trigger := service.TriggerOnExplicitConfirm
	if cfg.Engine.ConfirmationTrigger == string(service.TriggerOnCreate) {
		trigger = service.TriggerOnCreate
	}
	cb := circuit_breaker.NewCircuitBreaker(20, 5*time.Second, 0.5, 3)
	svc := service.NewService(repo, dispatcher, log,
		service.WithGraceWindow(cfg.Engine.GraceWindow),
		service.WithConfirmationTrigger(trigger),
		service.WithRetryPolicy(cfg.Engine.RetryMaxAttempts, cfg.Engine.RetryBackoffBase),
		service.WithCircuitBreaker(cb),
	)
	if err := svc.RebuildIndex(context.Background()); err != nil {
		return fmt.Errorf("rebuild availability index %v", err)
	}

	h := handler.New(svc, log)

	srv := server.NewServer(cfg.Server, h.NewRouter())
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sweepCtx, stopSweeps := context.WithCancel(context.Background())
	go runSweeps(sweepCtx, svc, cfg.Engine, log)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	stopSweeps()
	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.Error("srv.Stop", zap.Error(err))
	}
	dispatcher.Wait()
	if err := producer.Close(); err != nil {
		log.Error("producer.Close", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
	return nil
}

// runSweeps drives the periodic lifecycle work: completed-stay promotion,
// index pruning and payment reminders.
func runSweeps(ctx context.Context, svc *service.Service, cfg config.Engine, log *zap.Logger) {
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := svc.SweepCompleted(ctx); err != nil {
				log.Warn("sweep completed stays", zap.Error(err))
			}
			if err := svc.SweepReminders(ctx, cfg.ReminderLead); err != nil {
				log.Warn("sweep payment reminders", zap.Error(err))
			}
		}
	}
}
