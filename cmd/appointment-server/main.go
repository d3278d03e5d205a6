package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clinicops/appointment-service/internal/config"
	v1 "github.com/clinicops/appointment-service/internal/handler/v1"
	"github.com/clinicops/appointment-service/internal/integration"
	"github.com/clinicops/appointment-service/internal/locking"
	"github.com/clinicops/appointment-service/internal/repository"
	"github.com/clinicops/appointment-service/internal/service"
	"github.com/clinicops/appointment-service/pkg/auth"
	"github.com/clinicops/appointment-service/pkg/database"
	"github.com/clinicops/appointment-service/pkg/logger"
	"github.com/clinicops/appointment-service/pkg/metrics"
	"github.com/clinicops/appointment-service/pkg/tracer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		os.Stderr.WriteString("failed to build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	tp, err := tracer.Init(cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := database.Migrate(db, log); err != nil {
		return err
	}

	// Redis only dampens contention on hot providers; the serializable
	// store transaction is what prevents double-booking. Deployments
	// without Redis run on the transaction guarantee alone.
	var (
		rdb    *redis.Client
		locker locking.Locker
	)
	if cfg.Redis.Enabled {
		rdb, err = locking.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Username, cfg.Redis.Password)
		if err != nil {
			return err
		}
		defer func() { _ = rdb.Close() }()
		locker = locking.NewRedisProviderLocker(rdb, cfg.Redis.LockTTL)
	} else {
		log.Warn("redis disabled, provider booking lock is off")
	}

	collector := metrics.NewCollector("appointment_service")
	jwtManager := auth.NewJWTManager(cfg.JWT)

	appointmentRepo := repository.NewAppointmentRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	directory := integration.NewHTTPPartyDirectory(cfg.Integration, log)
	notifier := integration.NewHTTPEventNotifier(cfg.Integration, log, collector.NotifierFailures)
	billing := integration.NewHTTPBillingClient(cfg.Integration, log)
	prescriptions := integration.NewHTTPPrescriptionClient(cfg.Integration, log, nil)

	schedulingSvc := service.NewSchedulingService(
		appointmentRepo, directory, notifier, billing, prescriptions,
		locker, cfg.Scheduling, log,
	)
	authSvc := service.NewAuthService(userRepo, jwtManager, log)
	auditSvc := service.NewAuditService(auditRepo, log)
	defer auditSvc.Shutdown()

	router := v1.NewRouter(cfg, v1.RouterDeps{
		Appointments: v1.NewAppointmentHandler(schedulingSvc, auditSvc, collector, log),
		Auth:         v1.NewAuthHandler(authSvc, log),
		Health:       v1.NewHealthHandler(db, rdb, cfg.App.Version),
		JWTManager:   jwtManager,
		Metrics:      collector,
		Logger:       log,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.App.Environment),
			zap.String("version", cfg.App.Version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server stopped")
	return nil
}
