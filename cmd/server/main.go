package main // entry point of the seat locking service

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-locking/internal/clock"
	"github.com/iliyamo/cinema-seat-locking/internal/config"
	"github.com/iliyamo/cinema-seat-locking/internal/database"
	"github.com/iliyamo/cinema-seat-locking/internal/handler"
	"github.com/iliyamo/cinema-seat-locking/internal/logger"
	"github.com/iliyamo/cinema-seat-locking/internal/middleware"
	"github.com/iliyamo/cinema-seat-locking/internal/queue"
	"github.com/iliyamo/cinema-seat-locking/internal/repository"
	"github.com/iliyamo/cinema-seat-locking/internal/repository/redislock"
	"github.com/iliyamo/cinema-seat-locking/internal/router"
	"github.com/iliyamo/cinema-seat-locking/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg := config.Load()
	resCfg := config.LoadReservationConfig()
	logg := logger.New(cfg.LogLevel, cfg.Env)
	slog.SetDefault(logg)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := database.Migrate(migrateCtx, db)
		cancel()
		if err != nil {
			log.Fatalf("db migrate: %v", err)
		}
	}

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	shows := repository.NewShowRepo(db)
	bookings := repository.NewBookingRepo(db)
	var locks service.LockStore = repository.NewSeatLockRepo(db)
	if cfg.LockStore == config.LockStoreRedis {
		if rdb == nil {
			log.Fatalf("LOCK_STORE=redis but redis is unreachable")
		}
		locks = redislock.New(rdb)
	}

	opts := []service.Option{
		service.WithLockTTL(resCfg.LockTTL),
		service.WithCancelCutoff(resCfg.CancelCutoff),
		service.WithMaxSeats(resCfg.MaxSeatsPerBooking),
		service.WithSeatGrid(resCfg.Grid),
		service.WithRetry(service.Backoff{
			Attempts: resCfg.CommitRetryAttempts,
			Base:     resCfg.CommitRetryBase,
			Max:      5 * time.Second,
		}),
		service.WithLogger(logg),
	}
	var publisher *queue.Publisher
	if cfg.RabbitMQURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitMQURL, logg)
		opts = append(opts, service.WithNotifier(publisher))
	}

	clk := clock.NewSystem()
	coordinator := service.NewCoordinator(locks, bookings, shows, clk, opts...)
	availability := service.NewAvailability(locks, bookings, shows, clk, opts...)
	committer := service.NewCommitter(locks, bookings, shows, clk, opts...)
	reconciler := service.NewReconciler(bookings, clk, opts...)
	reaper := service.NewReaper(locks, clk, resCfg.ReapInterval, opts...)

	var limiter echo.MiddlewareFunc
	if rdb != nil {
		limiter = middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, logg)
	}
	e := router.New(router.Deps{
		Seats:     handler.NewSeatHandler(coordinator, availability, logg),
		Bookings:  handler.NewBookingHandler(committer, logg),
		Payments:  handler.NewPaymentHandler(reconciler, cfg.WebhookTokenHash, logg),
		JWTSecret: cfg.JWTSecret,
		RateLimit: limiter,
		Logger:    logg,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(ctx)
	}()
	// The publisher outlives ctx so requests drained during shutdown still
	// get their events out.
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	defer stopPublisher()
	if publisher != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			publisher.Run(pubCtx)
		}()
	}
	if cfg.RabbitMQURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := queue.StartPaymentConsumer(ctx, cfg.RabbitMQURL, reconciler, logg); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error("payment consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	addr := ":" + cfg.Port
	srvErr := make(chan error, 1)
	go func() {
		srvErr <- e.Start(addr)
	}()
	logg.Info("listening", slog.String("addr", addr), slog.String("env", cfg.Env), slog.String("lock_store", cfg.LockStore))

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server error", slog.String("error", err.Error()))
		}
		stop()
	case <-ctx.Done():
		logg.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error("server shutdown error", slog.String("error", err.Error()))
	}
	stopPublisher()
	wg.Wait()
	logg.Info("server stopped")
}
