// Command target runs the sandbox booking service the load generator is
// exercised against.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"

	"github.com/kyu4583/realticket-gatling-simulations/internal/config"
	"github.com/kyu4583/realticket-gatling-simulations/internal/handler"
	"github.com/kyu4583/realticket-gatling-simulations/internal/middleware"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/queue"
	"github.com/kyu4583/realticket-gatling-simulations/internal/realtime"
	"github.com/kyu4583/realticket-gatling-simulations/internal/repository"
	"github.com/kyu4583/realticket-gatling-simulations/internal/router"
	"github.com/kyu4583/realticket-gatling-simulations/internal/service"
)

func main() {
	cfg, err := config.LoadTarget()
	if err != nil {
		log.Fatal().Err(err).Msg("target: invalid configuration")
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("target: redis")
	}
	defer rdb.Close()

	accounts := repository.NewAccountStore(rdb)
	seats := repository.NewSeatStore(rdb)
	if err := prepare(ctx, cfg, accounts, seats); err != nil {
		log.Fatal().Err(err).Msg("target: prepare data")
	}

	var events handler.EventPublisher
	if cfg.AMQPEnabled {
		events = service.NewPublisher(cfg.RabbitURL)
		go func() {
			if err := queue.StartBookingConsumer(ctx, cfg.RabbitURL, cfg.BookingLogPath); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("target: booking consumer stopped")
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	router.RegisterRoutes(e, handler.NewAuthHandler(accounts, cfg.JWTSecret, cfg.AccessTTLMin))
	booking := handler.NewBookingHandler(seats, realtime.NewHub(8), model.EncodingFromFlag(cfg.BooleanSeats), events)
	router.RegisterBooking(e, booking, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	go func() {
		addr := ":" + cfg.Port
		log.Info().Str("addr", addr).Str("env", cfg.Env).Msg("target: listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("target: server")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("target: shutdown")
	}
}

// prepare seeds the test accounts once and (re)creates the events.
func prepare(ctx context.Context, cfg config.TargetConfig, accounts *repository.AccountStore, seats *repository.SeatStore) error {
	n, err := accounts.Count(ctx)
	if err != nil {
		return err
	}
	if n < int64(cfg.SeedUsers) {
		start := time.Now()
		if err := accounts.Seed(ctx, cfg.SeedUsers, cfg.BcryptCost); err != nil {
			return err
		}
		log.Info().Int("accounts", cfg.SeedUsers).Dur("took", time.Since(start)).Msg("target: seeded accounts")
	}
	layout := repository.Layout{Sections: cfg.Sections, SeatsPerSection: cfg.SeatsPerSection}
	for id := 1; id <= cfg.Events; id++ {
		if _, err := seats.Layout(ctx, id); err == nil && !cfg.ResetOnStart {
			continue
		}
		if err := seats.Setup(ctx, id, layout); err != nil {
			return err
		}
	}
	log.Info().Int("events", cfg.Events).Int("sections", cfg.Sections).Int("seats", cfg.SeatsPerSection).
		Bool("reset", cfg.ResetOnStart).Msg("target: events ready")
	return nil
}
