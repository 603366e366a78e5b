// Command loadgen drives virtual users through the seat-booking workflow
// against a booking service and reports the run.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/kyu4583/realticket-gatling-simulations/internal/client"
	"github.com/kyu4583/realticket-gatling-simulations/internal/config"
	"github.com/kyu4583/realticket-gatling-simulations/internal/database"
	"github.com/kyu4583/realticket-gatling-simulations/internal/delay"
	"github.com/kyu4583/realticket-gatling-simulations/internal/model"
	"github.com/kyu4583/realticket-gatling-simulations/internal/queue"
	"github.com/kyu4583/realticket-gatling-simulations/internal/report"
	"github.com/kyu4583/realticket-gatling-simulations/internal/repository"
	"github.com/kyu4583/realticket-gatling-simulations/internal/scheduler"
	"github.com/kyu4583/realticket-gatling-simulations/internal/service"
	"github.com/kyu4583/realticket-gatling-simulations/internal/transport"
	"github.com/kyu4583/realticket-gatling-simulations/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("loadgen: invalid configuration")
	}
	config.SetupLogging(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("loadgen: run failed")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	profile, err := loadProfile(cfg)
	if err != nil {
		return err
	}
	mode, err := transport.ParseMode(cfg.Transport)
	if err != nil {
		return err
	}
	tf, err := transport.NewFactory(mode, transport.Options{
		EventID:      cfg.EventID,
		Encoding:     model.EncodingFromFlag(cfg.BooleanSeats),
		ConnectAwait: cfg.WSConnectAwait,
	})
	if err != nil {
		return err
	}

	collector := report.NewCollector(uuid.NewString())
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, collector)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	orch := workflow.New(workflowOptions(cfg), delay.NewSampler(), serviceFactory(cfg, collector), tf, log.Logger)
	runner := scheduler.NewRunner(profile, log.Logger)

	log.Info().Str("run", collector.RunID()).Str("target", cfg.BaseURL).Int("event", cfg.EventID).
		Str("transport", string(mode)).Int("users", profile.Total()).Dur("injection", profile.Length()).
		Msg("loadgen: starting run")

	launched, injectErr := runner.Run(ctx, func(ctx context.Context, num int) {
		collector.UserStarted()
		collector.RecordOutcome(orch.Run(ctx, orch.NewUser(num)))
	})
	if injectErr != nil {
		log.Warn().Err(injectErr).Int("launched", launched).Msg("loadgen: injection cut short")
	}

	summary := collector.Summary()
	report.Print(os.Stdout, summary)

	// Reporting outlives an interrupted run.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if cfg.ResultsDBEnabled {
		if err := saveRun(reportCtx, cfg, string(mode), summary); err != nil {
			log.Error().Err(err).Msg("loadgen: save run")
		}
	}
	if cfg.ReportAMQPEnabled {
		ev := runEvent(summary, string(mode), cfg.EventID)
		if err := service.NewPublisher(cfg.RabbitURL).Publish(reportCtx, queue.RunCompletedQueue, ev); err != nil {
			log.Error().Err(err).Msg("loadgen: publish run summary")
		}
	}
	if injectErr != nil && !errors.Is(injectErr, context.Canceled) {
		return injectErr
	}
	return nil
}

func loadProfile(cfg config.Config) (scheduler.Profile, error) {
	if cfg.LoadProfileFile != "" {
		return scheduler.LoadProfile(cfg.LoadProfileFile)
	}
	p := scheduler.AtOnce(cfg.InjectAtOnceUsers)
	return p, p.Validate()
}

func workflowOptions(cfg config.Config) workflow.Options {
	var st workflow.Stages
	if cfg.StaggeredLogin {
		st.StaggerWindow = cfg.StaggerWindow
	}
	if cfg.WaitBetweenActionsEnabled {
		st.WaitBetweenActions = cfg.WaitBetweenActions
	}
	if cfg.WaitAfterSubsEnabled {
		st.WaitAfterSubscribe = cfg.WaitAfterSubs
	}
	st.Confirm = !cfg.SkipConfirm
	return workflow.Options{
		EventID:       cfg.EventID,
		BookingAmount: cfg.FixedBookingAmount,
		MaxRetries:    cfg.MaxRetry,
		Pacing:        delay.DefaultPacing().Scaled(cfg.PacingScale),
		Stages:        st,
	}
}

// serviceFactory gives every user its own cookie jar over one shared
// connection pool.
func serviceFactory(cfg config.Config, obs client.Observer) workflow.ServiceFactory {
	pool := http.DefaultTransport.(*http.Transport).Clone()
	pool.MaxIdleConns = 0
	pool.MaxIdleConnsPerHost = 1024
	return func(*model.VirtualUser) (client.Service, error) {
		svc, err := client.NewHTTPService(client.Options{
			BaseURL:        cfg.BaseURL,
			RequestTimeout: cfg.RequestTimeout,
			StreamBuffer:   cfg.WSInboundBuffer,
			Transport:      pool,
		})
		if err != nil {
			return nil, err
		}
		return client.WithObserver(svc, obs), nil
	}
}

func serveMetrics(addr string, c *report.Collector) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("loadgen: metrics server")
		}
	}()
	return srv
}

func saveRun(ctx context.Context, cfg config.Config, mode string, s report.Summary) error {
	db, err := database.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	runs := repository.NewRunRepo(db)
	if err := runs.Save(ctx, repository.RunRecord{Transport: mode, EventID: cfg.EventID, Summary: s}); err != nil {
		return err
	}
	recent, err := runs.Recent(ctx, 5)
	if err != nil {
		return err
	}
	for _, r := range recent {
		log.Info().Str("run", r.RunID).Str("transport", r.Transport).Int("users", r.Users).
			Int("completed", r.Completed).Int("aborted", r.Aborted).Int("seats", r.SeatsBooked).
			Msg("loadgen: stored run")
	}
	return nil
}

func runEvent(s report.Summary, mode string, eventID int) queue.RunCompletedEvent {
	return queue.RunCompletedEvent{
		RunID:         s.RunID,
		Transport:     mode,
		EventID:       eventID,
		Users:         s.Users,
		Completed:     s.Completed,
		Aborted:       s.Aborted,
		SeatsBooked:   s.SeatsBooked,
		ClaimAttempts: s.ClaimAttempts,
		DurationMs:    s.Duration.Milliseconds(),
		FinishedAt:    s.Started.Add(s.Duration).UTC().Format(time.RFC3339),
	}
}
