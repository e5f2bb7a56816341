package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"metric-alerts/internal/alerting"
	"metric-alerts/internal/config"
	"metric-alerts/internal/cooldown"
	"metric-alerts/internal/dispatch"
	"metric-alerts/internal/evaluator"
	"metric-alerts/internal/health"
	"metric-alerts/internal/scheduler"
	"metric-alerts/internal/service"
	"metric-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newAdapters() []alerting.Adapter {
	adapters := make([]alerting.Adapter, 0, 3)

	if a.Config.Channels.Telegram.Enabled {
		cfg := a.Config.Channels.Telegram
		adapters = append(adapters, alerting.NewTelegramAdapter(cfg.BotToken, cfg.ChatID, cfg.APIBase, a.Config.Dispatch.SendTimeout, a.Logger))
	}
	if a.Config.Channels.Webhook.Enabled {
		adapters = append(adapters, alerting.NewWebhookAdapter(a.Config.Channels.Webhook.URL, a.Config.Dispatch.SendTimeout, a.Logger))
	}
	if a.Config.Channels.Email.Enabled {
		cfg := a.Config.Channels.Email
		adapters = append(adapters, alerting.NewEmailAdapter(cfg.Host, cfg.Port, cfg.From, cfg.Username, cfg.Password, a.Logger))
	}

	return adapters
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// newService wires the full evaluation pipeline on top of the given store.
func (a *App) newService(store *storage.Store) (*service.Service, *dispatch.Dispatcher) {
	registry := alerting.NewRegistry(a.newAdapters()...)

	dispatcher := dispatch.New(registry, store, dispatch.Config{
		Workers:     a.Config.Dispatch.Workers,
		MaxAttempts: a.Config.Dispatch.MaxAttempts,
		SendTimeout: a.Config.Dispatch.SendTimeout,
		BackoffBase: a.Config.Dispatch.BackoffBase,
		BackoffCap:  a.Config.Dispatch.BackoffCap,
	}, a.Logger)

	collector := health.NewSystemCollector(a.Config.Health.DiskPath, a.Config.Health.CPUWindow, store, a.Logger)

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := service.New(service.Options{
		Scheduler:   sched,
		Rules:       store,
		Events:      store,
		Evaluator:   evaluator.New(store, collector, a.Logger),
		Tracker:     cooldown.New(store, a.Logger),
		Dispatcher:  dispatcher,
		EvalWorkers: a.Config.Scheduler.EvalWorkers,
		Locker:      store,
		LockKey:     a.Config.Scheduler.AdvisoryLockKey,
	}, a.Logger)

	return svc, dispatcher
}

// Run executes the long-running alert engine.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn not configured; the engine needs rule and tracking storage")
	}
	defer closeStore()

	svc, dispatcher := a.newService(store)

	dispatcher.Start()
	defer dispatcher.Stop()

	svc.ReportStaleTasks(ctx)

	if a.Config.Metrics.Enabled {
		a.serveMetrics(ctx)
	}

	a.Logger.Info().Msg("starting alert engine")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("engine terminated with error")
		return err
	}

	a.Logger.Info().Msg("alert engine stopped")
	return nil
}

// CheckNow runs a single evaluation pass and waits for its notifications.
func (a *App) CheckNow(ctx context.Context) (service.Report, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return service.Report{}, err
	}
	if store == nil {
		return service.Report{}, errors.New("database.dsn not configured; cannot check rules")
	}
	defer closeStore()

	svc, dispatcher := a.newService(store)

	dispatcher.Start()
	defer dispatcher.Stop()

	return svc.CheckNow(ctx)
}

// ListAlerts returns recent alert events matching the filter.
func (a *App) ListAlerts(ctx context.Context, filter storage.EventFilter) ([]storage.AlertEvent, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("database.dsn not configured; cannot list alerts")
	}
	defer closeStore()

	return store.ListAlertEvents(ctx, filter)
}

// AcknowledgeAlert marks one alert event acknowledged.
func (a *App) AcknowledgeAlert(ctx context.Context, eventID string) (storage.AlertEvent, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return storage.AlertEvent{}, err
	}
	if store == nil {
		return storage.AlertEvent{}, errors.New("database.dsn not configured; cannot acknowledge alerts")
	}
	defer closeStore()

	return store.AcknowledgeAlertEvent(ctx, eventID, time.Now().UTC())
}

func (a *App) serveMetrics(ctx context.Context) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: a.Config.Metrics.ListenAddr, Handler: mux}

	go func() {
		a.Logger.Info().Str("addr", server.Addr).Msg("metrics endpoint listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error().Err(err).Msg("metrics endpoint failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit    int
	RuleID   int64
	Severity string
	Status   string
}

// SimulateOptions configure a synthetic evaluation pass.
type SimulateOptions struct {
	Symbol    string
	Values    []string
	Threshold string
	Operator  string
	Kind      string
	Window    time.Duration
}
