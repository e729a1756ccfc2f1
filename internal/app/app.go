package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mento-protocol/oracle-v2-playground/internal/alerting"
	"github.com/mento-protocol/oracle-v2-playground/internal/api"
	"github.com/mento-protocol/oracle-v2-playground/internal/config"
	"github.com/mento-protocol/oracle-v2-playground/internal/feed"
	"github.com/mento-protocol/oracle-v2-playground/internal/provider"
	"github.com/mento-protocol/oracle-v2-playground/internal/scheduler"
	"github.com/mento-protocol/oracle-v2-playground/internal/service"
	"github.com/mento-protocol/oracle-v2-playground/internal/storage"
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

// buildRegistries materialises the feed and provider registries declared in
// configuration.
func (a *App) buildRegistries() (*feed.Registry, *provider.Registry, error) {
	feeds := feed.NewRegistry()
	providers := provider.NewRegistry()

	for _, f := range a.Config.Feeds {
		engineCfg, err := f.EngineConfig()
		if err != nil {
			return nil, nil, err
		}
		if _, err := feeds.Register(f.ID, engineCfg); err != nil {
			return nil, nil, err
		}

		addrs, err := f.ProviderAddresses()
		if err != nil {
			return nil, nil, err
		}
		for _, addr := range addrs {
			providers.Add(f.ID, addr)
		}
	}

	return feeds, providers, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
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

func (a *App) newService(store *storage.Store) (*service.Service, error) {
	feeds, providers, err := a.buildRegistries()
	if err != nil {
		return nil, err
	}

	var rounds storage.RoundStore
	if store != nil {
		rounds = store
	}

	return service.New(feeds, providers, service.Options{
		Rounds:   rounds,
		Notifier: a.newNotifier(),
		Channels: a.Config.Alerting.Channels,
		AlertsOn: a.Config.Alerting.Enabled,
	}, a.Logger), nil
}

// Run executes the long-running rate feed service: report ingestion over
// HTTP, the staleness sweep, and round persistence.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	svc, err := a.newService(store)
	if err != nil {
		return err
	}

	if err := svc.RestoreFromStorage(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("failed to restore feed history")
	}

	sweep := scheduler.New(scheduler.Options{
		Interval:     a.Config.Sweep.Interval,
		AlignToStart: a.Config.Sweep.AlignToBucket,
		StartupDelay: a.Config.Sweep.StartupDelay,
	}, a.Logger)

	var locker storage.AdvisoryLocker
	if store != nil {
		locker = store
	}
	lockKey := a.Config.Sweep.AdvisoryLockKey

	go func() {
		err := sweep.Run(ctx, func(tickCtx context.Context, _ time.Time) error {
			unlock, proceed, lockErr := acquireLock(tickCtx, locker, lockKey)
			if lockErr != nil {
				return lockErr
			}
			if !proceed {
				a.Logger.Debug().Msg("skip sweep because advisory lock held elsewhere")
				return nil
			}
			if unlock != nil {
				defer unlock()
			}
			svc.MarkStaleAll(tickCtx)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error().Err(err).Msg("staleness sweep terminated")
		}
	}()

	handler := api.NewHandler(svc, a.Logger)
	server := &http.Server{
		Addr:         a.Config.Server.ListenAddr,
		Handler:      handler.Router(),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", server.Addr).Msg("http server listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("http server shutdown failed")
	}

	a.Logger.Info().Msg("rate feed service stopped")
	return nil
}

func acquireLock(ctx context.Context, locker storage.AdvisoryLocker, key int64) (func(), bool, error) {
	if key == 0 || locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := locker.TryAdvisoryLock(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	FeedID string
	Limit  int
}

// ExportOptions hold parameters for exporting historical rounds.
type ExportOptions struct {
	FeedID    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions configure the simulate command.
type SimulateOptions struct {
	FeedID string
	Values []string
}
