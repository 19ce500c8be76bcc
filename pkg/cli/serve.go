package cli

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/cardsync/pkg/cli/config"
	"github.com/m-mizutani/cardsync/pkg/controller/server"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/infra/configfile"
	"github.com/m-mizutani/cardsync/pkg/usecase"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gots/slice"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		addr       string
		configPath string

		infraCfg infraConfig
		sentry   config.Sentry
	)
	serveFlags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Binding address",
			Value:       "127.0.0.1:8000",
			Sources:     cli.EnvVars("CARDSYNC_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to the sync configuration file",
			Aliases:     []string{"c"},
			Value:       "cardsync.yaml",
			Sources:     cli.EnvVars("CARDSYNC_CONFIG"),
			Destination: &configPath,
		},
	}

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run periodic sync cycles and serve the control API",
		Flags: slice.Flatten(
			serveFlags,
			infraCfg.Flags(),
			sentry.Flags(),
		),
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("starting serve",
				slog.Any("Addr", addr),
				slog.Any("Config", configPath),
				slog.Any("Board", &infraCfg.board),
				slog.Any("GitHub", &infraCfg.github),
				slog.Any("Redis", &infraCfg.redis),
				slog.Any("Firestore", &infraCfg.firestore),
				slog.Any("BigQuery", &infraCfg.bigQuery),
				slog.Any("Sentry", &sentry),
			)

			if err := sentry.Configure(ctx); err != nil {
				return err
			}

			clients, err := infraCfg.New(ctx)
			if err != nil {
				return err
			}

			// An invalid file at startup is not fatal: cycles are refused and /health reports
			// the error until the file is fixed.
			provider := configfile.New(configPath)
			if err := provider.Load(); err != nil {
				logging.Default().Warn("sync configuration is invalid", "error", err)
			}

			uc := usecase.New(clients, usecase.WithConfigProvider(provider))
			scheduler := usecase.NewScheduler(uc)

			provider.OnConfigChange(newConfigChangeHandler(uc, scheduler))

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if err := provider.Watch(ctx); err != nil {
				return err
			}

			interval := time.Duration(model.DefaultSyncIntervalMinutes) * time.Minute
			if cfg := provider.Current(); cfg != nil {
				interval = cfg.SyncInterval()
			}
			if err := scheduler.Start(ctx, interval); err != nil {
				return err
			}
			defer scheduler.Stop()

			s := server.New(uc, server.WithConfigProvider(provider))

			serverErr := make(chan error, 1)
			httpServer := &http.Server{
				Addr:    addr,
				Handler: s.Mux(),

				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
			}

			go func() {
				logging.Default().Info("starting http server", "addr", addr)
				if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
					serverErr <- goerr.Wrap(err, "failed to listen and serve")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-serverErr:
				return err

			case sig := <-quit:
				logging.Default().Info("shutting down server", "signal", sig)

				// Stop scheduling first; an in-flight cycle finishes its current issue.
				cancel()
				scheduler.Stop()

				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := httpServer.Shutdown(ctx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server")
				}
			}

			return nil
		},
	}
}

type intervalResetter interface {
	Reset(interval time.Duration)
}

// newConfigChangeHandler drops cached board state and moves the scheduler to the new interval. A
// first valid configuration (old is nil) always sets the interval, since the scheduler started on
// the default one.
func newConfigChangeHandler(uc *usecase.UseCase, scheduler intervalResetter) configfile.ChangeHandler {
	return func(old, updated *model.SyncConfig) {
		uc.HandleConfigChange(old, updated)
		if old != nil && old.SyncInterval() == updated.SyncInterval() {
			return
		}

		logging.Default().Info("sync interval changed", "new", updated.SyncInterval())
		scheduler.Reset(updated.SyncInterval())
	}
}
