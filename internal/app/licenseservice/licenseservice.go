// Package licenseservice собирает сервис лицензий: хранилище, кэш,
// брокер событий, бизнес-сервисы и HTTP-сервер.
package licenseservice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/luthierpro/license-service/internal/cache"
	"github.com/luthierpro/license-service/internal/config"
	"github.com/luthierpro/license-service/internal/events"
	"github.com/luthierpro/license-service/internal/lib/offlinetoken"
	"github.com/luthierpro/license-service/internal/lib/sl"
	"github.com/luthierpro/license-service/internal/migrations"
	licenseservice "github.com/luthierpro/license-service/internal/services/license"
	lifecycleservice "github.com/luthierpro/license-service/internal/services/lifecycle"
	trialservice "github.com/luthierpro/license-service/internal/services/trial"
	"github.com/luthierpro/license-service/internal/storage"
	"github.com/luthierpro/license-service/internal/storage/airtable"
	"github.com/luthierpro/license-service/internal/storage/postgres"
)

// App инкапсулирует HTTP-сервер и ресурсы сервиса лицензий.
type App struct {
	server *http.Server
	logger *slog.Logger
	db     *postgres.Storage // nil при hosted-хранилище
}

// New создает приложение по конфигурации. Кэш и брокер опциональны:
// при пустом адресе сервис работает без них.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	store, db, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	var licenseCache licenseservice.Cache
	if cfg.RedisConnection.AddressRedis != "" {
		cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, err
		}
		licenseCache = cacheRedis
	} else {
		logger.Info("redis address is empty, cache disabled")
	}

	var publisher lifecycleservice.EventPublisher
	if cfg.AMQP.URL != "" {
		p, err := events.Connect(cfg.AMQP.URL, cfg.AMQP.Retries, cfg.AMQP.RetryDelay)
		if err != nil {
			return nil, err
		}
		publisher = p
	} else {
		logger.Info("amqp url is empty, event publishing disabled")
	}

	var tokens offlinetoken.Maker
	if cfg.Secrets.OfflineTokenKey != "" {
		tokens = offlinetoken.NewMaker(cfg.Secrets.OfflineTokenKey)
	}

	licenseSvc := licenseservice.New(store, licenseCache, tokens, logger)
	lifecycleSvc := lifecycleservice.New(store, publisher, logger)
	trialSvc := trialservice.New(store, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, cfg, store, licenseSvc, lifecycleSvc, trialSvc)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		db:     db,
	}, nil
}

func newStore(cfg *config.Config) (storage.Store, *postgres.Storage, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := postgres.New(cfg.Storage.StorageConnectionString)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.Run(db.DB, cfg.Storage.MigrationsPath); err != nil {
			return nil, nil, err
		}
		return db, db, nil
	default:
		client := airtable.New(cfg.RecordStore.APIURL, cfg.RecordStore.BaseID,
			cfg.RecordStore.APIKey, cfg.RecordStore.Table)
		return client, nil, nil
	}
}

// Run запускает HTTP-сервер и останавливает его по отмене контекста.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		if a.db != nil {
			if closeErr := a.db.DB.Close(); closeErr != nil {
				a.logger.Warn("failed to close database", sl.Err(closeErr))
			}
		}
		return err
	}
}
