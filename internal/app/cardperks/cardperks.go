// Package cardperks собирает основное HTTP-приложение: хранилище,
// кэш, каталог шаблонов, бизнес-сервисы и маршруты.
package cardperks

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/pereloman/cardperks/internal/cache"
	"github.com/pereloman/cardperks/internal/config"
	"github.com/pereloman/cardperks/internal/lib/jwt"
	"github.com/pereloman/cardperks/internal/migrations"
	authservice "github.com/pereloman/cardperks/internal/services/auth"
	benefitservice "github.com/pereloman/cardperks/internal/services/benefit"
	cardservice "github.com/pereloman/cardperks/internal/services/card"
	categoryservice "github.com/pereloman/cardperks/internal/services/category"
	eventservice "github.com/pereloman/cardperks/internal/services/event"
	syncservice "github.com/pereloman/cardperks/internal/services/sync"
	templatesyncservice "github.com/pereloman/cardperks/internal/services/templatesync"
	"github.com/pereloman/cardperks/internal/storage/repository"
	"github.com/pereloman/cardperks/internal/templates"
)

// App инкапсулирует HTTP-сервер и ресурсы основного приложения.
type App struct {
	server  *http.Server
	logger  *slog.Logger
	db      *repository.Storage
	sweeper *syncservice.SweeperService
	cfg     *config.Config
}

// New собирает приложение: подключает PostgreSQL и Redis, загружает
// каталог шаблонов, прогоняет миграции и регистрирует маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, "./migrations"); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	catalog, err := templates.New(cfg.TemplatesDir, logger)
	if err != nil {
		return nil, err
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	authService := authservice.NewAuthService(db, jwtMaker)

	syncer := templatesyncservice.New(db, catalog, logger)

	cardService := cardservice.NewCardService(db, cacheRedis, catalog, syncer, logger)
	benefitService := benefitservice.NewBenefitService(db, logger)
	eventService := eventservice.NewEventService(db, logger)
	categoryService := categoryservice.NewCategoryService(db, logger)

	sweeper := syncservice.NewSweeperService(catalog, syncer, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, &Services{
		Auth:     authService,
		Card:     cardService,
		Benefit:  benefitService,
		Event:    eventService,
		Category: categoryService,
		Catalog:  catalog,
	})

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:  srv,
		logger:  logger,
		db:      db,
		sweeper: sweeper,
		cfg:     cfg,
	}, nil
}

// Run запускает HTTP-сервер и фоновую сверку карт с шаблонами,
// завершается по отмене контекста с graceful shutdown.
func (a *App) Run(ctx context.Context) error {
	go a.sweeper.Run(ctx, a.cfg.Sync.SweepInterval)

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
		a.db.DB.Close()
		return err
	}
}
