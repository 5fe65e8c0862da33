package memberledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/magabrotheeeer/member-ledger/internal/app/infra"
	"github.com/magabrotheeeer/member-ledger/internal/config"
	"github.com/magabrotheeeer/member-ledger/internal/http/middlewarectx"
	memberservice "github.com/magabrotheeeer/member-ledger/internal/services/member"
	"github.com/magabrotheeeer/member-ledger/internal/services/reconcile"
	subservice "github.com/magabrotheeeer/member-ledger/internal/services/subscription"
)

const shutdownTimeout = 15 * time.Second

// App административный HTTP API.
type App struct {
	server *http.Server
	logger *slog.Logger
	res    *infra.Resources
}

// New поднимает инфраструктуру, сервисы и HTTP-сервер.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	res, err := infra.Open(ctx, cfg, logger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open infrastructure: %w", err)
	}

	services := Services{
		Engine:        reconcile.New(res.Store, res.ReferenceCache(), res.Notifier, logger, reconcile.OptionsFromConfig(cfg)),
		Subscriptions: subservice.NewSubscriptionService(res.Store, res.Notifier, logger, cfg.Sweep.DeletionGrace).
			WithReferenceCache(res.ReferenceInvalidator()),
		Members:       memberservice.NewMemberService(res.Store, cfg.References, logger),
	}
	if res.DB != nil {
		services.DB = res.DB
	}

	router := chi.NewRouter()
	RegisterRoutes(router, logger, middlewarectx.NewLimiter(cfg.HTTPServer), services)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	return &App{
		server: srv,
		logger: logger,
		res:    res,
	}, nil
}

// Run обслуживает запросы до отмены ctx, затем корректно останавливает сервер.
func (a *App) Run(ctx context.Context) error {
	defer a.res.Close()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server", slog.String("address", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	}
}
