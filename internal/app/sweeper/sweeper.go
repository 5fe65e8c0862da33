// Package sweeper содержит приложение периодического обхода подписок.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/member-ledger/internal/app/infra"
	"github.com/magabrotheeeer/member-ledger/internal/config"
	schedulerservice "github.com/magabrotheeeer/member-ledger/internal/services/scheduler"
	subservice "github.com/magabrotheeeer/member-ledger/internal/services/subscription"
)

// App представляет приложение планировщика.
type App struct {
	schedulerService *schedulerservice.SchedulerService
	res              *infra.Resources
	logger           *slog.Logger
}

// New создает новый экземпляр приложения планировщика.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	res, err := infra.Open(ctx, cfg, logger, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open infrastructure: %w", err)
	}

	subs := subservice.NewSubscriptionService(res.Store, res.Notifier, logger, cfg.Sweep.DeletionGrace).
		WithReferenceCache(res.ReferenceInvalidator())

	return &App{
		schedulerService: schedulerservice.NewSchedulerService(subs, cfg.Sweep.Interval, logger),
		res:              res,
		logger:           logger,
	}, nil
}

// Run запускает планировщик и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	a.schedulerService.Run(ctx)

	a.logger.Info("shutting down scheduler service")
	a.res.Close()
	return nil
}
