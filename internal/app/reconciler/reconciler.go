// Package reconciler содержит приложение, сверяющее банковские транзакции
// из очереди брокера.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/member-ledger/internal/app/infra"
	"github.com/magabrotheeeer/member-ledger/internal/config"
	"github.com/magabrotheeeer/member-ledger/internal/rabbitmq"
	"github.com/magabrotheeeer/member-ledger/internal/services/reconcile"
)

type App struct {
	engine *reconcile.Engine
	res    *infra.Resources
	queue  string
	logger *slog.Logger
}

func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	res, err := infra.Open(ctx, cfg, logger, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open infrastructure: %w", err)
	}

	engine := reconcile.New(res.Store, res.ReferenceCache(), res.Notifier, logger, reconcile.OptionsFromConfig(cfg))

	return &App{
		engine: engine,
		res:    res,
		queue:  cfg.RabbitMQ.TransactionsQueue,
		logger: logger,
	}, nil
}

// Run потребляет очередь транзакций до отмены ctx и дожидается
// завершения начатых обработчиков перед закрытием подключений.
func (a *App) Run(ctx context.Context) error {
	defer a.res.Close()

	done, err := rabbitmq.ConsumerMessage(ctx, a.res.Ch, a.queue, a.logger, NewMessageHandler(a.engine, a.logger))
	if err != nil {
		a.logger.Error("failed to start transactions consumer", slog.String("queue", a.queue), slog.Any("err", err))
		return err
	}
	a.logger.Info("consuming bank transactions", slog.String("queue", a.queue))

	<-ctx.Done()
	a.logger.Info("reconciler shutting down gracefully")
	<-done
	return nil
}
