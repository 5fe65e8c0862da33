// Package infra поднимает общую для всех процессов инфраструктуру:
// хранилище, миграции, кеш redis и подключение к брокеру.
package infra

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/member-ledger/internal/cache"
	"github.com/magabrotheeeer/member-ledger/internal/config"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/migrations"
	"github.com/magabrotheeeer/member-ledger/internal/rabbitmq"
	"github.com/magabrotheeeer/member-ledger/internal/services/notify"
	"github.com/magabrotheeeer/member-ledger/internal/services/reconcile"
	subservice "github.com/magabrotheeeer/member-ledger/internal/services/subscription"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
	"github.com/magabrotheeeer/member-ledger/internal/storage/memory"
	"github.com/magabrotheeeer/member-ledger/internal/storage/repository"
)

const (
	dbReadyAttempts = 10
	dbReadyDelay    = 3 * time.Second
)

// Resources открытые подключения процесса. Поля DB, Cache, Conn и Ch
// равны nil, если соответствующая зависимость не настроена.
type Resources struct {
	Store    storage.Store
	DB       *sql.DB
	Cache    *cache.Cache
	Conn     *amqp.Connection
	Ch       *amqp.Channel
	Notifier notify.Notifier

	log *slog.Logger
}

// Open подключает хранилище и, если заданы адреса, redis и брокер.
// requireBroker делает отсутствие RabbitMQ.URL ошибкой.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger, requireBroker bool) (*Resources, error) {
	const op = "infra.Open"
	res := &Resources{log: logger}

	if err := res.openStore(cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Redis.Address != "" {
		c, err := cache.InitServer(ctx, cfg.Redis)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("%s: cache not initialized: %w", op, err)
		}
		res.Cache = c
		logger.Info("member reference cache enabled", slog.String("address", cfg.Redis.Address))
	}

	switch {
	case cfg.RabbitMQ.URL != "":
		if err := res.openBroker(cfg); err != nil {
			res.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res.Notifier = notify.NewBrokerNotifier(res.Ch, logger)
	case requireBroker:
		res.Close()
		return nil, fmt.Errorf("%s: rabbitmq.url is required", op)
	default:
		logger.Warn("rabbitmq is not configured, notifications go to the log")
		res.Notifier = notify.NewLogNotifier(logger)
	}

	return res, nil
}

func (r *Resources) openStore(cfg *config.Config) error {
	if cfg.StorageDriver == config.DriverMemory {
		r.log.Warn("using in-memory storage, data is lost on restart")
		r.Store = memory.New()
		return nil
	}

	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return fmt.Errorf("failed to connect storage: %w", err)
	}
	if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		_ = db.Close()
		return err
	}
	if err := waitForDB(db); err != nil {
		_ = db.Close()
		return err
	}
	r.Store = db
	r.DB = db.DB
	return nil
}

func (r *Resources) openBroker(cfg *config.Config) error {
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	r.Conn = conn

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.NotificationQueues())
	if err != nil {
		return fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}
	r.Ch = ch

	if cfg.RabbitMQ.TransactionsQueue != "" {
		if err := rabbitmq.DeclareQueue(ch, cfg.RabbitMQ.TransactionsQueue); err != nil {
			return fmt.Errorf("failed to declare transactions queue: %w", err)
		}
	}
	return nil
}

func waitForDB(db *repository.Storage) error {
	var err error
	for range dbReadyAttempts {
		if err = repository.CheckDatabaseReady(db); err == nil {
			return nil
		}
		time.Sleep(dbReadyDelay)
	}
	return fmt.Errorf("database not ready after retries: %w", err)
}

// ReferenceCache кеш для движка сверки. Возвращает nil-интерфейс, если redis
// не настроен, чтобы движок не вызывал методы у nil-указателя.
func (r *Resources) ReferenceCache() reconcile.Cache {
	if r.Cache == nil {
		return nil
	}
	return r.Cache
}

// ReferenceInvalidator кеш для сброса номеров удалённых участников.
// Как и ReferenceCache, без redis возвращает nil-интерфейс.
func (r *Resources) ReferenceInvalidator() subservice.ReferenceInvalidator {
	if r.Cache == nil {
		return nil
	}
	return r.Cache
}

// Close закрывает все открытые подключения в обратном порядке.
func (r *Resources) Close() {
	if r.Ch != nil {
		if err := r.Ch.Close(); err != nil {
			r.log.Error("failed to close channel", sl.Err(err))
		}
	}
	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			r.log.Error("failed to close connection", sl.Err(err))
		}
	}
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			r.log.Error("failed to close cache", sl.Err(err))
		}
	}
	if r.Store != nil {
		if err := r.Store.Close(); err != nil {
			r.log.Error("failed to close storage", sl.Err(err))
		}
	}
}
