package reconciler

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/rabbitmq"
	"github.com/magabrotheeeer/member-ledger/internal/services/reconcile"
)

// Ingester сохраняет и сверяет одну транзакцию.
type Ingester interface {
	Ingest(ctx context.Context, t models.BankTransaction) (reconcile.Result, error)
}

// NewMessageHandler обрабатывает сообщения очереди входящих транзакций.
// Неразборчивые и некорректные записи подтверждаются и только логируются:
// повторная доставка их не исправит. В очередь возвращается сообщение
// лишь при сбое хранилища.
func NewMessageHandler(engine Ingester, log *slog.Logger) rabbitmq.Handler {
	return func(ctx context.Context, body []byte) error {
		const op = "reconciler.HandleMessage"
		log := log.With(slog.String("op", op))

		var in models.DummyTransaction
		if err := json.Unmarshal(body, &in); err != nil {
			log.Warn("dropping malformed transaction message", sl.Err(err))
			return nil
		}

		t, err := reconcile.ParseTransaction(in)
		if err != nil {
			log.Warn("dropping invalid transaction",
				slog.String("reference", in.ReferenceNumber), sl.Err(err))
			return nil
		}

		res, err := engine.Ingest(ctx, t)
		if err != nil {
			if models.IsValidation(err) {
				log.Warn("transaction rejected", sl.Err(err))
				return nil
			}
			log.Error("failed to reconcile transaction", sl.Err(err))
			return err
		}

		log.Info("transaction reconciled",
			slog.Int64("transaction_id", res.TransactionID),
			slog.String("outcome", string(res.Outcome)))
		return nil
	}
}
