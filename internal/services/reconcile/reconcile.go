// Package reconcile сверка банковских транзакций с участниками и счетами
// по ссылочному номеру и продление оплаченных подписок.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/cache"
	"github.com/magabrotheeeer/member-ledger/internal/config"
	"github.com/magabrotheeeer/member-ledger/internal/lib/day"
	"github.com/magabrotheeeer/member-ledger/internal/lib/refnum"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/metrics"
	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/services/notify"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
)

// Cache описывает кеш соответствия ссылочного номера участнику.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
}

// Outcome итог сверки одной транзакции.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeUnmatched    Outcome = "unmatched"
	OutcomeInsufficient Outcome = "insufficient"
	OutcomeRejected     Outcome = "rejected"
	OutcomeFailed       Outcome = "failed"
)

// Result итог сверки. Err содержит доменную ошибку (UnmatchedTransactionError,
// InsufficientPaymentError, ValidationError) или сбой хранилища.
type Result struct {
	TransactionID int64      `json:"transaction_id,omitempty"`
	Outcome       Outcome    `json:"outcome"`
	MemberID      *int64     `json:"member_id,omitempty"`
	PaidUntil     *time.Time `json:"paid_until,omitempty"`
	Error         string     `json:"error,omitempty"`
	Err           error      `json:"-"`
}

func (r *Result) fail(outcome Outcome, err error) {
	r.Outcome = outcome
	r.Err = err
	if err != nil {
		r.Error = err.Error()
	}
}

// Options настройки сверки.
type Options struct {
	DefaultServiceID      int64
	AccessRightsServiceID int64
	PeriodPolicy          string
	CacheTTL              time.Duration
}

// OptionsFromConfig собирает Options из конфигурации сервиса.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultServiceID:      cfg.Reconcile.DefaultServiceID,
		AccessRightsServiceID: cfg.Reconcile.AccessRightsServiceID,
		PeriodPolicy:          cfg.Reconcile.PeriodPolicy,
		CacheTTL:              cfg.Redis.TTL,
	}
}

// Engine сверяет транзакции. Каждая транзакция обрабатывается в своей
// транзакции хранилища, события уходят в Notifier только после фиксации.
type Engine struct {
	store    storage.Store
	cache    Cache
	notifier notify.Notifier
	log      *slog.Logger
	opts     Options
	now      func() time.Time
}

// New создаёт Engine. cache может быть nil.
func New(store storage.Store, cache Cache, notifier notify.Notifier, log *slog.Logger, opts Options) *Engine {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Engine{
		store:    store,
		cache:    cache,
		notifier: notifier,
		log:      log,
		opts:     opts,
		now:      time.Now,
	}
}

// WithClock подменяет источник текущего времени, от него берётся дата оценки состояния.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Ingest проверяет, сохраняет и сверяет транзакцию в одной транзакции хранилища:
// при сбое сверки запись не остаётся, и повторная доставка не создаёт дубликатов.
// Неверная контрольная цифра даёт ValidationError, транзакция не сохраняется.
func (e *Engine) Ingest(ctx context.Context, t models.BankTransaction) (Result, error) {
	const op = "reconcile.Ingest"
	if err := validateTransaction(t); err != nil {
		return Result{Outcome: OutcomeRejected, Error: err.Error(), Err: err}, err
	}

	t.Date = day.Truncate(t.Date)
	t.Status = models.TxPending
	t.MemberID = nil

	hint := e.cachedMember(ctx, t.ReferenceNumber)
	res, err := e.process(ctx, 0, hint, func(ctx context.Context, tx storage.Tx) (int64, error) {
		id, err := tx.CreateTransaction(ctx, &t)
		if err != nil {
			return 0, err
		}
		e.log.Debug("bank transaction stored", slog.Int64("transaction_id", id))
		return id, nil
	})
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// ReconcileBatch принимает пачку транзакций. Ошибка одной не влияет на остальные.
func (e *Engine) ReconcileBatch(ctx context.Context, batch []models.BankTransaction) []Result {
	results := make([]Result, 0, len(batch))
	for _, t := range batch {
		res, err := e.Ingest(ctx, t)
		if err != nil && res.Err == nil {
			res.fail(OutcomeFailed, err)
		}
		results = append(results, res)
	}
	return results
}

// Unmatched возвращает очередь ручной проверки: транзакции со статусом UNMATCHED
// в порядке даты. limit = 0 означает без ограничения.
func (e *Engine) Unmatched(ctx context.Context, limit, offset int) ([]*models.BankTransaction, error) {
	const op = "reconcile.Unmatched"
	var list []*models.BankTransaction
	err := e.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		list, err = tx.ListTransactionsByStatus(ctx, models.TxUnmatched, limit, offset)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return list, nil
}

// ReprocessUnmatched повторно сверяет транзакции, ожидающие ручной проверки,
// например после исправления ссылочного номера участника. Вместе с ними
// подбираются записи PENDING, оставшиеся от прерванной сверки.
func (e *Engine) ReprocessUnmatched(ctx context.Context) ([]Result, error) {
	const op = "reconcile.ReprocessUnmatched"
	var pending []*models.BankTransaction
	err := e.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, status := range []models.TransactionStatus{models.TxPending, models.TxUnmatched} {
			list, err := tx.ListTransactionsByStatus(ctx, status, 0, 0)
			if err != nil {
				return err
			}
			pending = append(pending, list...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	results := make([]Result, 0, len(pending))
	for _, t := range pending {
		res, err := e.Reconcile(ctx, t.ID)
		if err != nil && res.Err == nil {
			res.fail(OutcomeFailed, err)
		}
		results = append(results, res)
	}
	e.log.Info("reprocessed unmatched transactions", slog.Int("count", len(results)))
	return results, nil
}

// Reconcile сверяет сохранённую транзакцию. Повторный вызов для уже зачтённой
// транзакции ничего не меняет. Возвращаемая ошибка означает сбой, при котором
// изменения не зафиксированы; доменный исход передаётся через Result.
func (e *Engine) Reconcile(ctx context.Context, transactionID int64) (Result, error) {
	const op = "reconcile.Reconcile"
	hint := e.cachedMember(ctx, e.storedReference(ctx, transactionID))
	res, err := e.process(ctx, transactionID, hint, func(context.Context, storage.Tx) (int64, error) {
		return transactionID, nil
	})
	if err != nil {
		return res, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// locateFunc возвращает идентификатор сверяемой транзакции внутри границы InTx.
type locateFunc func(ctx context.Context, tx storage.Tx) (int64, error)

// process выполняет locate и сверку в одной транзакции хранилища, затем
// обновляет кеш и рассылает события. knownID попадает в Result при сбое.
func (e *Engine) process(ctx context.Context, knownID int64, hint *int64, locate locateFunc) (Result, error) {
	log := e.log.With(slog.String("op", "reconcile.process"))

	var (
		res    Result
		events []models.Event
		toSet  *cacheEntry
	)
	err := e.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		events = nil
		toSet = nil
		transactionID, err := locate(ctx, tx)
		if err != nil {
			return err
		}
		res = Result{TransactionID: transactionID}
		a := &apply{
			Engine: e,
			tx:     tx,
			res:    &res,
			eval:   day.Truncate(e.now()),
		}
		if err := a.run(ctx, transactionID, hint); err != nil {
			return err
		}
		events = a.events
		toSet = a.cacheEntry
		return nil
	})
	if err != nil {
		log.Error("reconciliation failed", slog.Int64("transaction_id", knownID), sl.Err(err))
		metrics.TransactionsReconciled.WithLabelValues(string(OutcomeFailed)).Inc()
		res = Result{TransactionID: knownID}
		res.fail(OutcomeFailed, err)
		return res, err
	}

	log = log.With(slog.Int64("transaction_id", res.TransactionID))
	metrics.TransactionsReconciled.WithLabelValues(string(res.Outcome)).Inc()
	log.Info("transaction reconciled", slog.String("outcome", string(res.Outcome)))

	if toSet != nil && e.cache != nil {
		if err := e.cache.Set(ctx, cache.MemberReferenceKey(toSet.ref), toSet.memberID, e.opts.CacheTTL); err != nil {
			log.Warn("failed to cache member reference", sl.Err(err))
		}
	}
	notify.Dispatch(ctx, e.notifier, log, events)
	return res, nil
}

type cacheEntry struct {
	ref      int64
	memberID int64
}

// storedReference читает ссылочный номер сохранённой транзакции для подсказки из кеша.
func (e *Engine) storedReference(ctx context.Context, transactionID int64) *int64 {
	if e.cache == nil {
		return nil
	}
	var t *models.BankTransaction
	err := e.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		t, err = tx.GetTransaction(ctx, transactionID)
		return err
	})
	if err != nil {
		return nil
	}
	return t.ReferenceNumber
}

// cachedMember ищет участника по ссылочному номеру в кеше до начала транзакции
// хранилища, чтобы в критической секции не было сетевых вызовов к redis.
func (e *Engine) cachedMember(ctx context.Context, ref *int64) *int64 {
	if e.cache == nil || ref == nil {
		return nil
	}
	var memberID int64
	found, err := e.cache.Get(ctx, cache.MemberReferenceKey(*ref), &memberID)
	if err != nil {
		e.log.Warn("member reference cache unavailable", sl.Err(err))
		return nil
	}
	if !found {
		return nil
	}
	return &memberID
}

func validateTransaction(t models.BankTransaction) error {
	if t.Date.IsZero() {
		return models.ValidationError{Field: "date", Message: "is required"}
	}
	if t.Amount <= 0 {
		return models.ValidationError{Field: "amount", Message: "must be positive"}
	}
	if t.ReferenceNumber != nil && !refnum.Validate(*t.ReferenceNumber) {
		return models.ValidationError{Field: "reference_number", Message: "check digit mismatch"}
	}
	return nil
}

// Periods число оплаченных периодов для суммы amount.
// single: любой допустимый платёж покупает один период.
// proportional: floor(min(amount, cost_max) / cost), не меньше одного; при cost = 0 один период.
func Periods(policy string, svc models.MemberService, amount int64) int {
	if policy != config.PolicyProportional || svc.Cost <= 0 {
		return 1
	}
	capped := amount
	if svc.CostMax != nil && capped > *svc.CostMax {
		capped = *svc.CostMax
	}
	return max(1, int(capped/svc.Cost))
}

// IsUnmatched сообщает, что транзакция ждёт ручной проверки.
func IsUnmatched(err error) bool {
	var u models.UnmatchedTransactionError
	return errors.As(err, &u)
}
