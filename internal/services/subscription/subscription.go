// Package subscription содержит операции над подписками участников:
// ручную приостановку, периодический обход и удаление помеченных участников.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/cache"
	"github.com/magabrotheeeer/member-ledger/internal/lib/day"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/metrics"
	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/services/notify"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
	substate "github.com/magabrotheeeer/member-ledger/internal/subscription"
)

// SweepReport итог одного обхода подписок.
type SweepReport struct {
	Date      string `json:"date"`
	Evaluated int    `json:"evaluated"`
	Expired   int    `json:"expired"`
	Warned    int    `json:"warned"`
	Failed    int    `json:"failed"`
}

// ReferenceInvalidator сбрасывает закешированное соответствие ссылочного номера.
type ReferenceInvalidator interface {
	Invalidate(ctx context.Context, key string) error
}

// SubscriptionService управляет состоянием подписок вне сверки платежей.
type SubscriptionService struct {
	store         storage.Store
	notifier      notify.Notifier
	refs          ReferenceInvalidator
	log           *slog.Logger
	deletionGrace time.Duration
	now           func() time.Time
}

// NewSubscriptionService создает новый экземпляр SubscriptionService.
func NewSubscriptionService(store storage.Store, notifier notify.Notifier, log *slog.Logger, deletionGrace time.Duration) *SubscriptionService {
	return &SubscriptionService{
		store:         store,
		notifier:      notifier,
		log:           log,
		deletionGrace: deletionGrace,
		now:           time.Now,
	}
}

// WithReferenceCache задаёт кеш ссылочных номеров, из которого убираются
// удалённые участники. nil отключает сброс.
func (s *SubscriptionService) WithReferenceCache(refs ReferenceInvalidator) *SubscriptionService {
	s.refs = refs
	return s
}

// Suspend приостанавливает подписку. Если подписка оплачена на evalDate или уже
// приостановлена, отказ записывается в журнал участника, подписка не меняется
// и возвращается StateConflictError.
func (s *SubscriptionService) Suspend(ctx context.Context, subscriptionID int64, evalDate time.Time) (*models.ServiceSubscription, error) {
	const op = "subscription.Suspend"
	log := s.log.With(slog.String("op", op), slog.Int64("subscription_id", subscriptionID))

	var (
		result   *models.ServiceSubscription
		conflict error
	)
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		conflict = nil
		sub, err := tx.LockSubscription(ctx, subscriptionID)
		if err != nil {
			return err
		}
		svc, err := tx.GetService(ctx, sub.ServiceID)
		if err != nil {
			return err
		}

		if err := substate.CanSuspend(*sub, evalDate); err != nil {
			conflict = err
			result = sub
			return tx.AppendLog(ctx, sub.MemberID,
				fmt.Sprintf("Suspension of %s rejected: %s", svc.Name, conflictReason(err)), s.now())
		}

		prev := sub.State
		sub.State = models.StateSuspended
		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		result = sub
		return tx.AppendLog(ctx, sub.MemberID,
			fmt.Sprintf("%s suspended, state %s -> %s", svc.Name, prev, sub.State), s.now())
	})
	if err != nil {
		log.Error("failed to suspend subscription", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if conflict != nil {
		log.Info("suspension rejected", sl.Err(conflict))
		return result, conflict
	}
	log.Info("subscription suspended")
	return result, nil
}

func conflictReason(err error) string {
	var c models.StateConflictError
	if errors.As(err, &c) {
		return c.Reason
	}
	return err.Error()
}

// Sweep переводит истёкшие подписки в OVERDUE и предупреждает участников,
// чей оплаченный период скоро закончится. Каждая подписка обрабатывается в своей
// транзакции, повторный запуск на ту же дату ничего не меняет.
func (s *SubscriptionService) Sweep(ctx context.Context, evalDate time.Time) (SweepReport, error) {
	const op = "subscription.Sweep"
	log := s.log.With(slog.String("op", op))
	evalDate = day.Truncate(evalDate)
	report := SweepReport{Date: evalDate.Format(day.Layout)}

	var ids []int64
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		ids, err = tx.ListSubscriptionIDsByState(ctx, models.StateActive)
		return err
	})
	if err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return report, fmt.Errorf("%s: %w", op, ctx.Err())
		default:
		}

		report.Evaluated++
		kind, err := s.sweepOne(ctx, id, evalDate)
		switch {
		case err != nil:
			report.Failed++
			log.Error("failed to sweep subscription", slog.Int64("subscription_id", id), sl.Err(err))
		case kind == models.EventExpired:
			report.Expired++
		case kind == models.EventWarning:
			report.Warned++
		}
	}

	log.Info("sweep finished",
		slog.String("date", report.Date),
		slog.Int("evaluated", report.Evaluated),
		slog.Int("expired", report.Expired),
		slog.Int("warned", report.Warned),
		slog.Int("failed", report.Failed))
	return report, nil
}

// sweepOne возвращает вид отправленного события или пустую строку, если ничего не изменилось.
func (s *SubscriptionService) sweepOne(ctx context.Context, id int64, evalDate time.Time) (models.EventKind, error) {
	var event *models.Event
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		event = nil
		sub, err := tx.LockSubscription(ctx, id)
		if err != nil {
			return err
		}
		if sub.State != models.StateActive {
			return nil
		}
		svc, err := tx.GetService(ctx, sub.ServiceID)
		if err != nil {
			return err
		}
		member, err := tx.GetMember(ctx, sub.MemberID)
		if err != nil {
			return err
		}

		var msg string
		var kind models.EventKind
		if next, changed := substate.Expire(*sub, evalDate); changed {
			sub.State = next
			kind = models.EventExpired
			msg = fmt.Sprintf("%s expired, paid until %s, state %s -> %s",
				svc.Name, formatDay(sub.PaidUntil), models.StateActive, next)
		} else if substate.InWarningWindow(*sub, *svc, evalDate) {
			warnedFor := *sub.PaidUntil
			sub.LastWarningFor = &warnedFor
			kind = models.EventWarning
			msg = fmt.Sprintf("%s payment reminder sent, paid until %s", svc.Name, formatDay(sub.PaidUntil))
		} else {
			return nil
		}

		if err := tx.UpdateSubscription(ctx, sub); err != nil {
			return err
		}
		if err := tx.AppendLog(ctx, member.ID, msg, s.now()); err != nil {
			return err
		}
		e := notify.NewEvent(kind, *member, svc, sub, s.now())
		event = &e
		return nil
	})
	if err != nil {
		return "", err
	}
	if event == nil {
		return "", nil
	}
	metrics.SweepTransitions.WithLabelValues(string(event.Kind)).Inc()
	notify.Dispatch(ctx, s.notifier, s.log, []models.Event{*event})
	return event.Kind, nil
}

// CleanupMarked удаляет участников, помеченных на удаление раньше чем
// deletionGrace до now. Подписки, журнал и счета удаляются каскадом.
func (s *SubscriptionService) CleanupMarked(ctx context.Context, now time.Time) (int, error) {
	const op = "subscription.CleanupMarked"
	log := s.log.With(slog.String("op", op))

	var marked []*models.Member
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		marked, err = tx.ListMembersMarkedBefore(ctx, now.Add(-s.deletionGrace))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	deleted := 0
	for _, m := range marked {
		err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.DeleteMember(ctx, m.ID)
		})
		if err != nil {
			log.Error("failed to delete member", slog.Int64("member_id", m.ID), sl.Err(err))
			continue
		}
		deleted++
		metrics.SweepTransitions.WithLabelValues("deleted").Inc()
		log.Info("member deleted", slog.Int64("member_id", m.ID))

		if s.refs != nil && m.ReferenceNumber != nil {
			if err := s.refs.Invalidate(ctx, cache.MemberReferenceKey(*m.ReferenceNumber)); err != nil {
				log.Warn("failed to invalidate member reference", slog.Int64("member_id", m.ID), sl.Err(err))
			}
		}
	}
	return deleted, nil
}

func formatDay(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(day.Layout)
}
