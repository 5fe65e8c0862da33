// Package notify доставка событий учёта (предупреждения, истечение оплаты,
// активация, недостаточный платёж) внешнему сервису рассылки.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/metrics"
	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/rabbitmq"
)

// Notifier принимает события после фиксации транзакции.
type Notifier interface {
	Notify(ctx context.Context, event models.Event) error
}

// BrokerNotifier публикует события в обменник notifications с routing key по виду события.
type BrokerNotifier struct {
	ch  rabbitmq.Publisher
	log *slog.Logger
}

func NewBrokerNotifier(ch rabbitmq.Publisher, log *slog.Logger) *BrokerNotifier {
	return &BrokerNotifier{ch: ch, log: log}
}

func (n *BrokerNotifier) Notify(ctx context.Context, event models.Event) error {
	const op = "notify.Notify"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}
	err := rabbitmq.PublishMessage(n.ch, rabbitmq.NotificationsExchange, string(event.Kind), event.EventID, event)
	if err != nil {
		metrics.NotificationsPublished.WithLabelValues(string(event.Kind), "error").Inc()
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.NotificationsPublished.WithLabelValues(string(event.Kind), "ok").Inc()
	n.log.Debug("event published",
		slog.String("event_id", event.EventID),
		slog.String("kind", string(event.Kind)),
		slog.Int64("member_id", event.MemberID))
	return nil
}

// LogNotifier пишет события в лог. Используется без брокера.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, event models.Event) error {
	n.log.Info("notification",
		slog.String("kind", string(event.Kind)),
		slog.Int64("member_id", event.MemberID),
		slog.String("email", event.Email),
		slog.String("service", event.ServiceName))
	metrics.NotificationsPublished.WithLabelValues(string(event.Kind), "logged").Inc()
	return nil
}

// Dispatch отправляет события по одному. Ошибка доставки не отменяет
// уже зафиксированные изменения, поэтому она только логируется.
func Dispatch(ctx context.Context, n Notifier, log *slog.Logger, events []models.Event) {
	for _, e := range events {
		if err := n.Notify(ctx, e); err != nil {
			log.Error("failed to deliver notification",
				slog.String("kind", string(e.Kind)),
				slog.Int64("member_id", e.MemberID),
				sl.Err(err))
		}
	}
}

// NewEvent заполняет событие данными участника и сервиса.
func NewEvent(kind models.EventKind, member models.Member, svc *models.MemberService, sub *models.ServiceSubscription, at time.Time) models.Event {
	e := models.Event{
		EventID:    uuid.NewString(),
		Kind:       kind,
		MemberID:   member.ID,
		Email:      member.Email,
		Name:       member.FullName(),
		OccurredAt: at.UTC(),
	}
	if svc != nil {
		e.ServiceName = svc.Name
	}
	if sub != nil && sub.PaidUntil != nil {
		p := *sub.PaidUntil
		e.PaidUntil = &p
	}
	return e
}
