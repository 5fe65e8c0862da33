// Package scheduler периодически запускает обход подписок и очистку
// участников, помеченных на удаление.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/lib/day"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	subservice "github.com/magabrotheeeer/member-ledger/internal/services/subscription"
)

type SubscriptionService interface {
	Sweep(ctx context.Context, evalDate time.Time) (subservice.SweepReport, error)
	CleanupMarked(ctx context.Context, now time.Time) (int, error)
}

type SchedulerService struct {
	subs     SubscriptionService
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewSchedulerService создает новый экземпляр SchedulerService.
func NewSchedulerService(subs SubscriptionService, interval time.Duration, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		subs:     subs,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

// Run выполняет проход сразу и затем раз в interval, пока ctx не отменён.
func (s *SchedulerService) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce обходит подписки на сегодняшнюю дату и удаляет участников,
// у которых истёк срок ожидания удаления. Ошибки только логируются,
// следующий проход повторит работу.
func (s *SchedulerService) RunOnce(ctx context.Context) {
	now := s.now()
	today := day.Truncate(now)

	s.log.Info("starting subscription sweep", slog.String("date", today.Format(time.DateOnly)))
	report, err := s.subs.Sweep(ctx, today)
	if err != nil {
		s.log.Error("subscription sweep interrupted", sl.Err(err))
	}
	s.log.Info("subscription sweep finished",
		slog.Int("evaluated", report.Evaluated),
		slog.Int("expired", report.Expired),
		slog.Int("warned", report.Warned),
		slog.Int("failed", report.Failed))

	if ctx.Err() != nil {
		return
	}

	removed, err := s.subs.CleanupMarked(ctx, now)
	if err != nil {
		s.log.Error("failed to remove marked members", sl.Err(err))
		return
	}
	if removed > 0 {
		s.log.Info("marked members removed", slog.Int("count", removed))
	}
}
