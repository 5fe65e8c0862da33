// Package subscription описывает переходы состояний подписки ACTIVE / OVERDUE / SUSPENDED.
// Функции чистые: дата оценки передаётся явно, хранилище не используется.
package subscription

import (
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/lib/day"
	"github.com/magabrotheeeer/member-ledger/internal/models"
)

// Covered сообщает, оплачена ли подписка на дату evalDate включительно.
func Covered(paidUntil *time.Time, evalDate time.Time) bool {
	return paidUntil != nil && !day.Truncate(*paidUntil).Before(day.Truncate(evalDate))
}

// ApplyPayment возвращает состояние после зачтённого платежа.
// Платёж снимает приостановку: если оплаченный период уже истёк, подписка OVERDUE.
func ApplyPayment(paidUntil *time.Time, evalDate time.Time) models.SubscriptionState {
	if Covered(paidUntil, evalDate) {
		return models.StateActive
	}
	return models.StateOverdue
}

// Expire переводит ACTIVE в OVERDUE на следующий день после paid_until.
// Второе значение true, если переход произошёл.
func Expire(sub models.ServiceSubscription, evalDate time.Time) (models.SubscriptionState, bool) {
	if sub.State != models.StateActive || Covered(sub.PaidUntil, evalDate) {
		return sub.State, false
	}
	return models.StateOverdue, true
}

// CanSuspend проверяет ручную приостановку. Подписку с оплатой в будущем
// приостановить нельзя, частичной приостановки нет.
func CanSuspend(sub models.ServiceSubscription, evalDate time.Time) error {
	conflict := models.StateConflictError{
		SubscriptionID: sub.ID,
		From:           sub.State,
		To:             models.StateSuspended,
		PaidUntil:      sub.PaidUntil,
	}
	if sub.State == models.StateSuspended {
		conflict.Reason = "already suspended"
		return conflict
	}
	if Covered(sub.PaidUntil, evalDate) {
		conflict.Reason = "paid until " + sub.PaidUntil.Format(day.Layout)
		return conflict
	}
	return nil
}

// InWarningWindow сообщает, что участника пора предупредить об окончании оплаты:
// paid_until - days_before_warning <= evalDate <= paid_until, и по этому paid_until
// предупреждение ещё не отправлялось.
func InWarningWindow(sub models.ServiceSubscription, svc models.MemberService, evalDate time.Time) bool {
	if sub.State != models.StateActive || sub.PaidUntil == nil || svc.DaysBeforeWarning == nil {
		return false
	}
	paidUntil := day.Truncate(*sub.PaidUntil)
	if sub.LastWarningFor != nil && day.Truncate(*sub.LastWarningFor).Equal(paidUntil) {
		return false
	}
	eval := day.Truncate(evalDate)
	from := paidUntil.AddDate(0, 0, -*svc.DaysBeforeWarning)
	return !eval.Before(from) && !eval.After(paidUntil)
}
