package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/lib/day"
	"github.com/magabrotheeeer/member-ledger/internal/lib/refnum"
	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/services/notify"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
	"github.com/magabrotheeeer/member-ledger/internal/subscription"
)

// apply состояние одной сверки внутри транзакции хранилища.
type apply struct {
	*Engine
	tx         storage.Tx
	res        *Result
	eval       time.Time
	events     []models.Event
	cacheEntry *cacheEntry
}

func (a *apply) run(ctx context.Context, transactionID int64, hint *int64) error {
	t, err := a.tx.LockTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	if t.Status.Final() {
		return a.skip(t)
	}
	applied, err := a.tx.IsLastPayment(ctx, t.ID)
	if err != nil {
		return err
	}
	if applied {
		return a.skip(t)
	}

	if t.ReferenceNumber == nil || !refnum.Validate(*t.ReferenceNumber) {
		return a.unmatched(ctx, t)
	}
	ref := *t.ReferenceNumber

	member, err := a.resolveMember(ctx, ref, hint)
	switch {
	case err == nil:
		return a.memberPayment(ctx, t, member)
	case !models.IsNotFound(err):
		return err
	}

	inv, err := a.tx.GetInvoiceByReference(ctx, ref)
	if models.IsNotFound(err) {
		return a.unmatched(ctx, t)
	}
	if err != nil {
		return err
	}
	if inv.Paid() {
		// Повторная оплата уже закрытого счёта разбирается вручную.
		return a.unmatched(ctx, t)
	}
	return a.invoicePayment(ctx, t, inv)
}

func (a *apply) skip(t *models.BankTransaction) error {
	a.res.Outcome = OutcomeSkipped
	a.res.MemberID = t.MemberID
	return nil
}

func (a *apply) unmatched(ctx context.Context, t *models.BankTransaction) error {
	if err := a.tx.SetTransactionResult(ctx, t.ID, nil, models.TxUnmatched); err != nil {
		return err
	}
	a.res.fail(OutcomeUnmatched, models.UnmatchedTransactionError{
		TransactionID: t.ID,
		Reference:     t.ReferenceNumber,
	})
	return nil
}

// resolveMember проверяет подсказку из кеша по базе и при расхождении ищет по номеру.
func (a *apply) resolveMember(ctx context.Context, ref int64, hint *int64) (*models.Member, error) {
	if hint != nil {
		m, err := a.tx.GetMember(ctx, *hint)
		if err == nil && m.ReferenceNumber != nil && *m.ReferenceNumber == ref {
			return m, nil
		}
		if err != nil && !models.IsNotFound(err) {
			return nil, err
		}
	}
	m, err := a.tx.GetMemberByReference(ctx, ref)
	if err != nil {
		return nil, err
	}
	a.cacheEntry = &cacheEntry{ref: ref, memberID: m.ID}
	return m, nil
}

// serviceFor выбирает сервис, который оплачивает членский ссылочный номер.
func (a *apply) serviceFor(m *models.Member) int64 {
	if m.MembershipPlan == models.PlanAccessRights && a.opts.AccessRightsServiceID != 0 {
		return a.opts.AccessRightsServiceID
	}
	return a.opts.DefaultServiceID
}

func (a *apply) memberPayment(ctx context.Context, t *models.BankTransaction, member *models.Member) error {
	svc, err := a.tx.GetService(ctx, a.serviceFor(member))
	if err != nil {
		return fmt.Errorf("payment service for %s: %w", member.Email, err)
	}
	sub, err := a.tx.GetOrCreateSubscription(ctx, member.ID, svc.ID)
	if err != nil {
		return err
	}

	minimum := svc.MinimumPayment()
	if t.Amount < minimum {
		return a.insufficient(ctx, t, member, svc, minimum)
	}

	days := Periods(a.opts.PeriodPolicy, *svc, t.Amount) * svc.DaysPerPayment
	if sub.PaidUntil == nil {
		days += svc.DaysBonusForFirst
	}
	if err := a.extend(ctx, t, member, svc, sub, days, ""); err != nil {
		return err
	}
	return a.finish(ctx, t, member, svc, sub)
}

func (a *apply) invoicePayment(ctx context.Context, t *models.BankTransaction, inv *models.Invoice) error {
	member, err := a.tx.GetMember(ctx, inv.MemberID)
	if err != nil {
		return err
	}
	sub, err := a.tx.LockSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return err
	}
	svc, err := a.tx.GetService(ctx, sub.ServiceID)
	if err != nil {
		return err
	}

	if t.Amount < inv.Amount {
		return a.insufficient(ctx, t, member, svc, inv.Amount)
	}
	if err := a.extend(ctx, t, member, svc, sub, inv.Days, fmt.Sprintf("invoice %d", inv.ID)); err != nil {
		return err
	}
	if err := a.tx.MarkInvoicePaid(ctx, inv.ID, t.ID); err != nil {
		return err
	}
	return a.finish(ctx, t, member, svc, sub)
}

// finish продлевает цепочку pays_also_service и помечает транзакцию зачтённой.
func (a *apply) finish(ctx context.Context, t *models.BankTransaction, member *models.Member, svc *models.MemberService, sub *models.ServiceSubscription) error {
	if err := a.chain(ctx, t, member, svc); err != nil {
		return err
	}
	if err := a.tx.SetTransactionResult(ctx, t.ID, &member.ID, models.TxApplied); err != nil {
		return err
	}
	a.res.Outcome = OutcomeApplied
	a.res.MemberID = &member.ID
	a.res.PaidUntil = sub.PaidUntil
	return nil
}

func (a *apply) insufficient(ctx context.Context, t *models.BankTransaction, member *models.Member, svc *models.MemberService, minimum int64) error {
	if err := a.tx.SetTransactionResult(ctx, t.ID, &member.ID, models.TxInsufficient); err != nil {
		return err
	}
	msg := fmt.Sprintf("Insufficient payment %s on %s for %s, minimum is %s; coverage not extended",
		money(t.Amount), t.Date.Format(day.Layout), svc.Name, money(minimum))
	if err := a.tx.AppendLog(ctx, member.ID, msg, a.now()); err != nil {
		return err
	}
	a.events = append(a.events, notify.NewEvent(models.EventInsufficient, *member, svc, nil, a.now()))
	a.res.MemberID = &member.ID
	a.res.fail(OutcomeInsufficient, models.InsufficientPaymentError{
		TransactionID: t.ID,
		Amount:        t.Amount,
		Minimum:       minimum,
	})
	return nil
}

// extend продлевает подписку на days дней от max(paid_until, даты платежа).
func (a *apply) extend(ctx context.Context, t *models.BankTransaction, member *models.Member, svc *models.MemberService, sub *models.ServiceSubscription, days int, via string) error {
	prev := sub.State
	paidUntil := day.Extend(sub.PaidUntil, t.Date, days)
	sub.PaidUntil = &paidUntil
	sub.LastPaymentID = &t.ID
	sub.State = subscription.ApplyPayment(sub.PaidUntil, a.eval)
	if err := a.tx.UpdateSubscription(ctx, sub); err != nil {
		return err
	}

	msg := fmt.Sprintf("Payment %s on %s: %s paid until %s (+%d days)",
		money(t.Amount), t.Date.Format(day.Layout), svc.Name, paidUntil.Format(day.Layout), days)
	if via != "" {
		msg += ", " + via
	}
	if prev != sub.State {
		msg += fmt.Sprintf(", state %s -> %s", prev, sub.State)
	}
	if err := a.tx.AppendLog(ctx, member.ID, msg, a.now()); err != nil {
		return err
	}
	if sub.State == models.StateActive && prev != models.StateActive {
		a.events = append(a.events, notify.NewEvent(models.EventActivated, *member, svc, sub, a.now()))
	}
	return nil
}

// chain продлевает связанные сервисы на их собственный days_per_payment.
// Глубина цепочки ограничена при записи сервиса, здесь дополнительно MaxChainDepth.
func (a *apply) chain(ctx context.Context, t *models.BankTransaction, member *models.Member, paid *models.MemberService) error {
	next := paid.PaysAlsoServiceID
	for depth := 0; next != nil && depth < models.MaxChainDepth; depth++ {
		svc, err := a.tx.GetService(ctx, *next)
		if err != nil {
			return err
		}
		sub, err := a.tx.GetOrCreateSubscription(ctx, member.ID, svc.ID)
		if err != nil {
			return err
		}
		if err := a.extend(ctx, t, member, svc, sub, svc.DaysPerPayment, "included in "+paid.Name); err != nil {
			return err
		}
		next = svc.PaysAlsoServiceID
	}
	return nil
}

func money(cents int64) string {
	return fmt.Sprintf("%d.%02d€", cents/100, cents%100)
}
