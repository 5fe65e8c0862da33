package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
)

type tx struct {
	st  *state
	now func() time.Time
}

var _ storage.Tx = (*tx)(nil)

func cloneMember(m models.Member) models.Member {
	m.MXID = clonePtr(m.MXID)
	m.BankAccount = clonePtr(m.BankAccount)
	m.Birthday = clonePtr(m.Birthday)
	m.ReferenceNumber = clonePtr(m.ReferenceNumber)
	m.MarkedForDeletionOn = clonePtr(m.MarkedForDeletionOn)
	return m
}

func cloneService(s models.MemberService) models.MemberService {
	s.CostMin = clonePtr(s.CostMin)
	s.CostMax = clonePtr(s.CostMax)
	s.DaysBeforeWarning = clonePtr(s.DaysBeforeWarning)
	s.PaysAlsoServiceID = clonePtr(s.PaysAlsoServiceID)
	return s
}

func cloneTransaction(t models.BankTransaction) models.BankTransaction {
	t.MemberID = clonePtr(t.MemberID)
	t.ReferenceNumber = clonePtr(t.ReferenceNumber)
	return t
}

func cloneSubscription(s models.ServiceSubscription) models.ServiceSubscription {
	s.PaidUntil = clonePtr(s.PaidUntil)
	s.LastPaymentID = clonePtr(s.LastPaymentID)
	s.LastWarningFor = clonePtr(s.LastWarningFor)
	return s
}

func cloneInvoice(i models.Invoice) models.Invoice {
	i.ReferenceNumber = clonePtr(i.ReferenceNumber)
	i.PaymentTransactionID = clonePtr(i.PaymentTransactionID)
	return i
}

func notFound(op string, id int64) error {
	return fmt.Errorf("%s: id %d: %w", op, id, models.ErrNotFound)
}

func duplicate(op, what string) error {
	return fmt.Errorf("%s: %s: %w", op, what, models.ErrDuplicate)
}

// members

func (t *tx) memberRefTaken(ref int64, except int64) bool {
	for id, m := range t.st.members {
		if id != except && m.ReferenceNumber != nil && *m.ReferenceNumber == ref {
			return true
		}
	}
	return false
}

func (t *tx) CreateMember(_ context.Context, m *models.Member) (int64, error) {
	const op = "memory.CreateMember"
	for _, existing := range t.st.members {
		if existing.Email == m.Email {
			return 0, duplicate(op, "email")
		}
	}
	if m.ReferenceNumber != nil && t.memberRefTaken(*m.ReferenceNumber, 0) {
		return 0, duplicate(op, "reference_number")
	}

	stored := cloneMember(*m)
	stored.ID = t.st.next("members")
	stored.Created = t.now().UTC()
	stored.LastModified = stored.Created
	t.st.members[stored.ID] = stored
	return stored.ID, nil
}

func (t *tx) GetMember(_ context.Context, id int64) (*models.Member, error) {
	m, ok := t.st.members[id]
	if !ok {
		return nil, notFound("memory.GetMember", id)
	}
	m = cloneMember(m)
	return &m, nil
}

func (t *tx) GetMemberByEmail(_ context.Context, email string) (*models.Member, error) {
	for _, m := range t.st.members {
		if m.Email == email {
			m = cloneMember(m)
			return &m, nil
		}
	}
	return nil, fmt.Errorf("memory.GetMemberByEmail: %w", models.ErrNotFound)
}

func (t *tx) GetMemberByReference(_ context.Context, ref int64) (*models.Member, error) {
	for _, m := range t.st.members {
		if m.ReferenceNumber != nil && *m.ReferenceNumber == ref {
			m = cloneMember(m)
			return &m, nil
		}
	}
	return nil, fmt.Errorf("memory.GetMemberByReference: %d: %w", ref, models.ErrNotFound)
}

func (t *tx) SetMemberReference(_ context.Context, id, ref int64) error {
	const op = "memory.SetMemberReference"
	m, ok := t.st.members[id]
	if !ok {
		return notFound(op, id)
	}
	if t.memberRefTaken(ref, id) {
		return duplicate(op, "reference_number")
	}
	m = cloneMember(m)
	m.ReferenceNumber = &ref
	m.LastModified = t.now().UTC()
	t.st.members[id] = m
	return nil
}

func (t *tx) ListMembersWithoutReference(_ context.Context) ([]*models.Member, error) {
	return sortedValues(t.st.members, cloneMember, func(m models.Member) bool {
		return m.ReferenceNumber == nil
	}), nil
}

func (t *tx) MarkMemberForDeletion(_ context.Context, id int64, at time.Time) error {
	m, ok := t.st.members[id]
	if !ok {
		return notFound("memory.MarkMemberForDeletion", id)
	}
	m = cloneMember(m)
	m.MarkedForDeletionOn = &at
	m.LastModified = t.now().UTC()
	t.st.members[id] = m
	return nil
}

func (t *tx) ListMembersMarkedBefore(_ context.Context, before time.Time) ([]*models.Member, error) {
	return sortedValues(t.st.members, cloneMember, func(m models.Member) bool {
		return m.MarkedForDeletionOn != nil && m.MarkedForDeletionOn.Before(before)
	}), nil
}

// DeleteMember повторяет каскады схемы: подписки, журнал и счета удаляются,
// транзакции теряют ссылку на участника.
func (t *tx) DeleteMember(_ context.Context, id int64) error {
	if _, ok := t.st.members[id]; !ok {
		return notFound("memory.DeleteMember", id)
	}
	delete(t.st.members, id)

	for subID, sub := range t.st.subscriptions {
		if sub.MemberID == id {
			t.deleteSubscription(subID)
		}
	}
	for invID, inv := range t.st.invoices {
		if inv.MemberID == id {
			delete(t.st.invoices, invID)
		}
	}
	t.st.logs = slices.DeleteFunc(t.st.logs, func(l models.UsersLog) bool {
		return l.MemberID == id
	})
	for txID, bt := range t.st.transactions {
		if bt.MemberID != nil && *bt.MemberID == id {
			bt = cloneTransaction(bt)
			bt.MemberID = nil
			t.st.transactions[txID] = bt
		}
	}
	return nil
}

// services

func (t *tx) serviceNameTaken(name string, except int64) bool {
	for id, s := range t.st.services {
		if id != except && s.Name == name {
			return true
		}
	}
	return false
}

func (t *tx) CreateService(ctx context.Context, s *models.MemberService) (int64, error) {
	const op = "memory.CreateService"
	candidate := cloneService(*s)
	candidate.ID = 0
	if err := storage.CheckService(ctx, t, &candidate); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if t.serviceNameTaken(s.Name, 0) {
		return 0, duplicate(op, "name")
	}
	candidate.ID = t.st.next("services")
	t.st.services[candidate.ID] = candidate
	return candidate.ID, nil
}

func (t *tx) UpdateService(ctx context.Context, s *models.MemberService) error {
	const op = "memory.UpdateService"
	if _, ok := t.st.services[s.ID]; !ok {
		return notFound(op, s.ID)
	}
	if err := storage.CheckService(ctx, t, s); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if t.serviceNameTaken(s.Name, s.ID) {
		return duplicate(op, "name")
	}
	t.st.services[s.ID] = cloneService(*s)
	return nil
}

func (t *tx) GetService(_ context.Context, id int64) (*models.MemberService, error) {
	s, ok := t.st.services[id]
	if !ok {
		return nil, notFound("memory.GetService", id)
	}
	s = cloneService(s)
	return &s, nil
}

func (t *tx) ListServices(_ context.Context) ([]*models.MemberService, error) {
	return sortedValues(t.st.services, cloneService, nil), nil
}

// transactions

func (t *tx) CreateTransaction(_ context.Context, bt *models.BankTransaction) (int64, error) {
	const op = "memory.CreateTransaction"
	if bt.MemberID != nil {
		if _, ok := t.st.members[*bt.MemberID]; !ok {
			return 0, notFound(op, *bt.MemberID)
		}
	}
	stored := cloneTransaction(*bt)
	if stored.Status == "" {
		stored.Status = models.TxPending
	}
	stored.ID = t.st.next("transactions")
	stored.Created = t.now().UTC()
	t.st.transactions[stored.ID] = stored
	return stored.ID, nil
}

func (t *tx) GetTransaction(_ context.Context, id int64) (*models.BankTransaction, error) {
	bt, ok := t.st.transactions[id]
	if !ok {
		return nil, notFound("memory.GetTransaction", id)
	}
	bt = cloneTransaction(bt)
	return &bt, nil
}

// LockTransaction в памяти равносилен чтению: InTx уже эксклюзивен.
func (t *tx) LockTransaction(ctx context.Context, id int64) (*models.BankTransaction, error) {
	return t.GetTransaction(ctx, id)
}

func (t *tx) SetTransactionResult(_ context.Context, id int64, memberID *int64, status models.TransactionStatus) error {
	const op = "memory.SetTransactionResult"
	bt, ok := t.st.transactions[id]
	if !ok {
		return notFound(op, id)
	}
	if memberID != nil {
		if _, ok := t.st.members[*memberID]; !ok {
			return notFound(op, *memberID)
		}
	}
	bt = cloneTransaction(bt)
	bt.MemberID = clonePtr(memberID)
	bt.Status = status
	t.st.transactions[id] = bt
	return nil
}

func (t *tx) ListTransactionsByStatus(_ context.Context, status models.TransactionStatus, limit, offset int) ([]*models.BankTransaction, error) {
	res := sortedValues(t.st.transactions, cloneTransaction, func(bt models.BankTransaction) bool {
		return bt.Status == status
	})
	slices.SortStableFunc(res, func(a, b *models.BankTransaction) int {
		return a.Date.Compare(b.Date)
	})

	start := min(offset, len(res))
	end := len(res)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return res[start:end], nil
}

func (t *tx) DeleteTransaction(_ context.Context, id int64) error {
	if _, ok := t.st.transactions[id]; !ok {
		return notFound("memory.DeleteTransaction", id)
	}
	delete(t.st.transactions, id)

	for subID, sub := range t.st.subscriptions {
		if sub.LastPaymentID != nil && *sub.LastPaymentID == id {
			sub = cloneSubscription(sub)
			sub.LastPaymentID = nil
			t.st.subscriptions[subID] = sub
		}
	}
	for invID, inv := range t.st.invoices {
		if inv.PaymentTransactionID != nil && *inv.PaymentTransactionID == id {
			inv = cloneInvoice(inv)
			inv.PaymentTransactionID = nil
			t.st.invoices[invID] = inv
		}
	}
	return nil
}

func (t *tx) IsLastPayment(_ context.Context, txID int64) (bool, error) {
	for _, sub := range t.st.subscriptions {
		if sub.LastPaymentID != nil && *sub.LastPaymentID == txID {
			return true, nil
		}
	}
	return false, nil
}

// subscriptions

func (t *tx) GetOrCreateSubscription(_ context.Context, memberID, serviceID int64) (*models.ServiceSubscription, error) {
	const op = "memory.GetOrCreateSubscription"
	for _, sub := range t.st.subscriptions {
		if sub.MemberID == memberID && sub.ServiceID == serviceID {
			sub = cloneSubscription(sub)
			return &sub, nil
		}
	}
	if _, ok := t.st.members[memberID]; !ok {
		return nil, notFound(op, memberID)
	}
	if _, ok := t.st.services[serviceID]; !ok {
		return nil, notFound(op, serviceID)
	}

	sub := models.ServiceSubscription{
		ID:        t.st.next("subscriptions"),
		MemberID:  memberID,
		ServiceID: serviceID,
		State:     models.StateSuspended,
	}
	t.st.subscriptions[sub.ID] = sub
	return &sub, nil
}

func (t *tx) GetSubscription(_ context.Context, id int64) (*models.ServiceSubscription, error) {
	sub, ok := t.st.subscriptions[id]
	if !ok {
		return nil, notFound("memory.GetSubscription", id)
	}
	sub = cloneSubscription(sub)
	return &sub, nil
}

func (t *tx) LockSubscription(ctx context.Context, id int64) (*models.ServiceSubscription, error) {
	return t.GetSubscription(ctx, id)
}

func (t *tx) UpdateSubscription(_ context.Context, sub *models.ServiceSubscription) error {
	const op = "memory.UpdateSubscription"
	existing, ok := t.st.subscriptions[sub.ID]
	if !ok {
		return notFound(op, sub.ID)
	}
	if sub.LastPaymentID != nil {
		if _, ok := t.st.transactions[*sub.LastPaymentID]; !ok {
			return notFound(op, *sub.LastPaymentID)
		}
	}
	stored := cloneSubscription(*sub)
	stored.MemberID = existing.MemberID
	stored.ServiceID = existing.ServiceID
	t.st.subscriptions[sub.ID] = stored
	return nil
}

func (t *tx) ListSubscriptionsByMember(_ context.Context, memberID int64) ([]*models.ServiceSubscription, error) {
	return sortedValues(t.st.subscriptions, cloneSubscription, func(s models.ServiceSubscription) bool {
		return s.MemberID == memberID
	}), nil
}

func (t *tx) ListSubscriptionIDsByState(_ context.Context, state models.SubscriptionState) ([]int64, error) {
	var ids []int64
	for _, sub := range sortedValues(t.st.subscriptions, cloneSubscription, nil) {
		if sub.State == state {
			ids = append(ids, sub.ID)
		}
	}
	return ids, nil
}

func (t *tx) deleteSubscription(id int64) {
	delete(t.st.subscriptions, id)
	for invID, inv := range t.st.invoices {
		if inv.SubscriptionID == id {
			delete(t.st.invoices, invID)
		}
	}
}

// logs

func (t *tx) AppendLog(_ context.Context, memberID int64, message string, at time.Time) error {
	if _, ok := t.st.members[memberID]; !ok {
		return notFound("memory.AppendLog", memberID)
	}
	t.st.logs = append(t.st.logs, models.UsersLog{
		ID:       t.st.next("logs"),
		MemberID: memberID,
		Date:     at.UTC(),
		Message:  models.TruncateLogMessage(message),
	})
	return nil
}

func (t *tx) ListLogs(_ context.Context, memberID int64) ([]*models.UsersLog, error) {
	var res []*models.UsersLog
	for _, l := range t.st.logs {
		if l.MemberID == memberID {
			res = append(res, &l)
		}
	}
	slices.SortStableFunc(res, func(a, b *models.UsersLog) int {
		return a.Date.Compare(b.Date)
	})
	return res, nil
}

// invoices

func (t *tx) invoiceRefTaken(ref int64, except int64) bool {
	for id, inv := range t.st.invoices {
		if id != except && inv.ReferenceNumber != nil && *inv.ReferenceNumber == ref {
			return true
		}
	}
	return false
}

func (t *tx) CreateInvoice(_ context.Context, inv *models.Invoice) (int64, error) {
	const op = "memory.CreateInvoice"
	if _, ok := t.st.members[inv.MemberID]; !ok {
		return 0, notFound(op, inv.MemberID)
	}
	if _, ok := t.st.subscriptions[inv.SubscriptionID]; !ok {
		return 0, notFound(op, inv.SubscriptionID)
	}
	if inv.ReferenceNumber != nil && t.invoiceRefTaken(*inv.ReferenceNumber, 0) {
		return 0, duplicate(op, "reference_number")
	}
	stored := cloneInvoice(*inv)
	stored.ID = t.st.next("invoices")
	stored.Created = t.now().UTC()
	t.st.invoices[stored.ID] = stored
	return stored.ID, nil
}

func (t *tx) GetInvoiceByReference(_ context.Context, ref int64) (*models.Invoice, error) {
	for _, inv := range t.st.invoices {
		if inv.ReferenceNumber != nil && *inv.ReferenceNumber == ref {
			inv = cloneInvoice(inv)
			return &inv, nil
		}
	}
	return nil, fmt.Errorf("memory.GetInvoiceByReference: %d: %w", ref, models.ErrNotFound)
}

func (t *tx) SetInvoiceReference(_ context.Context, id, ref int64) error {
	const op = "memory.SetInvoiceReference"
	inv, ok := t.st.invoices[id]
	if !ok {
		return notFound(op, id)
	}
	if t.invoiceRefTaken(ref, id) {
		return duplicate(op, "reference_number")
	}
	inv = cloneInvoice(inv)
	inv.ReferenceNumber = &ref
	t.st.invoices[id] = inv
	return nil
}

func (t *tx) ListInvoicesWithoutReference(_ context.Context) ([]*models.Invoice, error) {
	return sortedValues(t.st.invoices, cloneInvoice, func(i models.Invoice) bool {
		return i.ReferenceNumber == nil
	}), nil
}

func (t *tx) MarkInvoicePaid(_ context.Context, id, txID int64) error {
	const op = "memory.MarkInvoicePaid"
	inv, ok := t.st.invoices[id]
	if !ok {
		return notFound(op, id)
	}
	if _, ok := t.st.transactions[txID]; !ok {
		return notFound(op, txID)
	}
	inv = cloneInvoice(inv)
	inv.PaymentTransactionID = &txID
	t.st.invoices[id] = inv
	return nil
}
