// Package storage описывает контракт хранилища учёта участников.
// Реализации: repository (PostgreSQL) и memory (в памяти, для разработки и тестов).
package storage

import (
	"context"
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

// Tx набор операций над сущностями внутри одной границы транзакции.
// Методы Lock* блокируют строку до конца транзакции.
type Tx interface {
	CreateMember(ctx context.Context, m *models.Member) (int64, error)
	GetMember(ctx context.Context, id int64) (*models.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (*models.Member, error)
	GetMemberByReference(ctx context.Context, ref int64) (*models.Member, error)
	SetMemberReference(ctx context.Context, id, ref int64) error
	ListMembersWithoutReference(ctx context.Context) ([]*models.Member, error)
	MarkMemberForDeletion(ctx context.Context, id int64, at time.Time) error
	ListMembersMarkedBefore(ctx context.Context, before time.Time) ([]*models.Member, error)
	DeleteMember(ctx context.Context, id int64) error

	CreateService(ctx context.Context, s *models.MemberService) (int64, error)
	UpdateService(ctx context.Context, s *models.MemberService) error
	GetService(ctx context.Context, id int64) (*models.MemberService, error)
	ListServices(ctx context.Context) ([]*models.MemberService, error)

	CreateTransaction(ctx context.Context, t *models.BankTransaction) (int64, error)
	GetTransaction(ctx context.Context, id int64) (*models.BankTransaction, error)
	LockTransaction(ctx context.Context, id int64) (*models.BankTransaction, error)
	SetTransactionResult(ctx context.Context, id int64, memberID *int64, status models.TransactionStatus) error
	ListTransactionsByStatus(ctx context.Context, status models.TransactionStatus, limit, offset int) ([]*models.BankTransaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
	IsLastPayment(ctx context.Context, txID int64) (bool, error)

	GetOrCreateSubscription(ctx context.Context, memberID, serviceID int64) (*models.ServiceSubscription, error)
	GetSubscription(ctx context.Context, id int64) (*models.ServiceSubscription, error)
	LockSubscription(ctx context.Context, id int64) (*models.ServiceSubscription, error)
	UpdateSubscription(ctx context.Context, s *models.ServiceSubscription) error
	ListSubscriptionsByMember(ctx context.Context, memberID int64) ([]*models.ServiceSubscription, error)
	ListSubscriptionIDsByState(ctx context.Context, state models.SubscriptionState) ([]int64, error)

	AppendLog(ctx context.Context, memberID int64, message string, at time.Time) error
	ListLogs(ctx context.Context, memberID int64) ([]*models.UsersLog, error)

	CreateInvoice(ctx context.Context, inv *models.Invoice) (int64, error)
	GetInvoiceByReference(ctx context.Context, ref int64) (*models.Invoice, error)
	SetInvoiceReference(ctx context.Context, id, ref int64) error
	ListInvoicesWithoutReference(ctx context.Context) ([]*models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, id, txID int64) error
}

// TxFunc функция, выполняемая внутри транзакции.
type TxFunc func(ctx context.Context, tx Tx) error

// Store хранилище с транзакционными границами.
// InTx выполняет fn атомарно: при ошибке изменения откатываются.
// View выполняет только чтение без открытия транзакции.
type Store interface {
	InTx(ctx context.Context, fn TxFunc) error
	View(ctx context.Context, fn TxFunc) error
	Close() error
}

// CheckService проверяет инварианты сервиса перед записью: числовые поля
// и цепочку pays_also_service с учётом уже сохранённых сервисов.
func CheckService(ctx context.Context, tx Tx, s *models.MemberService) error {
	if err := s.Validate(); err != nil {
		return err
	}
	existing, err := tx.ListServices(ctx)
	if err != nil {
		return err
	}
	graph := make([]models.MemberService, 0, len(existing)+1)
	for _, e := range existing {
		if e.ID != s.ID {
			graph = append(graph, *e)
		}
	}
	graph = append(graph, *s)
	return models.ValidateServiceGraph(graph)
}
