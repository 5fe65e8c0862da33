package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

const transactionColumns = `id, member_id, date, amount, message, sender, reference_number, status, created`

func scanTransaction(row rowScanner) (*models.BankTransaction, error) {
	var (
		t             models.BankTransaction
		memberID, ref sql.NullInt64
		status        string
	)
	err := row.Scan(&t.ID, &memberID, &t.Date, &t.Amount, &t.Message, &t.Sender, &ref, &status, &t.Created)
	if err != nil {
		return nil, err
	}
	t.MemberID = int64Ptr(memberID)
	t.ReferenceNumber = int64Ptr(ref)
	t.Status = models.TransactionStatus(status)
	t.Date = t.Date.UTC()
	return &t, nil
}

func (s *Storage) CreateTransaction(ctx context.Context, t *models.BankTransaction) (int64, error) {
	const op = "storage.CreateTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	status := t.Status
	if status == "" {
		status = models.TxPending
	}

	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO bank_transactions (member_id, date, amount, message, sender, reference_number, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		t.MemberID, t.Date, t.Amount, t.Message, t.Sender, t.ReferenceNumber, string(status),
	).Scan(&id)
	if err != nil {
		return 0, wrap(op, err)
	}
	return id, nil
}

func (s *Storage) GetTransaction(ctx context.Context, id int64) (*models.BankTransaction, error) {
	const op = "storage.GetTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	t, err := scanTransaction(s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM bank_transactions WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return t, nil
}

// LockTransaction читает транзакцию с блокировкой строки до конца транзакции БД,
// чтобы параллельная сверка одной и той же записи выполнялась последовательно.
func (s *Storage) LockTransaction(ctx context.Context, id int64) (*models.BankTransaction, error) {
	const op = "storage.LockTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	t, err := scanTransaction(s.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM bank_transactions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return t, nil
}

func (s *Storage) SetTransactionResult(ctx context.Context, id int64, memberID *int64, status models.TransactionStatus) error {
	const op = "storage.SetTransactionResult"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE bank_transactions SET member_id = $2, status = $3 WHERE id = $1`,
		id, memberID, string(status))
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

// ListTransactionsByStatus возвращает страницу транзакций по статусу; limit 0 снимает ограничение.
func (s *Storage) ListTransactionsByStatus(ctx context.Context, status models.TransactionStatus, limit, offset int) ([]*models.BankTransaction, error) {
	const op = "storage.ListTransactionsByStatus"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM bank_transactions
		WHERE status = $1 ORDER BY date, id LIMIT NULLIF($2::int, 0) OFFSET $3`,
		string(status), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.BankTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// DeleteTransaction удаляет транзакцию; last_payment подписок и оплата счетов обнуляются.
func (s *Storage) DeleteTransaction(ctx context.Context, id int64) error {
	const op = "storage.DeleteTransaction"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM bank_transactions WHERE id = $1`, id)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

// IsLastPayment сообщает, является ли транзакция last_payment какой-либо подписки.
func (s *Storage) IsLastPayment(ctx context.Context, txID int64) (bool, error) {
	const op = "storage.IsLastPayment"
	if err := checkCtx(ctx, op); err != nil {
		return false, err
	}
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM service_subscriptions WHERE last_payment_id = $1)`, txID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}
