package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

const invoiceColumns = `id, member_id, subscription_id, days, amount, reference_number, payment_transaction_id, created`

func scanInvoice(row rowScanner) (*models.Invoice, error) {
	var (
		inv      models.Invoice
		ref, txn sql.NullInt64
	)
	err := row.Scan(&inv.ID, &inv.MemberID, &inv.SubscriptionID, &inv.Days, &inv.Amount, &ref, &txn, &inv.Created)
	if err != nil {
		return nil, err
	}
	inv.ReferenceNumber = int64Ptr(ref)
	inv.PaymentTransactionID = int64Ptr(txn)
	return &inv, nil
}

func (s *Storage) CreateInvoice(ctx context.Context, inv *models.Invoice) (int64, error) {
	const op = "storage.CreateInvoice"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO invoices (member_id, subscription_id, days, amount, reference_number)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		inv.MemberID, inv.SubscriptionID, inv.Days, inv.Amount, inv.ReferenceNumber,
	).Scan(&id)
	if err != nil {
		return 0, wrap(op, err)
	}
	return id, nil
}

// GetInvoiceByReference ищет счёт по номеру ссылки с блокировкой строки.
func (s *Storage) GetInvoiceByReference(ctx context.Context, ref int64) (*models.Invoice, error) {
	const op = "storage.GetInvoiceByReference"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	inv, err := scanInvoice(s.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE reference_number = $1 FOR UPDATE`, ref))
	if err != nil {
		return nil, wrap(op, err)
	}
	return inv, nil
}

func (s *Storage) SetInvoiceReference(ctx context.Context, id, ref int64) error {
	const op = "storage.SetInvoiceReference"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `UPDATE invoices SET reference_number = $2 WHERE id = $1`, id, ref)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

func (s *Storage) ListInvoicesWithoutReference(ctx context.Context) ([]*models.Invoice, error) {
	const op = "storage.ListInvoicesWithoutReference"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE reference_number IS NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Storage) MarkInvoicePaid(ctx context.Context, id, txID int64) error {
	const op = "storage.MarkInvoicePaid"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE invoices SET payment_transaction_id = $2 WHERE id = $1`, id, txID)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}
