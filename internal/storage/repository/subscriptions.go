package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

const subscriptionColumns = `id, member_id, service_id, state, paid_until, last_payment_id, last_warning_for`

func scanSubscription(row rowScanner) (*models.ServiceSubscription, error) {
	var (
		sub                  models.ServiceSubscription
		state                string
		paidUntil, warnedFor sql.NullTime
		lastPayment          sql.NullInt64
	)
	err := row.Scan(&sub.ID, &sub.MemberID, &sub.ServiceID, &state, &paidUntil, &lastPayment, &warnedFor)
	if err != nil {
		return nil, err
	}
	sub.State = models.SubscriptionState(state)
	sub.PaidUntil = timePtr(paidUntil)
	sub.LastPaymentID = int64Ptr(lastPayment)
	sub.LastWarningFor = timePtr(warnedFor)
	return &sub, nil
}

// GetOrCreateSubscription возвращает подписку участника на сервис, создавая её
// при отсутствии. Строка блокируется до конца транзакции.
func (s *Storage) GetOrCreateSubscription(ctx context.Context, memberID, serviceID int64) (*models.ServiceSubscription, error) {
	const op = "storage.GetOrCreateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO service_subscriptions (member_id, service_id, state)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id, service_id) DO NOTHING`,
		memberID, serviceID, string(models.StateSuspended))
	if err != nil {
		return nil, wrap(op, err)
	}
	sub, err := scanSubscription(s.q.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM service_subscriptions
		WHERE member_id = $1 AND service_id = $2 FOR UPDATE`, memberID, serviceID))
	if err != nil {
		return nil, wrap(op, err)
	}
	return sub, nil
}

func (s *Storage) GetSubscription(ctx context.Context, id int64) (*models.ServiceSubscription, error) {
	const op = "storage.GetSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	sub, err := scanSubscription(s.q.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM service_subscriptions WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return sub, nil
}

func (s *Storage) LockSubscription(ctx context.Context, id int64) (*models.ServiceSubscription, error) {
	const op = "storage.LockSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	sub, err := scanSubscription(s.q.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM service_subscriptions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return sub, nil
}

func (s *Storage) UpdateSubscription(ctx context.Context, sub *models.ServiceSubscription) error {
	const op = "storage.UpdateSubscription"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE service_subscriptions
		SET state = $2, paid_until = $3, last_payment_id = $4, last_warning_for = $5
		WHERE id = $1`,
		sub.ID, string(sub.State), sub.PaidUntil, sub.LastPaymentID, sub.LastWarningFor)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

func (s *Storage) ListSubscriptionsByMember(ctx context.Context, memberID int64) ([]*models.ServiceSubscription, error) {
	const op = "storage.ListSubscriptionsByMember"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM service_subscriptions WHERE member_id = $1 ORDER BY id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.ServiceSubscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

func (s *Storage) ListSubscriptionIDsByState(ctx context.Context, state models.SubscriptionState) ([]int64, error) {
	const op = "storage.ListSubscriptionIDsByState"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT id FROM service_subscriptions WHERE state = $1 ORDER BY id`, string(state))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}
