package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
)

const serviceColumns = `id, name, cost, cost_min, cost_max, days_per_payment, days_bonus_for_first,
	days_before_warning, pays_also_service_id, hidden, self_subscribe`

func scanService(row rowScanner) (*models.MemberService, error) {
	var (
		svc                    models.MemberService
		costMin, costMax, pays sql.NullInt64
		warning                sql.NullInt32
	)
	err := row.Scan(&svc.ID, &svc.Name, &svc.Cost, &costMin, &costMax, &svc.DaysPerPayment,
		&svc.DaysBonusForFirst, &warning, &pays, &svc.Hidden, &svc.SelfSubscribe)
	if err != nil {
		return nil, err
	}
	svc.CostMin = int64Ptr(costMin)
	svc.CostMax = int64Ptr(costMax)
	svc.DaysBeforeWarning = intPtr(warning)
	svc.PaysAlsoServiceID = int64Ptr(pays)
	return &svc, nil
}

// CreateService проверяет сервис и цепочку pays_also_service, затем сохраняет его.
func (s *Storage) CreateService(ctx context.Context, svc *models.MemberService) (int64, error) {
	const op = "storage.CreateService"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}
	if err := storage.CheckService(ctx, s, svc); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO member_services (name, cost, cost_min, cost_max, days_per_payment,
			days_bonus_for_first, days_before_warning, pays_also_service_id, hidden, self_subscribe)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		svc.Name, svc.Cost, svc.CostMin, svc.CostMax, svc.DaysPerPayment,
		svc.DaysBonusForFirst, svc.DaysBeforeWarning, svc.PaysAlsoServiceID, svc.Hidden, svc.SelfSubscribe,
	).Scan(&id)
	if err != nil {
		return 0, wrap(op, err)
	}
	return id, nil
}

func (s *Storage) UpdateService(ctx context.Context, svc *models.MemberService) error {
	const op = "storage.UpdateService"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	if err := storage.CheckService(ctx, s, svc); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.q.ExecContext(ctx, `
		UPDATE member_services SET name = $2, cost = $3, cost_min = $4, cost_max = $5,
			days_per_payment = $6, days_bonus_for_first = $7, days_before_warning = $8,
			pays_also_service_id = $9, hidden = $10, self_subscribe = $11
		WHERE id = $1`,
		svc.ID, svc.Name, svc.Cost, svc.CostMin, svc.CostMax, svc.DaysPerPayment,
		svc.DaysBonusForFirst, svc.DaysBeforeWarning, svc.PaysAlsoServiceID, svc.Hidden, svc.SelfSubscribe,
	)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

func (s *Storage) GetService(ctx context.Context, id int64) (*models.MemberService, error) {
	const op = "storage.GetService"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	svc, err := scanService(s.q.QueryRowContext(ctx,
		`SELECT `+serviceColumns+` FROM member_services WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return svc, nil
}

func (s *Storage) ListServices(ctx context.Context) ([]*models.MemberService, error) {
	const op = "storage.ListServices"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx, `SELECT `+serviceColumns+` FROM member_services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.MemberService
	for rows.Next() {
		svc, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, svc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}
