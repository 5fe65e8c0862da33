package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

// AppendLog добавляет запись в журнал участника. Сообщение обрезается до MaxLogMessageLength.
func (s *Storage) AppendLog(ctx context.Context, memberID int64, message string, at time.Time) error {
	const op = "storage.AppendLog"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO users_log (member_id, date, message) VALUES ($1, $2, $3)`,
		memberID, at, models.TruncateLogMessage(message))
	if err != nil {
		return wrap(op, err)
	}
	return nil
}

func (s *Storage) ListLogs(ctx context.Context, memberID int64) ([]*models.UsersLog, error) {
	const op = "storage.ListLogs"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, member_id, date, message FROM users_log WHERE member_id = $1 ORDER BY date, id`, memberID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.UsersLog
	for rows.Next() {
		var l models.UsersLog
		if err := rows.Scan(&l.ID, &l.MemberID, &l.Date, &l.Message); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		l.Date = l.Date.UTC()
		res = append(res, &l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}
