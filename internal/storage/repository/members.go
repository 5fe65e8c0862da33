package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

const memberColumns = `id, email, first_name, last_name, nick, municipality, phone, mxid,
	bank_account, birthday, membership_plan, reference_number, created, last_modified, marked_for_deletion_on`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	var (
		m                  models.Member
		mxid, bankAccount  sql.NullString
		birthday, markedOn sql.NullTime
		ref                sql.NullInt64
		plan               string
	)
	err := row.Scan(&m.ID, &m.Email, &m.FirstName, &m.LastName, &m.Nick, &m.Municipality, &m.Phone,
		&mxid, &bankAccount, &birthday, &plan, &ref, &m.Created, &m.LastModified, &markedOn)
	if err != nil {
		return nil, err
	}
	m.MXID = stringPtr(mxid)
	m.BankAccount = stringPtr(bankAccount)
	m.Birthday = timePtr(birthday)
	m.MembershipPlan = models.MembershipPlan(plan)
	m.ReferenceNumber = int64Ptr(ref)
	m.MarkedForDeletionOn = timePtr(markedOn)
	return &m, nil
}

func (s *Storage) queryMembers(ctx context.Context, op, query string, args ...any) ([]*models.Member, error) {
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var res []*models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return res, nil
}

// CreateMember сохраняет участника. Дубликат email или номера ссылки даёт ErrDuplicate.
func (s *Storage) CreateMember(ctx context.Context, m *models.Member) (int64, error) {
	const op = "storage.CreateMember"
	if err := checkCtx(ctx, op); err != nil {
		return 0, err
	}

	var id int64
	err := s.q.QueryRowContext(ctx, `
		INSERT INTO members (email, first_name, last_name, nick, municipality, phone, mxid,
			bank_account, birthday, membership_plan, reference_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		m.Email, m.FirstName, m.LastName, m.Nick, m.Municipality, m.Phone, m.MXID,
		m.BankAccount, m.Birthday, string(m.MembershipPlan), m.ReferenceNumber,
	).Scan(&id)
	if err != nil {
		return 0, wrap(op, err)
	}
	return id, nil
}

func (s *Storage) GetMember(ctx context.Context, id int64) (*models.Member, error) {
	const op = "storage.GetMember"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	m, err := scanMember(s.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = $1`, id))
	if err != nil {
		return nil, wrap(op, err)
	}
	return m, nil
}

func (s *Storage) GetMemberByEmail(ctx context.Context, email string) (*models.Member, error) {
	const op = "storage.GetMemberByEmail"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	m, err := scanMember(s.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE email = $1`, email))
	if err != nil {
		return nil, wrap(op, err)
	}
	return m, nil
}

func (s *Storage) GetMemberByReference(ctx context.Context, ref int64) (*models.Member, error) {
	const op = "storage.GetMemberByReference"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	m, err := scanMember(s.q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE reference_number = $1`, ref))
	if err != nil {
		return nil, wrap(op, err)
	}
	return m, nil
}

// SetMemberReference присваивает номер ссылки. Занятый номер даёт ErrDuplicate.
func (s *Storage) SetMemberReference(ctx context.Context, id, ref int64) error {
	const op = "storage.SetMemberReference"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE members SET reference_number = $2, last_modified = now() WHERE id = $1`, id, ref)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

func (s *Storage) ListMembersWithoutReference(ctx context.Context) ([]*models.Member, error) {
	const op = "storage.ListMembersWithoutReference"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	return s.queryMembers(ctx, op,
		`SELECT `+memberColumns+` FROM members WHERE reference_number IS NULL ORDER BY id`)
}

func (s *Storage) MarkMemberForDeletion(ctx context.Context, id int64, at time.Time) error {
	const op = "storage.MarkMemberForDeletion"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx,
		`UPDATE members SET marked_for_deletion_on = $2, last_modified = now() WHERE id = $1`, id, at)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}

func (s *Storage) ListMembersMarkedBefore(ctx context.Context, before time.Time) ([]*models.Member, error) {
	const op = "storage.ListMembersMarkedBefore"
	if err := checkCtx(ctx, op); err != nil {
		return nil, err
	}
	return s.queryMembers(ctx, op,
		`SELECT `+memberColumns+` FROM members
		WHERE marked_for_deletion_on IS NOT NULL AND marked_for_deletion_on < $1 ORDER BY id`, before)
}

// DeleteMember удаляет участника. Подписки, журнал и счета удаляются каскадно,
// у транзакций ссылка на участника обнуляется.
func (s *Storage) DeleteMember(ctx context.Context, id int64) error {
	const op = "storage.DeleteMember"
	if err := checkCtx(ctx, op); err != nil {
		return err
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM members WHERE id = $1`, id)
	if err != nil {
		return wrap(op, err)
	}
	return affected(op, res)
}
