// Package member администрирование участников, счетов и сервисов:
// создание с назначением ссылочного номера, подписки, пометка на удаление.
package member

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/member-ledger/internal/config"
	"github.com/magabrotheeeer/member-ledger/internal/lib/refnum"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/metrics"
	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
)

const birthdayLayout = "02.01.2006"

// BackfillReport итог назначения недостающих ссылочных номеров.
type BackfillReport struct {
	Members  int `json:"members"`
	Invoices int `json:"invoices"`
	Failed   int `json:"failed"`
}

// MemberService реализует операции администратора над участниками.
type MemberService struct {
	store    storage.Store
	refs     config.References
	log      *slog.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewMemberService создает новый экземпляр MemberService.
func NewMemberService(store storage.Store, refs config.References, log *slog.Logger) *MemberService {
	return &MemberService{
		store:    store,
		refs:     refs,
		log:      log,
		validate: validator.New(),
		now:      time.Now,
	}
}

// CreateMember сохраняет участника и назначает ему ссылочный номер.
// Если все попытки назначения упёрлись в занятые номера, участник остаётся
// без номера до BackfillReferences, возвращаются и участник, и ошибка.
func (s *MemberService) CreateMember(ctx context.Context, req models.DummyMember) (*models.Member, error) {
	const op = "member.CreateMember"
	log := s.log.With(slog.String("op", op))

	m, err := s.memberFromRequest(req)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		id, err := tx.CreateMember(ctx, m)
		if err != nil {
			return err
		}
		m.ID = id
		return tx.AppendLog(ctx, id, fmt.Sprintf("Member created with plan %s", m.MembershipPlan), s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("member created", slog.Int64("member_id", m.ID))

	ref, err := s.assignReference(ctx, s.refs.MemberBase, m.ID, func(ctx context.Context, tx storage.Tx, ref int64) error {
		if err := tx.SetMemberReference(ctx, m.ID, ref); err != nil {
			return err
		}
		return tx.AppendLog(ctx, m.ID, "Reference number "+refnum.Format(ref)+" assigned", s.now())
	})
	if err != nil {
		log.Warn("member left without reference number", slog.Int64("member_id", m.ID), sl.Err(err))
		return m, fmt.Errorf("%s: %w", op, err)
	}
	m.ReferenceNumber = &ref
	return m, nil
}

func (s *MemberService) memberFromRequest(req models.DummyMember) (*models.Member, error) {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, models.ValidationError{
				Field:   strings.ToLower(verrs[0].Field()),
				Message: "failed on " + verrs[0].Tag(),
			}
		}
		return nil, err
	}

	m := &models.Member{
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Nick:           req.Nick,
		Municipality:   req.Municipality,
		Phone:          req.Phone,
		MembershipPlan: models.MembershipPlan(req.MembershipPlan),
	}
	if req.MXID != "" {
		m.MXID = &req.MXID
	}
	if req.BankAccount != "" {
		m.BankAccount = &req.BankAccount
	}
	if req.Birthday != "" {
		b, err := time.Parse(birthdayLayout, req.Birthday)
		if err != nil {
			return nil, models.ValidationError{Field: "birthday", Message: "must be DD.MM.YYYY"}
		}
		m.Birthday = &b
	}
	return m, nil
}

// assignReference подбирает номер Generate(base + id + attempt*stride), пока set
// не перестанет возвращать ErrDuplicate. Каждая попытка идёт в своей транзакции.
// Номер, занятый участником или счётом, считается занятым для обеих таблиц:
// при больших id диапазоны участников и счетов пересекаются.
func (s *MemberService) assignReference(ctx context.Context, base, id int64, set func(ctx context.Context, tx storage.Tx, ref int64) error) (int64, error) {
	var lastErr error
	for attempt := range s.refs.MaxRetries {
		ref, err := refnum.Generate(base + id + int64(attempt)*s.refs.RetryStride)
		if err != nil {
			return 0, err
		}
		err = s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			if err := referenceFree(ctx, tx, ref); err != nil {
				return err
			}
			return set(ctx, tx, ref)
		})
		if err == nil {
			return ref, nil
		}
		if !models.IsDuplicate(err) {
			return 0, err
		}
		metrics.ReferenceCollisions.Inc()
		s.log.Debug("reference number taken, retrying",
			slog.Int64("reference", ref), slog.Int("attempt", attempt+1))
		lastErr = err
	}
	return 0, fmt.Errorf("no free reference after %d attempts: %w", s.refs.MaxRetries, lastErr)
}

func referenceFree(ctx context.Context, tx storage.Tx, ref int64) error {
	_, err := tx.GetMemberByReference(ctx, ref)
	if err == nil {
		return fmt.Errorf("reference %d held by member: %w", ref, models.ErrDuplicate)
	}
	if !models.IsNotFound(err) {
		return err
	}
	_, err = tx.GetInvoiceByReference(ctx, ref)
	if err == nil {
		return fmt.Errorf("reference %d held by invoice: %w", ref, models.ErrDuplicate)
	}
	if !models.IsNotFound(err) {
		return err
	}
	return nil
}

// CreateInvoice выставляет участнику счёт на продление сервиса serviceID на days дней.
func (s *MemberService) CreateInvoice(ctx context.Context, memberID, serviceID int64, days int, amount int64) (*models.Invoice, error) {
	const op = "member.CreateInvoice"
	if days <= 0 {
		return nil, models.ValidationError{Field: "days", Message: "must be positive"}
	}
	if amount <= 0 {
		return nil, models.ValidationError{Field: "amount", Message: "must be positive"}
	}

	inv := &models.Invoice{MemberID: memberID, Days: days, Amount: amount}
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		sub, err := tx.GetOrCreateSubscription(ctx, memberID, serviceID)
		if err != nil {
			return err
		}
		inv.SubscriptionID = sub.ID
		inv.ID, err = tx.CreateInvoice(ctx, inv)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ref, err := s.assignReference(ctx, s.refs.InvoiceBase, inv.ID, func(ctx context.Context, tx storage.Tx, ref int64) error {
		return tx.SetInvoiceReference(ctx, inv.ID, ref)
	})
	if err != nil {
		return inv, fmt.Errorf("%s: %w", op, err)
	}
	inv.ReferenceNumber = &ref
	s.log.Info("invoice created", slog.Int64("invoice_id", inv.ID), slog.Int64("member_id", memberID))
	return inv, nil
}

// BackfillReferences назначает номера участникам и счетам, у которых их нет.
func (s *MemberService) BackfillReferences(ctx context.Context) (BackfillReport, error) {
	const op = "member.BackfillReferences"
	log := s.log.With(slog.String("op", op))

	var (
		members  []*models.Member
		invoices []*models.Invoice
	)
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		if members, err = tx.ListMembersWithoutReference(ctx); err != nil {
			return err
		}
		invoices, err = tx.ListInvoicesWithoutReference(ctx)
		return err
	})
	if err != nil {
		return BackfillReport{}, fmt.Errorf("%s: %w", op, err)
	}

	var report BackfillReport
	for _, m := range members {
		_, err := s.assignReference(ctx, s.refs.MemberBase, m.ID, func(ctx context.Context, tx storage.Tx, ref int64) error {
			if err := tx.SetMemberReference(ctx, m.ID, ref); err != nil {
				return err
			}
			return tx.AppendLog(ctx, m.ID, "Reference number "+refnum.Format(ref)+" assigned", s.now())
		})
		if err != nil {
			report.Failed++
			log.Error("failed to assign member reference", slog.Int64("member_id", m.ID), sl.Err(err))
			continue
		}
		report.Members++
	}
	for _, inv := range invoices {
		_, err := s.assignReference(ctx, s.refs.InvoiceBase, inv.ID, func(ctx context.Context, tx storage.Tx, ref int64) error {
			return tx.SetInvoiceReference(ctx, inv.ID, ref)
		})
		if err != nil {
			report.Failed++
			log.Error("failed to assign invoice reference", slog.Int64("invoice_id", inv.ID), sl.Err(err))
			continue
		}
		report.Invoices++
	}

	log.Info("references backfilled",
		slog.Int("members", report.Members),
		slog.Int("invoices", report.Invoices),
		slog.Int("failed", report.Failed))
	return report, nil
}

// MarkForDeletion помечает участника на удаление. Само удаление выполняет обход
// после истечения срока хранения.
func (s *MemberService) MarkForDeletion(ctx context.Context, memberID int64) error {
	const op = "member.MarkForDeletion"
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		now := s.now()
		if err := tx.MarkMemberForDeletion(ctx, memberID, now); err != nil {
			return err
		}
		return tx.AppendLog(ctx, memberID, "Marked for deletion", now)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("member marked for deletion", slog.Int64("member_id", memberID))
	return nil
}

// Subscribe подписывает участника на сервис. selfService означает, что запрос
// сделал сам участник: тогда сервис должен разрешать самостоятельную подписку.
// Новая подписка начинается в состоянии SUSPENDED до первого платежа.
func (s *MemberService) Subscribe(ctx context.Context, memberID, serviceID int64, selfService bool) (*models.ServiceSubscription, error) {
	const op = "member.Subscribe"
	var sub *models.ServiceSubscription
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		svc, err := tx.GetService(ctx, serviceID)
		if err != nil {
			return err
		}
		if selfService && (!svc.SelfSubscribe || svc.Hidden) {
			return models.ErrSelfSubscribeDenied
		}
		sub, err = tx.GetOrCreateSubscription(ctx, memberID, serviceID)
		if err != nil {
			return err
		}
		return tx.AppendLog(ctx, memberID, "Subscribed to "+svc.Name, s.now())
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CreateService сохраняет сервис. Цепочка pays_also_service проверяется хранилищем.
func (s *MemberService) CreateService(ctx context.Context, svc *models.MemberService) (int64, error) {
	const op = "member.CreateService"
	var id int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		id, err = tx.CreateService(ctx, svc)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("service created", slog.Int64("service_id", id), slog.String("name", svc.Name))
	return id, nil
}

func (s *MemberService) UpdateService(ctx context.Context, svc *models.MemberService) error {
	const op = "member.UpdateService"
	err := s.store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateService(ctx, svc)
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// MemberLog возвращает журнал участника в хронологическом порядке.
func (s *MemberService) MemberLog(ctx context.Context, memberID int64) ([]*models.UsersLog, error) {
	const op = "member.MemberLog"
	var logs []*models.UsersLog
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			return err
		}
		var err error
		logs, err = tx.ListLogs(ctx, memberID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return logs, nil
}
