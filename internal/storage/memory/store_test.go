package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
)

func i64(v int64) *int64 { return &v }

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func seedMember(t *testing.T, s *Store, email string, ref *int64) int64 {
	t.Helper()
	var id int64
	err := s.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		id, err = tx.CreateMember(ctx, &models.Member{
			Email: email, FirstName: "Test", LastName: "Member",
			MembershipPlan: models.PlanMemberOnly, ReferenceNumber: ref,
		})
		return err
	})
	require.NoError(t, err)
	return id
}

func TestStore_InTxRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	memberID := seedMember(t, s, "a@example.com", nil)
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.SetMemberReference(ctx, memberID, 10016))
		require.NoError(t, tx.AppendLog(ctx, memberID, "gone", time.Now()))
		_, err := tx.CreateMember(ctx, &models.Member{Email: "b@example.com", MembershipPlan: models.PlanAccessRights})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		m, err := tx.GetMember(ctx, memberID)
		require.NoError(t, err)
		assert.Nil(t, m.ReferenceNumber)

		logs, err := tx.ListLogs(ctx, memberID)
		require.NoError(t, err)
		assert.Empty(t, logs)

		_, err = tx.GetMemberByEmail(ctx, "b@example.com")
		assert.True(t, models.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestStore_UniqueConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	first := seedMember(t, s, "a@example.com", i64(10016))
	second := seedMember(t, s, "b@example.com", nil)

	tests := []struct {
		name string
		fn   storage.TxFunc
	}{
		{
			name: "duplicate email",
			fn: func(ctx context.Context, tx storage.Tx) error {
				_, err := tx.CreateMember(ctx, &models.Member{Email: "a@example.com"})
				return err
			},
		},
		{
			name: "duplicate member reference",
			fn: func(ctx context.Context, tx storage.Tx) error {
				return tx.SetMemberReference(ctx, second, 10016)
			},
		},
		{
			name: "duplicate service name",
			fn: func(ctx context.Context, tx storage.Tx) error {
				if _, err := tx.CreateService(ctx, &models.MemberService{Name: "Membership"}); err != nil {
					return err
				}
				_, err := tx.CreateService(ctx, &models.MemberService{Name: "Membership"})
				return err
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.InTx(ctx, tt.fn)
			assert.True(t, models.IsDuplicate(err), "got %v", err)
		})
	}

	// Повторная установка своего же номера не конфликтует.
	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SetMemberReference(ctx, first, 10016)
	})
	assert.NoError(t, err)
}

func TestStore_DeleteMemberCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	memberID := seedMember(t, s, "a@example.com", i64(10016))

	var txID, subID int64
	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		svcID, err := tx.CreateService(ctx, &models.MemberService{Name: "Membership", Cost: 3000, DaysPerPayment: 365})
		require.NoError(t, err)
		txID, err = tx.CreateTransaction(ctx, &models.BankTransaction{Date: day(2024, 1, 1), Amount: 3000, MemberID: &memberID})
		require.NoError(t, err)
		sub, err := tx.GetOrCreateSubscription(ctx, memberID, svcID)
		require.NoError(t, err)
		subID = sub.ID
		sub.LastPaymentID = &txID
		require.NoError(t, tx.UpdateSubscription(ctx, sub))
		_, err = tx.CreateInvoice(ctx, &models.Invoice{MemberID: memberID, SubscriptionID: sub.ID, Days: 30, Amount: 100})
		require.NoError(t, err)
		return tx.AppendLog(ctx, memberID, "hello", time.Now())
	})
	require.NoError(t, err)

	err = s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.DeleteMember(ctx, memberID)
	})
	require.NoError(t, err)

	err = s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.GetSubscription(ctx, subID)
		assert.True(t, models.IsNotFound(err))

		invoices, err := tx.ListInvoicesWithoutReference(ctx)
		require.NoError(t, err)
		assert.Empty(t, invoices)

		bt, err := tx.GetTransaction(ctx, txID)
		require.NoError(t, err)
		assert.Nil(t, bt.MemberID)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_DeleteTransactionClearsLastPayment(t *testing.T) {
	s := New()
	ctx := context.Background()
	memberID := seedMember(t, s, "a@example.com", nil)

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		svcID, err := tx.CreateService(ctx, &models.MemberService{Name: "Membership"})
		require.NoError(t, err)
		txID, err := tx.CreateTransaction(ctx, &models.BankTransaction{Date: day(2024, 1, 1), Amount: 3000})
		require.NoError(t, err)
		sub, err := tx.GetOrCreateSubscription(ctx, memberID, svcID)
		require.NoError(t, err)
		sub.LastPaymentID = &txID
		require.NoError(t, tx.UpdateSubscription(ctx, sub))

		last, err := tx.IsLastPayment(ctx, txID)
		require.NoError(t, err)
		assert.True(t, last)

		require.NoError(t, tx.DeleteTransaction(ctx, txID))
		sub, err = tx.GetSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Nil(t, sub.LastPaymentID)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ServiceChainChecked(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		a, err := tx.CreateService(ctx, &models.MemberService{Name: "a"})
		require.NoError(t, err)
		b, err := tx.CreateService(ctx, &models.MemberService{Name: "b", PaysAlsoServiceID: &a})
		require.NoError(t, err)
		c, err := tx.CreateService(ctx, &models.MemberService{Name: "c", PaysAlsoServiceID: &b})
		require.NoError(t, err)

		_, err = tx.CreateService(ctx, &models.MemberService{Name: "d", PaysAlsoServiceID: &c})
		assert.ErrorIs(t, err, models.ErrChainTooDeep)

		svc, err := tx.GetService(ctx, a)
		require.NoError(t, err)
		svc.PaysAlsoServiceID = &c
		assert.ErrorIs(t, tx.UpdateService(ctx, svc), models.ErrChainCycle)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_GetOrCreateSubscriptionIsStable(t *testing.T) {
	s := New()
	ctx := context.Background()
	memberID := seedMember(t, s, "a@example.com", nil)

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		svcID, err := tx.CreateService(ctx, &models.MemberService{Name: "Membership"})
		require.NoError(t, err)
		first, err := tx.GetOrCreateSubscription(ctx, memberID, svcID)
		require.NoError(t, err)
		assert.Equal(t, models.StateSuspended, first.State)
		assert.Nil(t, first.PaidUntil)

		second, err := tx.GetOrCreateSubscription(ctx, memberID, svcID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)

		_, err = tx.GetOrCreateSubscription(ctx, memberID, svcID+100)
		assert.True(t, models.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ListTransactionsByStatusPaging(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, d := range []time.Time{day(2024, 1, 3), day(2024, 1, 1), day(2024, 1, 2)} {
			_, err := tx.CreateTransaction(ctx, &models.BankTransaction{Date: d, Amount: 1, Status: models.TxUnmatched})
			require.NoError(t, err)
		}
		_, err := tx.CreateTransaction(ctx, &models.BankTransaction{Date: day(2024, 1, 1), Amount: 1})
		require.NoError(t, err)

		all, err := tx.ListTransactionsByStatus(ctx, models.TxUnmatched, 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0].Date.Equal(day(2024, 1, 1)))

		page, err := tx.ListTransactionsByStatus(ctx, models.TxUnmatched, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.True(t, page[0].Date.Equal(day(2024, 1, 3)))

		empty, err := tx.ListTransactionsByStatus(ctx, models.TxUnmatched, 2, 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
		return nil
	})
	require.NoError(t, err)
}

func TestStore_ReturnedValuesAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	memberID := seedMember(t, s, "a@example.com", i64(10016))

	err := s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		m, err := tx.GetMember(ctx, memberID)
		require.NoError(t, err)
		*m.ReferenceNumber = 1009

		again, err := tx.GetMember(ctx, memberID)
		require.NoError(t, err)
		assert.Equal(t, int64(10016), *again.ReferenceNumber)
		return nil
	})
	require.NoError(t, err)
}
