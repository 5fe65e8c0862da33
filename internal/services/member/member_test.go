package member

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/member-ledger/internal/config"
	"github.com/magabrotheeeer/member-ledger/internal/lib/refnum"
	"github.com/magabrotheeeer/member-ledger/internal/metrics"
	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
	"github.com/magabrotheeeer/member-ledger/internal/storage/memory"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRefs() config.References {
	return config.References{MemberBase: 1000, InvoiceBase: 500000, MaxRetries: 3, RetryStride: 100000}
}

func ref(t *testing.T, seed int64) int64 {
	t.Helper()
	r, err := refnum.Generate(seed)
	require.NoError(t, err)
	return r
}

func validRequest(email string) models.DummyMember {
	return models.DummyMember{
		Email:          email,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Phone:          "+358401234567",
		Birthday:       "10.12.1990",
		MembershipPlan: "AR",
	}
}

func TestCreateMember(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := NewMemberService(store, testRefs(), newNoopLogger())

	m, err := svc.CreateMember(ctx, validRequest("Ada@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", m.Email)
	assert.Equal(t, models.PlanAccessRights, m.MembershipPlan)
	require.NotNil(t, m.Birthday)
	assert.Equal(t, time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC), *m.Birthday)
	require.NotNil(t, m.ReferenceNumber)
	assert.Equal(t, ref(t, 1000+m.ID), *m.ReferenceNumber)
	assert.True(t, refnum.Validate(*m.ReferenceNumber))

	logs, err := svc.MemberLog(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Contains(t, logs[1].Message, refnum.Format(*m.ReferenceNumber))

	_, err = svc.CreateMember(ctx, validRequest("ada@example.com"))
	assert.True(t, models.IsDuplicate(err))
}

func TestCreateMember_Validation(t *testing.T) {
	svc := NewMemberService(memory.New(), testRefs(), newNoopLogger())

	tests := []struct {
		name  string
		edit  func(*models.DummyMember)
		field string
	}{
		{name: "bad email", edit: func(r *models.DummyMember) { r.Email = "not-an-email" }, field: "email"},
		{name: "missing first name", edit: func(r *models.DummyMember) { r.FirstName = "" }, field: "firstname"},
		{name: "unknown plan", edit: func(r *models.DummyMember) { r.MembershipPlan = "VIP" }, field: "membershipplan"},
		{name: "bad birthday", edit: func(r *models.DummyMember) { r.Birthday = "1990-12-10" }, field: "birthday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest("ada@example.com")
			tt.edit(&req)
			_, err := svc.CreateMember(context.Background(), req)
			var ve models.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestCreateMember_ReferenceCollisionRetries(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	taken := ref(t, 1002)
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.CreateMember(ctx, &models.Member{Email: "old@example.com", MembershipPlan: models.PlanMemberOnly, ReferenceNumber: &taken})
		return err
	}))

	before := testutil.ToFloat64(metrics.ReferenceCollisions)
	svc := NewMemberService(store, testRefs(), newNoopLogger())
	m, err := svc.CreateMember(ctx, validRequest("new@example.com"))
	require.NoError(t, err)
	require.Equal(t, int64(2), m.ID)
	assert.Equal(t, ref(t, 1002+100000), *m.ReferenceNumber)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.ReferenceCollisions))
}

func TestCreateMember_ReferenceRetriesExhausted(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	taken := ref(t, 1002)
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.CreateMember(ctx, &models.Member{Email: "old@example.com", MembershipPlan: models.PlanMemberOnly, ReferenceNumber: &taken})
		return err
	}))

	refs := testRefs()
	refs.MaxRetries = 1
	svc := NewMemberService(store, refs, newNoopLogger())
	m, err := svc.CreateMember(ctx, validRequest("new@example.com"))
	require.Error(t, err)
	assert.True(t, models.IsDuplicate(err))
	require.NotNil(t, m)
	assert.Nil(t, m.ReferenceNumber)

	report, err := NewMemberService(store, testRefs(), newNoopLogger()).BackfillReferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackfillReport{Members: 1}, report)
}

func seedServiceAndMember(t *testing.T, store storage.Store, svc models.MemberService) (int64, int64) {
	t.Helper()
	var svcID, memberID int64
	require.NoError(t, store.InTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		var err error
		if svcID, err = tx.CreateService(ctx, &svc); err != nil {
			return err
		}
		memberID, err = tx.CreateMember(ctx, &models.Member{Email: "m@example.com", MembershipPlan: models.PlanMemberOnly})
		return err
	}))
	return svcID, memberID
}

func TestCreateInvoice(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svcID, memberID := seedServiceAndMember(t, store, models.MemberService{Name: "Membership", Cost: 5000, DaysPerPayment: 365})
	svc := NewMemberService(store, testRefs(), newNoopLogger())

	inv, err := svc.CreateInvoice(ctx, memberID, svcID, 90, 2000)
	require.NoError(t, err)
	require.NotNil(t, inv.ReferenceNumber)
	assert.Equal(t, ref(t, 500000+inv.ID), *inv.ReferenceNumber)

	require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		got, err := tx.GetInvoiceByReference(ctx, *inv.ReferenceNumber)
		require.NoError(t, err)
		assert.Equal(t, 90, got.Days)
		sub, err := tx.GetSubscription(ctx, got.SubscriptionID)
		require.NoError(t, err)
		assert.Equal(t, svcID, sub.ServiceID)
		assert.Equal(t, models.StateSuspended, sub.State)
		return nil
	}))

	_, err = svc.CreateInvoice(ctx, memberID, svcID, 0, 2000)
	assert.True(t, models.IsValidation(err))
	_, err = svc.CreateInvoice(ctx, memberID, 999, 30, 2000)
	assert.True(t, models.IsNotFound(err))
}

func TestAssignReference_SkipsOtherTable(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		occupy func(t *testing.T, store storage.Store, svcID, memberID int64)
		assign func(svc *MemberService, svcID, memberID int64) (int64, error)
		want   int64
	}{
		{
			name: "member number held by invoice",
			occupy: func(t *testing.T, store storage.Store, svcID, memberID int64) {
				require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
					sub, err := tx.GetOrCreateSubscription(ctx, memberID, svcID)
					if err != nil {
						return err
					}
					invID, err := tx.CreateInvoice(ctx, &models.Invoice{MemberID: memberID, SubscriptionID: sub.ID, Days: 30, Amount: 1000})
					if err != nil {
						return err
					}
					// Следующий участник получит id 2.
					return tx.SetInvoiceReference(ctx, invID, ref(t, 1000+2))
				}))
			},
			assign: func(svc *MemberService, _, _ int64) (int64, error) {
				m, err := svc.CreateMember(ctx, validRequest("next@example.com"))
				if err != nil {
					return 0, err
				}
				return *m.ReferenceNumber, nil
			},
			want: 1000 + 2 + 100000,
		},
		{
			name: "invoice number held by member",
			occupy: func(t *testing.T, store storage.Store, _, memberID int64) {
				require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
					return tx.SetMemberReference(ctx, memberID, ref(t, 500000+1))
				}))
			},
			assign: func(svc *MemberService, svcID, memberID int64) (int64, error) {
				inv, err := svc.CreateInvoice(ctx, memberID, svcID, 30, 1000)
				if err != nil {
					return 0, err
				}
				return *inv.ReferenceNumber, nil
			},
			want: 500000 + 1 + 100000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			svcID, memberID := seedServiceAndMember(t, store, models.MemberService{Name: "Membership", Cost: 5000, DaysPerPayment: 365})
			tt.occupy(t, store, svcID, memberID)

			got, err := tt.assign(NewMemberService(store, testRefs(), newNoopLogger()), svcID, memberID)
			require.NoError(t, err)
			assert.Equal(t, ref(t, tt.want), got)
		})
	}
}

func TestBackfillReferences(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svcID, memberID := seedServiceAndMember(t, store, models.MemberService{Name: "Membership", Cost: 5000, DaysPerPayment: 365})
	require.NoError(t, store.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		sub, err := tx.GetOrCreateSubscription(ctx, memberID, svcID)
		if err != nil {
			return err
		}
		_, err = tx.CreateInvoice(ctx, &models.Invoice{MemberID: memberID, SubscriptionID: sub.ID, Days: 30, Amount: 1000})
		return err
	}))

	svc := NewMemberService(store, testRefs(), newNoopLogger())
	report, err := svc.BackfillReferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackfillReport{Members: 1, Invoices: 1}, report)

	require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		m, err := tx.GetMember(ctx, memberID)
		require.NoError(t, err)
		assert.Equal(t, ref(t, 1000+memberID), *m.ReferenceNumber)
		return nil
	}))

	again, err := svc.BackfillReferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, BackfillReport{}, again)
}

func TestSubscribe(t *testing.T) {
	tests := []struct {
		name        string
		service     models.MemberService
		selfService bool
		wantErr     error
	}{
		{name: "admin", service: models.MemberService{Name: "Locker"}},
		{name: "self on open service", service: models.MemberService{Name: "Locker", SelfSubscribe: true}, selfService: true},
		{name: "self on closed service", service: models.MemberService{Name: "Locker"}, selfService: true, wantErr: models.ErrSelfSubscribeDenied},
		{name: "self on hidden service", service: models.MemberService{Name: "Locker", SelfSubscribe: true, Hidden: true}, selfService: true, wantErr: models.ErrSelfSubscribeDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New()
			svcID, memberID := seedServiceAndMember(t, store, tt.service)
			svc := NewMemberService(store, testRefs(), newNoopLogger())

			sub, err := svc.Subscribe(context.Background(), memberID, svcID, tt.selfService)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.StateSuspended, sub.State)
			assert.Nil(t, sub.PaidUntil)

			logs, err := svc.MemberLog(context.Background(), memberID)
			require.NoError(t, err)
			require.Len(t, logs, 1)
			assert.Equal(t, "Subscribed to Locker", logs[0].Message)
		})
	}
}

func TestServiceChainOnWrite(t *testing.T) {
	ctx := context.Background()
	svc := NewMemberService(memory.New(), testRefs(), newNoopLogger())

	a := &models.MemberService{Name: "A", DaysPerPayment: 30}
	aID, err := svc.CreateService(ctx, a)
	require.NoError(t, err)
	a.ID = aID

	bID, err := svc.CreateService(ctx, &models.MemberService{Name: "B", DaysPerPayment: 30, PaysAlsoServiceID: &aID})
	require.NoError(t, err)

	a.PaysAlsoServiceID = &bID
	err = svc.UpdateService(ctx, a)
	require.ErrorIs(t, err, models.ErrChainCycle)
	assert.True(t, models.IsValidation(err))

	_, err = svc.CreateService(ctx, &models.MemberService{Name: "C", Cost: -1})
	assert.True(t, models.IsValidation(err))
}

func TestMarkForDeletion(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	_, memberID := seedServiceAndMember(t, store, models.MemberService{Name: "Membership"})
	svc := NewMemberService(store, testRefs(), newNoopLogger())
	marked := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return marked }

	require.NoError(t, svc.MarkForDeletion(ctx, memberID))
	require.NoError(t, store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		list, err := tx.ListMembersMarkedBefore(ctx, marked.Add(time.Second))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, memberID, list[0].ID)
		return nil
	}))

	assert.True(t, models.IsNotFound(svc.MarkForDeletion(ctx, 404)))
}

func TestMemberLog_UnknownMember(t *testing.T) {
	svc := NewMemberService(memory.New(), testRefs(), newNoopLogger())
	_, err := svc.MemberLog(context.Background(), 404)
	assert.True(t, models.IsNotFound(err))
}
