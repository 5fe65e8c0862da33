package repository

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/services/notify"
	"github.com/magabrotheeeer/member-ledger/internal/services/reconcile"
	"github.com/magabrotheeeer/member-ledger/internal/storage"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEngine(s *Storage, serviceID int64) *reconcile.Engine {
	logger := newNoopLogger()
	return reconcile.New(s, nil, notify.NewLogNotifier(logger), logger, reconcile.Options{DefaultServiceID: serviceID}).
		WithClock(func() time.Time { return date(2024, 1, 1) })
}

// parallel запускает fn в n горутинах и собирает их ошибки.
func parallel(n int, fn func(i int) error) []error {
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn(i)
		}()
	}
	wg.Wait()
	return errs
}

func TestStorage_ConcurrentSubscriptionUpdates(t *testing.T) {
	const workers = 8
	s, cleanup := setupTestDatabase(t)
	defer cleanup()
	f := NewTestDataFactory(s)
	ctx := context.Background()

	memberID := f.CreateMember(t, i64(10016))
	serviceID := f.CreateService(t, "Membership", 5000, 365, nil)

	errs := parallel(workers, func(int) error {
		return s.InTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			sub, err := tx.GetOrCreateSubscription(ctx, memberID, serviceID)
			if err != nil {
				return err
			}
			sub, err = tx.LockSubscription(ctx, sub.ID)
			if err != nil {
				return err
			}
			from := date(2024, 1, 1)
			if sub.PaidUntil != nil {
				from = *sub.PaidUntil
			}
			next := from.AddDate(0, 0, 30)
			sub.PaidUntil = &next
			sub.State = models.StateActive
			return tx.UpdateSubscription(ctx, sub)
		})
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	subs, err := s.ListSubscriptionsByMember(ctx, memberID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].PaidUntil)
	want := date(2024, 1, 1).AddDate(0, 0, workers*30)
	assert.True(t, subs[0].PaidUntil.Equal(want), "paid_until %s, want %s", subs[0].PaidUntil, want)
}

func TestStorage_ConcurrentIngestMatchesSerial(t *testing.T) {
	const payments = 5
	s, cleanup := setupTestDatabase(t)
	defer cleanup()
	f := NewTestDataFactory(s)
	ctx := context.Background()

	memberID := f.CreateMember(t, i64(10016))
	engine := newEngine(s, f.CreateService(t, "Membership", 5000, 365, nil))

	errs := parallel(payments, func(int) error {
		res, err := engine.Ingest(ctx, models.BankTransaction{
			Date: date(2024, 1, 1), Amount: 5000, Sender: "TEST SENDER", ReferenceNumber: i64(10016),
		})
		if err == nil {
			assert.Equal(t, reconcile.OutcomeApplied, res.Outcome)
		}
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	subs, err := s.ListSubscriptionsByMember(ctx, memberID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].PaidUntil)
	want := date(2024, 1, 1).AddDate(0, 0, payments*365)
	assert.True(t, subs[0].PaidUntil.Equal(want), "paid_until %s, want %s", subs[0].PaidUntil, want)
	assert.Equal(t, payments, f.count(t, `SELECT COUNT(*) FROM bank_transactions WHERE status = $1`, models.TxApplied))
	assert.Equal(t, payments, f.count(t, `SELECT COUNT(*) FROM users_log WHERE member_id = $1`, memberID))
}

func TestStorage_ConcurrentReconcileAppliesOnce(t *testing.T) {
	const workers = 6
	s, cleanup := setupTestDatabase(t)
	defer cleanup()
	f := NewTestDataFactory(s)
	ctx := context.Background()

	memberID := f.CreateMember(t, i64(10016))
	engine := newEngine(s, f.CreateService(t, "Membership", 5000, 365, nil))
	txID := f.CreateTransaction(t, date(2024, 1, 1), 5000, i64(10016))

	outcomes := make([]reconcile.Outcome, workers)
	errs := parallel(workers, func(i int) error {
		res, err := engine.Reconcile(ctx, txID)
		outcomes[i] = res.Outcome
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	counts := map[reconcile.Outcome]int{}
	for _, o := range outcomes {
		counts[o]++
	}
	assert.Equal(t, map[reconcile.Outcome]int{
		reconcile.OutcomeApplied: 1,
		reconcile.OutcomeSkipped: workers - 1,
	}, counts)

	subs, err := s.ListSubscriptionsByMember(ctx, memberID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.True(t, subs[0].PaidUntil.Equal(date(2024, 12, 31)))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM users_log WHERE member_id = $1`, memberID))
}
