package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/member-ledger/internal/migrations"
	"github.com/magabrotheeeer/member-ledger/internal/models"
)

// setupTestDatabase поднимает PostgreSQL в контейнере и накатывает миграции.
func setupTestDatabase(t *testing.T) (*Storage, func()) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Пробуем подключиться несколько раз с ретраями
	var storage *Storage
	for i := 0; i < 10; i++ {
		storage, err = New(connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "Failed to create storage after retries")

	migrationsPath, err := filepath.Abs("../../../migrations")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, migrationsPath))
	require.NoError(t, CheckDatabaseReady(storage))

	cleanup := func() {
		storage.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return storage, cleanup
}

// TestDataFactory создаёт тестовые записи через сам Storage.
type TestDataFactory struct {
	storage *Storage
}

func NewTestDataFactory(storage *Storage) *TestDataFactory {
	return &TestDataFactory{storage: storage}
}

// CreateMember создаёт участника со случайным email.
func (f *TestDataFactory) CreateMember(t *testing.T, ref *int64) int64 {
	t.Helper()
	id, err := f.storage.CreateMember(context.Background(), &models.Member{
		Email:           fmt.Sprintf("%s@example.com", uuid.NewString()),
		FirstName:       "Test",
		LastName:        "Member",
		Phone:           "+358401234567",
		MembershipPlan:  models.PlanMemberOnly,
		ReferenceNumber: ref,
	})
	require.NoError(t, err)
	return id
}

func (f *TestDataFactory) CreateService(t *testing.T, name string, cost int64, days int, paysAlso *int64) int64 {
	t.Helper()
	id, err := f.storage.CreateService(context.Background(), &models.MemberService{
		Name:              name,
		Cost:              cost,
		DaysPerPayment:    days,
		PaysAlsoServiceID: paysAlso,
	})
	require.NoError(t, err)
	return id
}

func (f *TestDataFactory) CreateTransaction(t *testing.T, date time.Time, amount int64, ref *int64) int64 {
	t.Helper()
	id, err := f.storage.CreateTransaction(context.Background(), &models.BankTransaction{
		Date:            date,
		Amount:          amount,
		Sender:          "TEST SENDER",
		ReferenceNumber: ref,
		Status:          models.TxPending,
	})
	require.NoError(t, err)
	return id
}

func (f *TestDataFactory) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.storage.DB.QueryRow(query, args...).Scan(&n))
	return n
}

func i64(v int64) *int64 { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
