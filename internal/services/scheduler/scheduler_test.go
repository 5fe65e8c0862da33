package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"

	subservice "github.com/magabrotheeeer/member-ledger/internal/services/subscription"
)

type MockSubscriptionService struct {
	mock.Mock
}

func (m *MockSubscriptionService) Sweep(ctx context.Context, evalDate time.Time) (subservice.SweepReport, error) {
	args := m.Called(ctx, evalDate)
	return args.Get(0).(subservice.SweepReport), args.Error(1)
}

func (m *MockSubscriptionService) CleanupMarked(ctx context.Context, now time.Time) (int, error) {
	args := m.Called(ctx, now)
	return args.Int(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(subs SubscriptionService, now time.Time) *SchedulerService {
	s := NewSchedulerService(subs, time.Hour, newNoopLogger())
	s.now = func() time.Time { return now }
	return s
}

func TestRunOnce(t *testing.T) {
	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	today := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		sweepErr    error
		cleanupErr  error
		cancelled   bool
		expectSweep bool
		expectClean bool
	}{
		{
			name:        "sweep and cleanup",
			expectSweep: true,
			expectClean: true,
		},
		{
			name:        "sweep error still cleans up",
			sweepErr:    errors.New("storage down"),
			expectSweep: true,
			expectClean: true,
		},
		{
			name:        "cleanup error is logged",
			cleanupErr:  errors.New("storage down"),
			expectSweep: true,
			expectClean: true,
		},
		{
			name:        "cancelled context skips cleanup",
			sweepErr:    context.Canceled,
			cancelled:   true,
			expectSweep: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if tt.cancelled {
				cancel()
			}

			subs := new(MockSubscriptionService)
			if tt.expectSweep {
				subs.On("Sweep", mock.Anything, today).
					Return(subservice.SweepReport{Date: "2025-03-10", Evaluated: 3, Expired: 1}, tt.sweepErr).Once()
			}
			if tt.expectClean {
				subs.On("CleanupMarked", mock.Anything, now).Return(2, tt.cleanupErr).Once()
			}

			newTestScheduler(subs, now).RunOnce(ctx)

			subs.AssertExpectations(t)
			if !tt.expectClean {
				subs.AssertNotCalled(t, "CleanupMarked", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	swept := make(chan struct{}, 1)
	subs := new(MockSubscriptionService)
	subs.On("Sweep", mock.Anything, mock.Anything).Return(subservice.SweepReport{}, nil).
		Run(func(mock.Arguments) {
			select {
			case swept <- struct{}{}:
			default:
			}
		})
	subs.On("CleanupMarked", mock.Anything, mock.Anything).Return(0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestScheduler(subs, now).Run(ctx)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("first sweep did not run")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	subs.AssertCalled(t, "Sweep", mock.Anything, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
}
