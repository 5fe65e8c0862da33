package subscribe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

type MockService struct {
	mock.Mock
}

func (m *MockService) Subscribe(ctx context.Context, memberID, serviceID int64, selfService bool) (*models.ServiceSubscription, error) {
	args := m.Called(ctx, memberID, serviceID, selfService)
	if res := args.Get(0); res != nil {
		return res.(*models.ServiceSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSubscribeHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "subscribed",
			body: `{"service_id":3}`,
			setupMock: func(m *MockService) {
				m.On("Subscribe", mock.Anything, int64(8), int64(3), false).
					Return(&models.ServiceSubscription{ID: 1, MemberID: 8, ServiceID: 3, State: models.StateSuspended}, nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"state":"SUSPENDED"`,
		},
		{
			name: "self subscribe denied",
			body: `{"service_id":3,"self_service":true}`,
			setupMock: func(m *MockService) {
				m.On("Subscribe", mock.Anything, int64(8), int64(3), true).
					Return(nil, fmt.Errorf("member.Subscribe: %w", models.ErrSelfSubscribeDenied))
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `service is not open for self subscription`,
		},
		{
			name:           "missing service",
			body:           `{}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field ServiceID is a required field`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockService)
			tt.setupMock(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/members/8/subscriptions", strings.NewReader(tt.body))
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("id", "8")
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			w := httptest.NewRecorder()
			New(logger, svc).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())
			svc.AssertExpectations(t)
		})
	}
}
