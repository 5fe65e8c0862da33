package response

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-playground/validator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

func TestFromError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        fmt.Errorf("op: %w", models.ValidationError{Field: "email", Message: "failed on email"}),
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    "validation failed for email: failed on email",
		},
		{
			name:       "chain cycle",
			err:        fmt.Errorf("op: service 1: %w", models.ErrChainCycle),
			wantStatus: http.StatusUnprocessableEntity,
			wantMsg:    models.ErrChainCycle.Error(),
		},
		{
			name:       "state conflict",
			err:        models.StateConflictError{SubscriptionID: 3, From: models.StateActive, To: models.StateSuspended, Reason: "paid until 2024-05-11"},
			wantStatus: http.StatusConflict,
			wantMsg:    "subscription 3: cannot move from ACTIVE to SUSPENDED: paid until 2024-05-11",
		},
		{
			name:       "not found",
			err:        fmt.Errorf("op: %w", models.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantMsg:    "not found",
		},
		{
			name:       "duplicate",
			err:        fmt.Errorf("op: members_email_key: %w", models.ErrDuplicate),
			wantStatus: http.StatusConflict,
			wantMsg:    "already exists",
		},
		{
			name:       "self subscribe",
			err:        fmt.Errorf("op: %w", models.ErrSelfSubscribeDenied),
			wantStatus: http.StatusForbidden,
			wantMsg:    models.ErrSelfSubscribeDenied.Error(),
		},
		{
			name:       "internal",
			err:        errors.New("pq: connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "internal error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := FromError(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, StatusError, resp.Status)
			assert.Equal(t, tt.wantMsg, resp.Error)
		})
	}
}

func TestValidationError(t *testing.T) {
	type request struct {
		Email  string `validate:"required,email"`
		Amount int64  `validate:"gt=0"`
		Plan   string `validate:"oneof=MO AR"`
	}
	err := validator.New().Struct(request{Email: "nope", Plan: "VIP"})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	resp := ValidationError(verrs)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "field Email must be a valid email, field Amount must be greater than 0, field Plan must be one of MO AR", resp.Error)
}
