// Package invoice реализует HTTP-обработчик выставления счёта участнику.
package invoice

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/member-ledger/internal/http/response"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/models"
)

type Service interface {
	CreateInvoice(ctx context.Context, memberID, serviceID int64, days int, amount int64) (*models.Invoice, error)
}

// Request тело запроса. Amount в центах.
type Request struct {
	ServiceID int64 `json:"service_id" validate:"required"`
	Days      int   `json:"days" validate:"gt=0"`
	Amount    int64 `json:"amount" validate:"gt=0"`
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.member.invoice"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	memberID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		log.Error("failed to decode id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
	}

	inv, err := h.service.CreateInvoice(r.Context(), memberID, req.ServiceID, req.Days, req.Amount)
	if err != nil && inv == nil {
		log.Error("failed to create invoice", sl.Err(err))
		status, resp := response.FromError(err)
		w.WriteHeader(status)
		render.JSON(w, r, resp)
		return
	}
	if err != nil {
		log.Warn("invoice created without reference number", slog.Int64("invoice_id", inv.ID), sl.Err(err))
	}

	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"invoice": inv,
	}))
}
