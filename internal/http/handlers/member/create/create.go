// Package create реализует HTTP-обработчик регистрации нового участника.
//
// Handler проверяет тело запроса, создаёт участника и возвращает его вместе
// с назначенным ссылочным номером для банковских платежей.
package create

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/member-ledger/internal/http/response"
	"github.com/magabrotheeeer/member-ledger/internal/lib/refnum"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/models"
)

type Service interface {
	CreateMember(ctx context.Context, req models.DummyMember) (*models.Member, error)
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
	const op = "handlers.member.create"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyMember
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			log.Error("invalid request", sl.Err(err))
			w.WriteHeader(http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
	}

	m, err := h.service.CreateMember(r.Context(), req)
	if err != nil && m == nil {
		log.Error("failed to create member", sl.Err(err))
		status, resp := response.FromError(err)
		w.WriteHeader(status)
		render.JSON(w, r, resp)
		return
	}
	if err != nil {
		// Участник сохранён, номер будет назначен при следующем backfill.
		log.Warn("member created without reference number", slog.Int64("member_id", m.ID), sl.Err(err))
	}

	data := map[string]any{"member": m}
	if m.ReferenceNumber != nil {
		data["reference"] = refnum.Format(*m.ReferenceNumber)
	}
	log.Info("member created", slog.Int64("member_id", m.ID))
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(data))
}
