// Package backfill реализует HTTP-обработчик назначения недостающих ссылочных номеров.
package backfill

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/member-ledger/internal/http/response"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/services/member"
)

type Service interface {
	BackfillReferences(ctx context.Context) (member.BackfillReport, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.member.backfill"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	report, err := h.service.BackfillReferences(r.Context())
	if err != nil {
		log.Error("failed to backfill references", sl.Err(err))
		status, resp := response.FromError(err)
		w.WriteHeader(status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(report))
}
