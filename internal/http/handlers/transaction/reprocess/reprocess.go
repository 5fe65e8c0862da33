// Package reprocess реализует HTTP-обработчик повторной сверки транзакций
// из очереди ручной проверки.
package reprocess

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/member-ledger/internal/http/response"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/services/reconcile"
)

type Service interface {
	ReprocessUnmatched(ctx context.Context) ([]reconcile.Result, error)
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
	const op = "handlers.transaction.reprocess"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	results, err := h.service.ReprocessUnmatched(r.Context())
	if err != nil {
		log.Error("failed to reprocess unmatched transactions", sl.Err(err))
		status, resp := response.FromError(err)
		w.WriteHeader(status)
		render.JSON(w, r, resp)
		return
	}

	applied := 0
	for _, res := range results {
		if res.Outcome == reconcile.OutcomeApplied {
			applied++
		}
	}
	log.Info("unmatched transactions reprocessed", slog.Int("total", len(results)), slog.Int("applied", applied))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"applied": applied,
		"results": results,
	}))
}
