// Package unmatched реализует HTTP-обработчик очереди ручной проверки:
// транзакций, ссылочный номер которых не удалось сопоставить.
package unmatched

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/member-ledger/internal/http/response"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/models"
)

const defaultLimit = 100

type Service interface {
	Unmatched(ctx context.Context, limit, offset int) ([]*models.BankTransaction, error)
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
	const op = "handlers.transaction.unmatched"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil {
		log.Error("invalid limit", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("limit must be a non-negative integer"))
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		log.Error("invalid offset", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("offset must be a non-negative integer"))
		return
	}

	list, err := h.service.Unmatched(r.Context(), limit, offset)
	if err != nil {
		log.Error("failed to list unmatched transactions", sl.Err(err))
		status, resp := response.FromError(err)
		w.WriteHeader(status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"transactions": list,
	}))
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, strconv.ErrRange
	}
	return v, nil
}
