// Package ingest реализует HTTP-обработчик приёма пачки банковских транзакций.
//
// Каждая запись проверяется отдельно, неверная запись не мешает остальным.
// В ответе возвращается результат сверки по каждой записи в исходном порядке.
package ingest

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/member-ledger/internal/http/response"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/models"
	"github.com/magabrotheeeer/member-ledger/internal/services/reconcile"
)

// MaxBatchSize ограничение числа транзакций в одном запросе.
const MaxBatchSize = 1000

// Service описывает интерфейс сверки пачки транзакций.
type Service interface {
	ReconcileBatch(ctx context.Context, batch []models.BankTransaction) []reconcile.Result
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
	const op = "handlers.transaction.ingest"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req []models.DummyTransaction
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}
	if len(req) == 0 || len(req) > MaxBatchSize {
		log.Error("invalid batch size", slog.Int("size", len(req)))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("batch must contain between 1 and 1000 transactions"))
		return
	}

	results := make([]reconcile.Result, len(req))
	batch := make([]models.BankTransaction, 0, len(req))
	positions := make([]int, 0, len(req))
	for i, in := range req {
		t, err := reconcile.ParseTransaction(in)
		if err != nil {
			results[i] = reconcile.Result{Outcome: reconcile.OutcomeRejected, Error: err.Error()}
			continue
		}
		batch = append(batch, t)
		positions = append(positions, i)
	}

	if len(batch) > 0 {
		for j, res := range h.service.ReconcileBatch(r.Context(), batch) {
			results[positions[j]] = res
		}
	}

	log.Info("bank transactions ingested", slog.Int("received", len(req)), slog.Int("accepted", len(batch)))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"results": results,
	}))
}
