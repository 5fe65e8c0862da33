// Package sweep реализует HTTP-обработчик ручного запуска обхода подписок.
package sweep

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/member-ledger/internal/http/response"
	"github.com/magabrotheeeer/member-ledger/internal/lib/day"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	subservice "github.com/magabrotheeeer/member-ledger/internal/services/subscription"
)

type Service interface {
	Sweep(ctx context.Context, evalDate time.Time) (subservice.SweepReport, error)
}

// Request необязательное тело запроса. Пустая дата означает сегодня.
type Request struct {
	Date string `json:"date,omitempty"`
}

type Handler struct {
	log     *slog.Logger
	service Service
	now     func() time.Time
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
		now:     time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.sweep"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode request"))
		return
	}

	evalDate := day.Truncate(h.now())
	if req.Date != "" {
		var err error
		if evalDate, err = day.Parse(req.Date); err != nil {
			log.Error("failed to parse date", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("date must be YYYY-MM-DD"))
			return
		}
	}

	report, err := h.service.Sweep(r.Context(), evalDate)
	if err != nil {
		log.Error("sweep failed", sl.Err(err))
		status, resp := response.FromError(err)
		w.WriteHeader(status)
		render.JSON(w, r, resp)
		return
	}

	render.JSON(w, r, response.StatusOKWithData(report))
}
