// Package suspend реализует HTTP-обработчик ручной приостановки подписки.
//
// Подписку, оплаченную на дату оценки, приостановить нельзя: в этом случае
// возвращается 409 Conflict, а отказ записывается в журнал участника.
package suspend

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/member-ledger/internal/http/response"
	"github.com/magabrotheeeer/member-ledger/internal/lib/day"
	"github.com/magabrotheeeer/member-ledger/internal/lib/sl"
	"github.com/magabrotheeeer/member-ledger/internal/models"
)

type Service interface {
	Suspend(ctx context.Context, subscriptionID int64, evalDate time.Time) (*models.ServiceSubscription, error)
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

// ServeHTTP приостанавливает подписку {id}. Дата оценки берётся из параметра
// date (YYYY-MM-DD), по умолчанию сегодня.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.suspend"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		log.Error("failed to decode id from url", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("failed to decode id from url"))
		return
	}

	evalDate := day.Truncate(h.now())
	if raw := r.URL.Query().Get("date"); raw != "" {
		evalDate, err = day.Parse(raw)
		if err != nil {
			log.Error("failed to parse date", sl.Err(err))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.Error("date must be YYYY-MM-DD"))
			return
		}
	}

	sub, err := h.service.Suspend(r.Context(), id, evalDate)
	if err != nil {
		log.Warn("failed to suspend subscription", slog.Int64("subscription_id", id), sl.Err(err))
		status, resp := response.FromError(err)
		w.WriteHeader(status)
		render.JSON(w, r, resp)
		return
	}

	log.Info("subscription suspended", slog.Int64("subscription_id", id))
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"subscription": sub,
		"color":        sub.StateColor(),
	}))
}
