// Package memberledger собирает административный HTTP API учёта участников.
package memberledger

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/health"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/member/backfill"
	membercreate "github.com/magabrotheeeer/member-ledger/internal/http/handlers/member/create"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/member/invoice"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/member/memberlog"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/member/remove"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/member/subscribe"
	servicecreate "github.com/magabrotheeeer/member-ledger/internal/http/handlers/service/create"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/service/update"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/subscription/suspend"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/subscription/sweep"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/transaction/ingest"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/transaction/reprocess"
	"github.com/magabrotheeeer/member-ledger/internal/http/handlers/transaction/unmatched"
	"github.com/magabrotheeeer/member-ledger/internal/http/middlewarectx"
	memberservice "github.com/magabrotheeeer/member-ledger/internal/services/member"
	"github.com/magabrotheeeer/member-ledger/internal/services/reconcile"
	subservice "github.com/magabrotheeeer/member-ledger/internal/services/subscription"
)

// Services сервисы, на которые опираются обработчики.
type Services struct {
	Engine        *reconcile.Engine
	Subscriptions *subservice.SubscriptionService
	Members       *memberservice.MemberService
	// DB nil для хранилища в памяти.
	DB health.Pinger
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, limiter *rate.Limiter, s Services) {
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Get("/health", health.New(logger, s.DB).ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, limiter))

		// Банковские транзакции
		r.Post("/transactions", ingest.New(logger, s.Engine).ServeHTTP)
		r.Get("/transactions/unmatched", unmatched.New(logger, s.Engine).ServeHTTP)
		r.Post("/transactions/reprocess", reprocess.New(logger, s.Engine).ServeHTTP)

		// Подписки
		r.Post("/subscriptions/{id}/suspend", suspend.New(logger, s.Subscriptions).ServeHTTP)
		r.Post("/sweep", sweep.New(logger, s.Subscriptions).ServeHTTP)

		// Участники
		r.Post("/members", membercreate.New(logger, s.Members).ServeHTTP)
		r.Get("/members/{id}/log", memberlog.New(logger, s.Members).ServeHTTP)
		r.Delete("/members/{id}", remove.New(logger, s.Members).ServeHTTP)
		r.Post("/members/{id}/invoices", invoice.New(logger, s.Members).ServeHTTP)
		r.Post("/members/{id}/subscriptions", subscribe.New(logger, s.Members).ServeHTTP)
		r.Post("/references/backfill", backfill.New(logger, s.Members).ServeHTTP)

		// Сервисы
		r.Post("/services", servicecreate.New(logger, s.Members).ServeHTTP)
		r.Put("/services/{id}", update.New(logger, s.Members).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
}
