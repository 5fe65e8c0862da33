// Package middlewarectx содержит HTTP middleware административного API.
package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/member-ledger/internal/config"
	"github.com/magabrotheeeer/member-ledger/internal/http/response"
)

// NewLimiter создаёт общий для всех запросов ограничитель по настройкам сервера.
func NewLimiter(cfg config.HTTPServer) *rate.Limiter {
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
}

// RateLimitMiddleware отклоняет запросы сверх лимита с кодом 429.
func RateLimitMiddleware(log *slog.Logger, limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Warn("too many requests", slog.String("path", r.URL.Path))
				w.WriteHeader(http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
