// src/handlers/router.go
package handlers

import (
	"net/http"

	"github.com/BanziSeo/habiOS-sub002/src/security"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware applies a process-wide token bucket. The app serves
// a single desktop user, so a global limiter is enough.
func RateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRouter assembles the full HTTP surface.
func NewRouter(
	auth *security.AuthService,
	authHandler *AuthHandler,
	journal *JournalHandler,
	importHandler *ImportHandler,
	backupHandler *BackupHandler,
	settingsHandler *SettingsHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(ContextualLoggerMiddleware)
	r.Use(RateLimitMiddleware(rate.NewLimiter(rate.Limit(50), 100)))

	r.Post("/api/auth/login", authHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(auth))

		r.Route("/api/accounts", func(r chi.Router) {
			r.Get("/", journal.ListAccounts)
			r.Post("/", journal.CreateAccount)
			r.Route("/{accountID}", func(r chi.Router) {
				r.Get("/", journal.GetAccount)
				r.Delete("/", journal.DeleteAccount)
				r.Get("/trades", journal.ListTrades)
				r.Get("/positions", journal.ListPositions)
				r.Get("/metrics", journal.DashboardMetrics)
				r.Get("/equity", journal.EquityCurve)
				r.Post("/equity", journal.SaveEquityPoint)
				r.Post("/plans", journal.SaveDailyPlan)
				r.Get("/plans/{planDate}", journal.GetDailyPlan)
			})
		})

		r.Route("/api/trades", func(r chi.Router) {
			r.Post("/", journal.AddTrade)
			r.Patch("/{tradeID}", journal.AmendTrade)
			r.Delete("/{tradeID}", journal.DeleteTrade)
		})

		r.Route("/api/positions", func(r chi.Router) {
			r.Post("/", journal.OpenPosition)
			r.Route("/{positionID}", func(r chi.Router) {
				r.Get("/", journal.GetPosition)
				r.Patch("/", journal.UpdatePosition)
				r.Delete("/", journal.DeletePosition)
				r.Get("/trades", journal.PositionTrades)
				r.Get("/stops", journal.ListStopLosses)
				r.Put("/stops", journal.SaveStopLosses)
			})
		})
		r.Delete("/api/stops/{stopID}", journal.DeactivateStopLoss)

		r.Post("/api/import/csv", importHandler.ImportCSV)
		r.Post("/api/import/batch", importHandler.ImportBatch)

		r.Route("/api/backup", func(r chi.Router) {
			r.Post("/", backupHandler.Create)
			r.Post("/restore", backupHandler.Restore)
			r.Get("/info", backupHandler.Info)
		})

		r.Route("/api/settings", func(r chi.Router) {
			r.Get("/", settingsHandler.ListKeys)
			r.Get("/{key}", settingsHandler.Get)
			r.Put("/{key}", settingsHandler.Set)
			r.Delete("/{key}", settingsHandler.Delete)
		})
	})

	return r
}
