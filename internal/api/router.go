package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stockleague/league/internal/league"
	"github.com/stockleague/league/internal/metrics"
)

// RouterDeps are the collaborators NewRouter wires together.
type RouterDeps struct {
	Service        *league.Service
	WSHandler      http.HandlerFunc // nil disables /api/v1/ws
	AllowedOrigin  string
	RequestTimeout time.Duration
	AccessLog      bool
}

// NewRouter builds the full HTTP surface.
func NewRouter(d RouterDeps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 30 * time.Second
	}
	h := NewHandler(d.Service)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if d.AccessLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(CORS(d.AllowedOrigin))
	r.Use(SecurityHeaders)

	r.Get("/health", Health)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		// Long-lived; must stay outside the request timeout.
		if d.WSHandler != nil {
			r.Get("/ws", d.WSHandler)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(d.RequestTimeout))

			r.Post("/auth/register", h.Register)
			r.Post("/auth/login", h.Login)
			r.Get("/stockprice", h.GetPrice)
			r.Get("/leaderboard", h.GetLeaderboard)
			r.Get("/matchups", h.ListMatchups)

			r.Group(func(r chi.Router) {
				r.Use(WithAuth(d.Service))

				r.Get("/user", h.GetUser)
				r.Put("/user", h.UpdateUser)

				r.Get("/trades", h.ListTrades)
				r.Post("/trades", h.ExecuteTrade)
				r.Get("/trades/export", h.ExportTrades)
				r.Delete("/trades/{tradeID}", h.DeleteTrade)

				r.Post("/matchups", h.CreateMatchup)
				r.Post("/matchups/{matchupID}/join", h.JoinMatchup)
				r.Post("/matchups/{matchupID}/settle", h.SettleMatchup)
			})
		})
	})

	return r
}
