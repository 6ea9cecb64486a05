package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"eventpass-backend/middleware"
	"eventpass-backend/ratelimit"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// API groups the handlers mounted by NewRouter.
type API struct {
	Events   *EventHandler
	Payments *PaymentHandler
	Bookings *BookingHandler
	Payouts  *PayoutHandler
	Admin    *AdminHandler
}

type RouterOptions struct {
	JWTSecret []byte
	// Limiter throttles the public write and polling routes. nil disables it.
	Limiter        ratelimit.Limiter
	Metrics        http.Handler
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

func NewRouter(api *API, opts RouterOptions) chi.Router {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	throttle := func(route string) func(http.Handler) http.Handler {
		if opts.Limiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return ratelimit.Middleware(opts.Limiter, route, ratelimit.ClientIP, logger)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(opts.RequestTimeout))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Events
		r.Get("/events", api.Events.GetEvents)
		r.Get("/events/{id}", api.Events.GetEvent)

		// Checkout and reconciliation
		r.With(throttle("checkout")).Post("/checkout", api.Payments.Checkout)
		r.With(throttle("verify")).Get("/payments/verify", api.Payments.Verify)
		r.With(throttle("cancel")).Post("/payments/{reference}/cancel", api.Payments.Cancel)
		r.Post("/webhooks/paystack", api.Payments.Webhook)

		// Free bookings
		r.With(throttle("free_booking")).Post("/bookings/free", api.Bookings.BookFree)

		// Tickets
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(opts.JWTSecret, middleware.RoleOrganizer, middleware.RoleAdmin))
			r.Get("/tickets/{code}", api.Bookings.GetTicket)
			r.Post("/tickets/{code}/check-in", api.Bookings.CheckIn)
			r.Post("/tickets/{code}/cancel", api.Bookings.CancelTicket)
		})

		// Organizer payouts
		r.Route("/organizer", func(r chi.Router) {
			r.Use(middleware.RequireRole(opts.JWTSecret, middleware.RoleOrganizer))
			r.Get("/payouts", api.Payouts.List)
			r.Get("/payouts/balance", api.Payouts.Balance)
			r.Post("/payouts", api.Payouts.Request)
		})

		// Admin
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(opts.JWTSecret, middleware.RoleAdmin))
			r.Post("/payouts/{id}/{action}", api.Payouts.Transition)
			r.Get("/reconciliation/anomalies", api.Admin.Anomalies)
			r.Post("/reconciliation/{reference}/retry", api.Admin.Retry)
			r.Put("/ticket-types/{id}/capacity", api.Admin.SetCapacity)
			r.Get("/inventory/audit", api.Admin.Audit)
		})
	})

	return r
}
