// Package http exposes the cart service over a JSON HTTP API. Command
// endpoints accept an optional If-Match header carrying the stream version
// the caller last observed and return the new version in ETag, so clients
// can do optimistic concurrency over plain HTTP.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/wrenshaw/cartledger/internal/services/cart/app"
)

// Server routes cart API requests to the application layer.
type Server struct {
	Handler app.Handler
	Queries app.Queries
	Logger  zerolog.Logger
}

// NewRouter builds the chi router with the full cart API surface.
func (s *Server) NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/carts/{cartID}", func(r chi.Router) {
		r.Post("/open", s.openCart)
		r.Post("/items", s.addItem)
		r.Delete("/items/{productID}", s.removeItem)
		r.Post("/confirm", s.confirmCart)
		r.Post("/cancel", s.cancelCart)

		r.Get("/", s.getCart)
		r.Get("/events", s.getCartEvents)
		r.Delete("/", s.deleteCart)
	})

	r.Route("/customers/{customerID}", func(r chi.Router) {
		r.Get("/", s.getCustomerSummary)
		r.Get("/carts", s.listCustomerCarts)
	})

	return r
}

// requestLogger records one structured line per request with the final
// status and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(recorder, r)
		s.Logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", recorder.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}
