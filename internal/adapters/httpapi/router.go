package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// NewRouter builds the REST routes. ws may be nil when live updates are disabled.
func NewRouter(handler *Handler, ws http.HandlerFunc, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))
	r.Use(loggingMiddleware(logger))

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(actorMiddleware)
		if ws != nil {
			r.Get("/ws", ws)
		}

		r.Route("/v1/lots/{lotID}", func(r chi.Router) {
			r.Get("/", handler.getLot)
			r.Get("/bids", handler.listBids)
			r.Post("/bids", handler.submitBid)
			r.Get("/highest-bid", handler.getHighestBid)

			r.Post("/auction/start", handler.startAuction)
			r.Post("/auction/schedule", handler.scheduleAuction)
			r.Post("/auction/force-end", handler.forceEndAuction)

			r.Post("/settlement/default", handler.markPaymentDefault)
			r.Post("/failed-attempts/reset", handler.resetFailedAttempts)

			r.Post("/payments/confirmed", handler.paymentConfirmed)
			r.Post("/payments/defaulted", handler.paymentDefaulted)
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok", "service": "lot-auction"})
}
