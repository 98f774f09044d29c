/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies the
 * standard middleware stack.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// LedgerRoutes creates and returns a new router for the ledger service.
func LedgerRoutes(h *LedgerHandlers) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", h.TransferHandler)
		r.Get("/", h.ListTransfersHandler)
		r.Get("/{transactionID}", h.GetTransferHandler)
	})

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", h.CreateAccountHandler)
		r.Get("/{accountID}", h.GetAccountHandler)
		r.Post("/{accountID}/deposit", h.DepositHandler)
		r.Post("/{accountID}/withdraw", h.WithdrawHandler)
		r.Get("/{accountID}/transfers", h.ListAccountTransfersHandler)
	})

	return r
}
