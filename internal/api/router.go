/**
 * @description
 * This file sets up the HTTP router. It defines the API endpoints,
 * associates them with their handlers, and applies middleware. The deposit
 * webhook and health check live outside the authenticated group: the
 * webhook authenticates by gateway signature, not bearer token.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: Routing and standard middleware.
 * - github.com/go-chi/cors: CORS for the mobile/web client.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes creates and returns the router for the backend.
func Routes(h *Handlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	})

	// Signature-verified, not token-authenticated.
	r.Post("/webhook/deposit", h.DepositWebhookHandler)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/deposit/initialize", h.InitializeDepositHandler)
		r.Get("/deposit/verify", h.VerifyDepositHandler)
		r.Post("/withdraw", h.WithdrawHandler)
		r.Get("/bank/resolve", h.ResolveBankHandler)

		r.Get("/wallet/balance", h.WalletBalanceHandler)
		r.Get("/wallet/transactions", h.ListTransactionsHandler)

		r.Post("/bills/purchase", h.PurchaseBillHandler)
		r.Get("/bills/requery", h.RequeryBillHandler)

		r.Post("/images/upload", h.UploadImageHandler)
	})

	return r
}
