package router

import (
	"net/http"

	"github.com/fixmarket/backend/internal/account"
	"github.com/fixmarket/backend/internal/auth"
	"github.com/fixmarket/backend/internal/contacts"
	"github.com/fixmarket/backend/internal/jobs"
	"github.com/fixmarket/backend/internal/middleware"
	"github.com/fixmarket/backend/internal/models"
	"github.com/fixmarket/backend/internal/payments"
)

// New returns an http.Handler serving the API under /api/v1.
// Middleware chain: RequireAuth -> (RequireRole where applicable) -> handler.
func New(
	authHandler *auth.Handler,
	jobsHandler *jobs.Handler,
	contactsHandler *contacts.Handler,
	accountHandler *account.Handler,
	paymentsHandler *payments.Handler,
	tokens middleware.TokenValidator,
) http.Handler {
	mux := http.NewServeMux()

	authed := middleware.RequireAuth(tokens)
	clientOnly := middleware.RequireRole(models.RoleClient)
	professionalOnly := middleware.RequireRole(models.RoleProfessional)
	adminOnly := middleware.RequireRole(models.RoleAdmin)

	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.Handle("POST /api/v1/jobs", authed(clientOnly(http.HandlerFunc(jobsHandler.CreateJob))))
	mux.Handle("GET /api/v1/jobs", authed(http.HandlerFunc(jobsHandler.ListJobs)))
	mux.Handle("GET /api/v1/jobs/{id}", authed(http.HandlerFunc(jobsHandler.GetJob)))
	mux.Handle("DELETE /api/v1/jobs/{id}", authed(clientOnly(http.HandlerFunc(jobsHandler.WithdrawJob))))

	mux.Handle("GET /api/v1/jobs/{id}/price", authed(professionalOnly(http.HandlerFunc(contactsHandler.GetPrice))))
	mux.Handle("POST /api/v1/jobs/{id}/contacts", authed(professionalOnly(http.HandlerFunc(contactsHandler.CreateContact))))

	mux.Handle("GET /api/v1/account/me", authed(http.HandlerFunc(accountHandler.GetMe)))
	mux.Handle("GET /api/v1/transactions", authed(http.HandlerFunc(accountHandler.ListTransactions)))
	mux.Handle("GET /api/v1/transactions/{id}", authed(http.HandlerFunc(accountHandler.GetTransaction)))
	mux.Handle("GET /api/v1/admin/pricing", authed(adminOnly(http.HandlerFunc(accountHandler.GetPricing))))
	mux.Handle("PUT /api/v1/admin/pricing", authed(adminOnly(http.HandlerFunc(accountHandler.UpdatePricing))))

	// Authenticated by shared secret, not a bearer token.
	mux.HandleFunc("POST /api/v1/payments/confirm", paymentsHandler.Confirm)

	return mux
}
