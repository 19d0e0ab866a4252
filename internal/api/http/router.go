package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/triage-portal/internal/api/http/handlers"
	"github.com/spec-kit/triage-portal/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Admin          *handlers.AdminHandler
	LLM            *handlers.LLMHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Auth.Register)
	authGroup.Post("/login", cfg.Auth.Login)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, auth.RequireAnyRole(), cfg.Auth.Me)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Post("/", cfg.Tickets.SubmitTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/logs", cfg.Tickets.ListAuditLog)

	llm := app.Group("/llm", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	llm.Post("/analyze", cfg.LLM.Analyze)
	llm.Post("/respond", cfg.LLM.Respond)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireStaff())
	admin.Patch("/tickets/:id", cfg.Admin.UpdateTicket)
	admin.Post("/tickets/:id/assign-token-holder", cfg.Admin.AssignTokenHolder)
	admin.Post("/escalations/claim", cfg.Admin.ClaimEscalation)
	admin.Get("/roster", cfg.Admin.Roster)
	admin.Post("/roster/reassign", cfg.Admin.ReassignHolder)
	admin.Get("/users", cfg.Admin.ListUsers)
	admin.Patch("/users/:id/role", cfg.Admin.UpdateRole)
	admin.Get("/metrics", cfg.Admin.Metrics)
}
