package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/ticket-sla/internal/api/http/handlers"
	"github.com/spec-kit/ticket-sla/internal/auth"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Workflows      *handlers.WorkflowsHandler
	Tickets        *handlers.TicketsHandler
	SLA            *handlers.SLAHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	app.Post("/auth/staff/login", cfg.Auth.Login)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireStaffRole())
	admins := auth.RequireStaffRole(domain.StaffRoleAdmin)
	managers := auth.RequireStaffRole(domain.StaffRoleManager, domain.StaffRoleAdmin)

	api.Post("/staff", admins, cfg.Auth.CreateStaff)

	workflows := api.Group("/workflows")
	workflows.Post("/", managers, cfg.Workflows.Create)
	workflows.Get("/:id", cfg.Workflows.Get)
	workflows.Post("/:id/clone", managers, cfg.Workflows.Clone)
	workflows.Put("/:id/graph", managers, cfg.Workflows.SaveGraph)
	workflows.Delete("/:id", managers, cfg.Workflows.Delete)
	workflows.Delete("/:id/states/:stateId", managers, cfg.Workflows.DeleteState)
	workflows.Delete("/:id/transitions/:transitionId", managers, cfg.Workflows.DeleteTransition)

	tickets := api.Group("/tickets")
	tickets.Post("/", cfg.Tickets.CreateTicket)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/transitions", cfg.Tickets.Transition)
	tickets.Get("/:id/history", cfg.Tickets.History)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Get("/:id/health", cfg.Tickets.Health)

	sla := api.Group("/sla")
	sla.Get("/violations", cfg.SLA.Violations)
	sla.Get("/warnings", cfg.SLA.Warnings)
	sla.Post("/jobs/:name/run", admins, cfg.SLA.RunJob)
}
