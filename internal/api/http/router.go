package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-service/internal/auth"
	"github.com/spec-kit/queue-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Businesses     *handlers.BusinessesHandler
	Queues         *handlers.QueuesHandler
	Tokens         *handlers.TokensHandler
	Streams        *handlers.StreamsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/send-otp", cfg.Auth.SendOTP)
	authGroup.Post("/verify-otp", cfg.Auth.VerifyOTP)
	authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Auth.Me)
	authGroup.Put("/profile", cfg.AuthMiddleware.Handle, cfg.Auth.UpdateProfile)

	businesses := app.Group("/businesses", cfg.AuthMiddleware.Handle)
	businesses.Post("/", cfg.Businesses.Create)
	businesses.Get("/", cfg.Businesses.List)
	businesses.Get("/my-businesses", cfg.Businesses.ListMine)
	businesses.Get("/:id", cfg.Businesses.Get)
	businesses.Get("/:id/activity", cfg.Businesses.ListActivity)
	businesses.Post("/:id/staff", auth.RequireRole(domain.RoleOwner), cfg.Businesses.AssignStaff)
	businesses.Delete("/:id/staff/:patronId", auth.RequireRole(domain.RoleOwner), cfg.Businesses.RemoveStaff)
	businesses.Post("/:id/staff/verify-pin", cfg.Businesses.VerifyStaffPIN)

	queues := app.Group("/queues")
	queues.Get("/search", cfg.Queues.Search)
	queues.Get("/:id", cfg.Queues.Get)

	staffQueues := queues.Group("", cfg.AuthMiddleware.Handle)
	staffQueues.Post("/", auth.RequireRole(domain.RoleOwner), cfg.Queues.Create)
	staffQueues.Get("/business/:businessId", cfg.Queues.ListByBusiness)
	staffQueues.Put("/:id", auth.RequireRole(domain.RoleOwner), cfg.Queues.UpdateSettings)
	staffQueues.Post("/:id/pause", cfg.Queues.Pause)
	staffQueues.Post("/:id/resume", cfg.Queues.Resume)
	staffQueues.Post("/:id/next", cfg.Queues.Advance)
	staffQueues.Post("/:id/skip/:tokenNumber", cfg.Queues.Skip)
	staffQueues.Post("/:id/noshow/:tokenNumber", cfg.Queues.NoShow)
	staffQueues.Get("/:id/activity", cfg.Queues.ListActivity)

	tokens := app.Group("/tokens", cfg.AuthMiddleware.Handle)
	tokens.Post("/", cfg.Tokens.Book)
	tokens.Get("/my-tokens", cfg.Tokens.ListActive)
	tokens.Get("/history", cfg.Tokens.ListHistory)
	tokens.Get("/queue/:queueId", cfg.Tokens.ListForQueue)
	tokens.Get("/:id", cfg.Tokens.Get)
	tokens.Post("/:id/cancel", cfg.Tokens.Cancel)
	tokens.Post("/:id/checkin", cfg.Tokens.CheckIn)
	tokens.Post("/:id/manual-checkin", cfg.Tokens.ManualCheckIn)

	streams := app.Group("/streams")
	streams.Get("/queues/:id", cfg.Streams.Queue)
	streams.Get("/tokens/:id", cfg.Streams.Token)
}
