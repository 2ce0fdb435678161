package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postflow-engine/internal/api/handlers"
	"github.com/maheshrc27/postflow-engine/internal/api/middleware"
)

func SetupRoutes(app *fiber.App, auth *middleware.AuthMiddleware, platform *handlers.PlatformHandler, posts *handlers.PostHandler, sched *handlers.SchedulerHandler) {
	app.Get("/auth/:platform", platform.AddSocialAccount)
	app.Get("/auth/:platform/callback", platform.CallbackHandler)
	app.Post("/auth/:platform/callback", platform.CallbackHandler)

	api := app.Group("/api")
	api.Use(auth.AuthMiddleware())

	api.Get("/platforms", platform.ListPlatforms)
	api.Get("/accounts/connect-url", platform.ConnectURL)
	api.Get("/posts/:id", posts.GetPost)
	api.Get("/posts/:id/history", posts.PostHistory)

	s := api.Group("/scheduler")
	s.Get("/status", sched.GetStatus)
	s.Post("/start", sched.Start)
	s.Post("/stop", sched.Stop)
	s.Post("/trigger", sched.Trigger)
	s.Post("/reset", sched.Reset)
}
