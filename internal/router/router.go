package router

import (
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/smartplaylist/api/internal/handler"
	"github.com/smartplaylist/api/internal/metrics"
	"github.com/smartplaylist/api/internal/middleware"
	ws "github.com/smartplaylist/api/internal/websocket"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	Playlists        *handler.PlaylistHandler
	Auth             *middleware.AuthMiddleware
	RateLimiter      *middleware.RateLimiter
	PlaylistsPerHour int
	Hub              *ws.Hub
	Metrics          *metrics.Metrics
	Logger           *log.Logger
	LogLevel         string
	// Health reports which optional collaborators are configured.
	Health func() map[string]bool
}

// New builds the fiber app with every route of the service.
func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(d.LogLevel, "debug") {
		// Request bodies carry catalog credentials; never log them.
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
		Output: d.Logger.StandardLog().Writer(),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(middleware.Metrics(d.Metrics))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		services := map[string]bool{}
		if d.Health != nil {
			services = d.Health()
		}
		return c.JSON(fiber.Map{
			"status":   "ok",
			"services": services,
		})
	})

	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	api := app.Group("/api", d.Auth.Authenticate())

	playlists := api.Group("/playlists")
	playlists.Post("/", d.RateLimiter.PlaylistLimit(d.PlaylistsPerHour), d.Playlists.Create)
	playlists.Get("/:jobId/status", d.Playlists.Status)
	playlists.Get("/:jobId/result", d.Playlists.Result)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		d.Hub.HandleConnection(c, c.Params("jobId"))
	}))

	return app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
