// Package web serves the assistant page, its JSON API and the live event
// stream.
package web

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"spark-assistant/internal/application"
	"spark-assistant/internal/domain"
	"spark-assistant/internal/providers"
)

//go:embed static/index.html
var indexHTML []byte

type Conversation interface {
	HandleText(ctx context.Context, text string) (*application.TurnResult, error)
	HandleAudio(ctx context.Context, path string) (*application.TurnResult, error)
	Record(ctx context.Context) (*application.TurnResult, error)
	Stop() bool
	ApplySettings(sel domain.Selection) error
	Settings() domain.Selection
	Transcript() []domain.Message
	State() application.State
	Playing() bool
	LatestAudio() (*application.TurnResult, bool)
}

type Credentials interface {
	Masked() map[string]string
	Save(updates map[string]string) error
}

type ServiceChecker interface {
	Check(ctx context.Context, name string) error
}

type Config struct {
	UploadDir string
	// RateLimit is turn requests per client IP per minute.
	RateLimit int
	BodyLimit int
}

type Server struct {
	app      *fiber.App
	conv     Conversation
	creds    Credentials
	services ServiceChecker
	catalog  providers.Catalog
	hub      *Hub
	cfg      Config
	logger   *slog.Logger
}

func NewServer(cfg Config, conv Conversation, creds Credentials, services ServiceChecker, catalog providers.Catalog, hub *Hub, logger *slog.Logger) (*Server, error) {
	if cfg.BodyLimit == 0 {
		cfg.BodyLimit = 25 * 1024 * 1024
	}
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		return nil, err
	}

	s := &Server{
		conv:     conv,
		creds:    creds,
		services: services,
		catalog:  catalog,
		hub:      hub,
		cfg:      cfg,
		logger:   logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Spark Voice Assistant",
		DisableStartupMessage: true,
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           15 * time.Second,
		IdleTimeout:           60 * time.Second,
		ErrorHandler:          s.handleError,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})

	app.Get("/", s.handleIndex)

	limiter := NewRateLimiter(cfg.RateLimit)

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/history", s.handleHistory)
	api.Get("/providers", s.handleProviders)
	api.Get("/settings", s.handleGetSettings)
	api.Put("/settings", s.handlePutSettings)
	api.Get("/credentials", s.handleGetCredentials)
	api.Put("/credentials", s.handlePutCredentials)
	api.Post("/chat", limiter.Middleware(), s.handleChat)
	api.Post("/audio", limiter.Middleware(), s.handleAudio)
	api.Post("/record", limiter.Middleware(), s.handleRecord)
	api.Post("/stop", s.handleStop)
	api.Get("/audio/latest", s.handleLatestAudio)
	api.Get("/health/:service", s.handleHealth)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/events", websocket.New(s.handleEvents))

	s.app = app
	return s, nil
}

func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("web server starting", "addr", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	if code >= 500 {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
