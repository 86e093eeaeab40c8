package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/meridianpay/meridian/internal/config"
	"github.com/meridianpay/meridian/internal/routes"
	"github.com/meridianpay/meridian/internal/settlement"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app       *fiber.App
	cfg       config.Config
	db        *pgxpool.Pool
	cache     *redis.Client
	scheduler *settlement.Scheduler
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	wiring, err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Logger: logger})
	if err != nil {
		return nil, err
	}

	scheduler := settlement.NewScheduler(wiring.Settlement, wiring.SettlementAccounts,
		cfg.SettlementInterval, cfg.SettlementLookback, logger)

	return &Server{app: app, cfg: cfg, db: db, cache: cache, scheduler: scheduler}, nil
}

// RunScheduler drives periodic settlement until the context is cancelled.
func (s *Server) RunScheduler(ctx context.Context) {
	s.scheduler.Run(ctx)
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
