package server

import (
	"backend-runistanbul/internal/auth"
	"backend-runistanbul/internal/capture"
	"backend-runistanbul/internal/config"
	"backend-runistanbul/internal/route"
	"backend-runistanbul/internal/run"
	"backend-runistanbul/internal/stats"
	"backend-runistanbul/internal/stream"
	"backend-runistanbul/internal/territory"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Stream *stream.Hub
	Stats  *stats.Service
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     db,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
		Stats:  stats.NewService(db, redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	territories := territory.NewService(s.DB)
	arbiter := capture.NewArbiter(territories, capture.PolicyFromConfig(s.Cfg))
	cleaning := route.CleaningPolicy{
		MaxAccuracyM: s.Cfg.GPSMaxAccuracyM,
		MaxSpeedMps:  s.Cfg.GPSMaxSpeedMps,
	}
	runs := run.NewService(s.DB, territories, arbiter, s.Stream, cleaning, s.Cfg.CapturePrefilterMarginM)

	territory.RegisterRoutes(s.App.Group("/territories"), territories, jwtMiddleware)
	run.RegisterRoutes(s.App.Group("/runs"), runs, jwtMiddleware)
	stats.RegisterRoutes(s.App.Group("/stats"), s.Stats)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream)
}
