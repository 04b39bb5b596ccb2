package bootstrap

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	apihttp "replyflow_server/adapter/in/http"
	"replyflow_server/config"
	"replyflow_server/infra/database"
	"replyflow_server/infra/middleware"
	"replyflow_server/pkg/health"
	"replyflow_server/pkg/logger"
)

var errServiceTokenRequired = errors.New("SERVICE_TOKEN_SECRET is required in production")

// NewAPI builds the internal HTTP surface: health probes plus the
// service-token-guarded operator endpoints.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.ParseLevel(cfg.LogLevel)
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:   logLevel,
		Service: "replyflow-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	if err := database.Migrate(context.Background(), deps.DB); err != nil {
		cleanup()
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))
	app.Use(cors.New(cors.Config{
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization,X-Request-ID",
	}))

	// Health probes stay open for the orchestrator.
	healthHandler := apihttp.NewHealthHandler(deps.DB, deps.Redis, deps.Health)
	healthHandler.Register(app)
	deps.Health.MarkUp(health.ComponentHTTP)

	// Everything else is service-to-service.
	internal := app.Group("/internal")
	if cfg.ServiceTokenSecret != "" {
		internal.Use(middleware.ServiceAuth(cfg.ServiceTokenSecret))
	} else if cfg.IsProduction() {
		cleanup()
		return nil, nil, errServiceTokenRequired
	} else {
		logger.Warn("SERVICE_TOKEN_SECRET not set, internal API is unauthenticated")
	}

	apihttp.NewSyncHandler(deps.SyncService).Register(internal)
	apihttp.NewJobsHandler(deps.DispatchService).Register(internal)

	return app, cleanup, nil
}
