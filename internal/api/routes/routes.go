package routes

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/nodewarden/warden/internal/api/handlers"
	"github.com/nodewarden/warden/internal/api/middleware"
	"github.com/nodewarden/warden/internal/config"
	"github.com/nodewarden/warden/internal/engine"
	"github.com/nodewarden/warden/internal/events"
	"github.com/nodewarden/warden/internal/logger"
	"github.com/nodewarden/warden/internal/metrics"
	"github.com/nodewarden/warden/internal/models"
	"github.com/nodewarden/warden/internal/notify"
	"github.com/nodewarden/warden/internal/panel"
	"github.com/nodewarden/warden/internal/services"
)

// Register wires up API routes, performs automatic migrations and builds the
// automation engine. The caller owns the engine's lifecycle: Start it after
// the server is up and Stop it on shutdown.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) (*engine.Engine, error) {
	if err := db.AutoMigrate(
		&models.AutomationRule{},
		&models.RuleExecutionLog{},
		&models.User{},
		&models.Node{},
		&models.UserNodeTraffic{},
		&models.Admin{},
		&models.Setting{},
	); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	router.GET("/api/v1/health", handlers.HealthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")

	// Auth
	authService := services.NewAuthService(db, cfg.JWTSecret)
	if err := authService.Bootstrap(cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	authHandler := handlers.NewAuthHandler(authService)
	authMiddleware := middleware.AuthMiddleware(authService)

	api.POST("/auth/login", authHandler.Login)

	// Event plumbing and the engine's view of the panel.
	bus := events.NewBus()
	users := panel.NewUserDirectory(db)
	nodes := panel.NewNodeControl(db, nodeDriver(cfg))
	notifier := notify.New(db, cfg.TelegramBotToken, cfg.TelegramChatID)

	eng := engine.New(engine.Options{
		Rules:           services.NewRuleService(db),
		Logs:            services.NewLogService(db),
		Users:           users,
		Nodes:           nodes,
		Metrics:         panel.NewMetricsSource(db),
		Notifier:        notifier,
		Bus:             bus,
		TickInterval:    cfg.EngineTick,
		DispatchTimeout: cfg.DispatchTimeout,
	})

	// Optional NATS bridge; node agents publish panel events there. The
	// bridge reconnects forever on its own, so a down broker only warns.
	if cfg.NATSURL != "" {
		source := events.NewSource(cfg.NATSURL, cfg.NATSSubjectPrefix, bus)
		if err := source.Connect(); err != nil {
			logger.Log().WithError(err).Warn("NATS event bridge unavailable")
		}
	}

	protected := api.Group("/")
	protected.Use(authMiddleware)
	{
		protected.GET("/auth/me", authHandler.Me)

		// Automation rules
		automationHandler := handlers.NewAutomationHandler(db, eng)
		protected.GET("/automations", automationHandler.List)
		protected.POST("/automations", automationHandler.Create)
		protected.GET("/automations/logs", automationHandler.Logs)
		protected.GET("/automations/templates", automationHandler.Templates)
		protected.POST("/automations/templates/:id/activate", automationHandler.ActivateTemplate)
		protected.GET("/automations/:id", automationHandler.Get)
		protected.PUT("/automations/:id", automationHandler.Update)
		protected.DELETE("/automations/:id", automationHandler.Delete)
		protected.POST("/automations/:id/toggle", automationHandler.Toggle)
		protected.POST("/automations/:id/test", automationHandler.Test)
		protected.GET("/automations/:id/logs", automationHandler.RuleLogs)

		// Event intake
		eventHandler := handlers.NewEventHandler(bus)
		protected.POST("/events", eventHandler.Ingest)

		// Panel inventory sync
		userHandler := handlers.NewUserHandler(db)
		protected.GET("/users", userHandler.List)
		protected.GET("/users/:id", userHandler.Get)
		protected.PUT("/users/:id", userHandler.Upsert)
		protected.DELETE("/users/:id", userHandler.Delete)

		nodeHandler := handlers.NewNodeHandler(db)
		protected.GET("/nodes", nodeHandler.List)
		protected.GET("/nodes/:id", nodeHandler.Get)
		protected.PUT("/nodes/:id", nodeHandler.Upsert)
		protected.DELETE("/nodes/:id", nodeHandler.Delete)

		trafficHandler := handlers.NewTrafficHandler(db, bus)
		protected.POST("/traffic/report", trafficHandler.Report)

		// Settings
		settingsHandler := handlers.NewSettingsHandler(db)
		protected.GET("/settings", settingsHandler.GetSettings)
		protected.POST("/settings", middleware.RequireRole("admin"), settingsHandler.UpdateSetting)
	}

	return eng, nil
}

// nodeDriver picks the restart/force-sync transport. Only the docker driver
// talks to anything real; everything else records the action and moves on.
func nodeDriver(cfg config.Config) panel.Driver {
	switch cfg.NodeDriver {
	case "docker":
		driver, err := panel.NewDockerDriver()
		if err != nil {
			logger.Log().WithError(err).Warn("Docker unavailable, node actions will be recorded only")
			return nil
		}
		return driver
	default:
		return nil
	}
}
