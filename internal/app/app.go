package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "teamflow/docs"
	"teamflow/internal/cache"
	"teamflow/internal/config"
	"teamflow/internal/handlers"
	"teamflow/internal/middleware"
	"teamflow/internal/pdf"
	"teamflow/internal/repositories"
	"teamflow/internal/routes"
	"teamflow/internal/services"
)

func Run() {
	cfg := config.LoadConfig()
	configureLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// === DB ===
	db, err := repositories.Open(ctx, cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("database close failed")
		}
	}()
	if err := repositories.EnsureSchema(ctx, db); err != nil {
		log.WithError(err).Fatal("schema migration failed")
	}

	router, cleanup := buildRouter(cfg, db)
	defer cleanup()

	// === Run ===
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("addr", srv.Addr).Info("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown failed")
	}
	log.Info("server stopped")
}

// buildRouter wires repositories, optional integrations, services and
// handlers. The returned func releases the integrations.
func buildRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, func()) {
	var closers []func()

	// === Repos ===
	userRepo := repositories.NewUserRepository(db)
	projectRepo := repositories.NewProjectRepository(db)
	taskRepo := repositories.NewTaskRepository(db)

	// === Integrations ===
	var tags services.TagCache
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.WithError(err).Fatal("invalid redis.url")
		}
		client := redis.NewClient(opts)
		closers = append(closers, func() { _ = client.Close() })
		tags = cache.NewTagCache(client, cfg.Redis.TagTTL)
		log.WithField("ttl", cfg.Redis.TagTTL).Info("tag cache enabled")
	}

	var notifiers services.MultiNotifier
	if cfg.Email.Enabled {
		notifiers = append(notifiers, services.NewEmailNotifier(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
		))
	}
	if cfg.Telegram.Enabled {
		tg, err := services.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			log.WithError(err).Warn("telegram notifier disabled")
		} else {
			notifiers = append(notifiers, tg)
		}
	}
	var notifier services.Notifier
	if len(notifiers) > 0 {
		notifier = notifiers
	}

	var reports services.ReportRenderer
	if cfg.Report.Enabled {
		reports = pdf.NewReportGenerator(cfg.Report.FontPath)
	}

	// === Services ===
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	userService := services.NewUserService(userRepo, authService)
	projectService := services.NewProjectService(projectRepo, taskRepo, tags, reports)
	taskService := services.NewTaskService(taskRepo, projectRepo, userRepo, tags, notifier)

	// === Handlers ===
	authHandler := handlers.NewAuthHandler(userService)
	projectHandler := handlers.NewProjectHandler(projectService)
	taskHandler := handlers.NewTaskHandler(taskService)

	// === Gin ===
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	routes.SetupRoutes(router, authService, authHandler, projectHandler, taskHandler)

	return router, func() {
		for _, c := range closers {
			c()
		}
	}
}

func configureLogging(cfg config.LogConfig) {
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.WithError(err).Warnf("unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
