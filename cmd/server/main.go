package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cotex-app/cotex/internal/api"
	"github.com/cotex-app/cotex/internal/config"
	"github.com/cotex-app/cotex/internal/db"
	"github.com/cotex-app/cotex/internal/latex"
	"github.com/cotex-app/cotex/internal/middleware"
	"github.com/cotex-app/cotex/internal/observ"
	"github.com/cotex-app/cotex/internal/reconcile"
	"github.com/cotex-app/cotex/internal/render"
	"github.com/cotex-app/cotex/internal/repository/postgres"
	"github.com/cotex-app/cotex/internal/tree"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	// Startup has no deadline; request contexts do.
	database, err := db.New(context.Background(), cfg.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(context.Background()); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}

	// Redis is optional: without it, webhook delivery dedupe is skipped and
	// idempotent reconciliation absorbs replays.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, delivery dedupe disabled", zap.Error(err))
		}
	}

	pool := database.Pool()
	userRepo := postgres.NewUserStore(pool)
	projectRepo := postgres.NewProjectStore(pool)
	folderRepo := postgres.NewFolderStore(pool)
	fileRepo := postgres.NewFileStore(pool)
	noteRepo := postgres.NewNoteStore(pool)
	eventRepo := postgres.NewEventStore(pool)

	treeSvc := tree.NewService(folderRepo, fileRepo)
	renderer := render.New()
	reconciler := reconcile.New(folderRepo, fileRepo, eventRepo, logger)

	compiler, err := latex.New(latex.Config{
		BaseDir: cfg.LatexTempDir,
		Command: cfg.LatexCmd,
		Timeout: cfg.LatexTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("create latex compiler: %w", err)
	}

	authHandler := api.NewAuthHandler(userRepo, cfg.JWTSecret, logger)
	projectHandler := api.NewProjectHandler(projectRepo, fileRepo, treeSvc, compiler, logger)
	folderHandler := api.NewFolderHandler(projectRepo, treeSvc, logger)
	fileHandler := api.NewFileHandler(projectRepo, fileRepo, treeSvc, logger)
	noteHandler := api.NewNoteHandler(noteRepo, fileRepo, folderRepo, projectRepo, renderer, logger)
	webhookHandler := api.NewWebhookHandler(projectRepo, eventRepo, reconciler, rdb, cfg.GithubWebhookSecret, logger)

	srv := gin.New()
	srv.Use(gin.Logger(), gin.Recovery())

	logger.Info("starting cotex",
		zap.String("port", cfg.Port),
		zap.String("env", cfg.Env),
	)

	// Public: health for load balancers, auth for token issuance, webhook
	// because GitHub authenticates with its signature, not a bearer token.
	srv.GET("/v1/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	srv.POST("/v1/auth/signup", authHandler.Signup)
	srv.POST("/v1/auth/login", authHandler.Login)
	srv.POST("/v1/webhooks/github", webhookHandler.Github)

	v1 := srv.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	v1.GET("/projects", projectHandler.List)
	v1.GET("/projects/:id", projectHandler.GetByID)
	v1.GET("/projects/:id/structure", projectHandler.Structure)
	v1.GET("/projects/:id/path", folderHandler.Resolve)
	v1.GET("/projects/:id/files/:fileID", fileHandler.GetByID)
	v1.GET("/projects/:id/notes", noteHandler.ListByProject)
	v1.GET("/notes/:noteID", noteHandler.GetByID)
	v1.GET("/notes/slug/:slug", noteHandler.GetBySlug)
	v1.GET("/tags", noteHandler.ListTags)
	v1.GET("/tags/:slug/notes", noteHandler.ListByTag)
	v1.POST("/projects/:id/compile", projectHandler.Compile)

	// Mutations additionally require a verified account.
	verified := v1.Group("")
	verified.Use(middleware.RequireVerified())
	verified.POST("/projects", projectHandler.Create)
	verified.DELETE("/projects/:id", projectHandler.Delete)
	verified.POST("/projects/:id/github", projectHandler.LinkGithub)
	verified.POST("/projects/:id/folders", folderHandler.Create)
	verified.PUT("/projects/:id/folders/:folderID/parent", folderHandler.Move)
	verified.DELETE("/projects/:id/folders/:folderID", folderHandler.Delete)
	verified.POST("/projects/:id/files", fileHandler.Create)
	verified.PUT("/projects/:id/files/:fileID", fileHandler.UpdateContent)
	verified.DELETE("/projects/:id/files/:fileID", fileHandler.Delete)
	verified.POST("/notes", noteHandler.Create)
	verified.PUT("/notes/:noteID", noteHandler.Update)
	verified.DELETE("/notes/:noteID", noteHandler.Delete)

	return srv.Run(":" + cfg.Port)
}
