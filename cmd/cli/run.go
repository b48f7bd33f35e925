package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"tiketai/internal/config"
	"tiketai/internal/handlers"
	"tiketai/internal/middleware"
	"tiketai/internal/observability"
	"tiketai/internal/services"
	"tiketai/internal/store"
	"tiketai/pkg/gemini"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the tiketai server",
	Run: func(cmd *cobra.Command, args []string) {
		RunServer()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// RunServer 组装并运行整个服务
func RunServer() {
	cfg := config.Load()

	if err := config.InitLogger(cfg); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}
	appLogger := logrus.StandardLogger()

	// 没有凭证就拒绝启动
	if err := cfg.Validate(); err != nil {
		appLogger.Fatalf("Invalid configuration: %v", err)
	}

	// 追踪
	ctx := context.Background()
	shutdownTracing, err := observability.SetupTracing(ctx, cfg)
	if err != nil {
		appLogger.Fatalf("Failed to setup tracing: %v", err)
	}

	// 数据库
	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
		cfg.Database.Host, cfg.Database.User, cfg.Database.Password, cfg.Database.Name, cfg.Database.Port,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		appLogger.Fatalf("Failed to connect to database: %v", err)
	}
	if cfg.Monitoring.Tracing.Enabled {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			appLogger.Warnf("Failed to enable gorm tracing: %v", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	}

	gormStore := store.NewGormStore(db)
	if err := gormStore.AutoMigrate(); err != nil {
		appLogger.Fatalf("Failed to migrate database: %v", err)
	}

	// 分析管线
	keyPool, err := services.NewKeyPool(cfg.AI.APIKeys)
	if err != nil {
		appLogger.Fatalf("Failed to build key pool: %v", err)
	}
	geminiClient := gemini.NewClient(&gemini.Config{
		BaseURL: cfg.AI.BaseURL,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.Timeout,
	}, appLogger)
	classifier := services.NewClassifierClient(
		geminiClient, keyPool,
		cfg.AI.RetryBudget, cfg.AI.RetryBackoff, cfg.AI.RotationBudget,
		appLogger,
	)

	hub := services.NewEventHub()
	go hub.Run()

	producer := services.NewEventProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, appLogger)

	analyzer := services.NewAnalysisService(gormStore, gormStore, classifier, producer, hub, appLogger)

	watcher := services.NewActivityWatcher(analyzer, hub, cfg.Watcher.DebounceWindow, appLogger)
	watcher.Start()

	ticketService := services.NewTicketService(gormStore, gormStore, hub, watcher, appLogger)

	// HTTP
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	if cfg.Monitoring.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Monitoring.Tracing.ServiceName))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	handlers.RegisterTicketRoutes(api, handlers.NewTicketHandler(ticketService, analyzer, appLogger))
	handlers.RegisterAnalysisRoutes(api, handlers.NewAnalysisHandler(analyzer, keyPool, appLogger))
	api.GET("/ws", hub.HandleWebSocket)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}

	go func() {
		appLogger.Infof("Starting server on %s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	watcher.Stop()
	if err := producer.Close(); err != nil {
		appLogger.Errorf("Failed to close event producer: %v", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Errorf("Server forced to shutdown: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Errorf("Failed to shutdown tracing: %v", err)
	}

	appLogger.Info("Server exited")
}

// corsMiddleware CORS 中间件
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
