package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"harmoni/internal/api"
	"harmoni/internal/auth"
	"harmoni/internal/config"
	"harmoni/internal/logger"
	"harmoni/internal/observability"
	"harmoni/internal/redis"
	"harmoni/internal/service/ai"
	"harmoni/internal/service/assessment"
	"harmoni/internal/service/conversation"
	"harmoni/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("HARMONI_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zlog, err := logger.New(cfg.BasicConfig.LogLevel, cfg.BasicConfig.Development)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	metrics := observability.NewCollector("harmoni")

	db, err := storage.Open(cfg.Database)
	if err != nil {
		zlog.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database.Driver); err != nil {
		zlog.Fatal("migrate database", zap.Error(err))
	}
	zlog.Info("database ready", zap.String("driver", cfg.Database.Driver))

	rdb := redis.NewRedisClient(cfg.Redis)
	defer rdb.Close()
	pingCtx, cancelPing := context.WithTimeout(context.Background(), cfg.Redis.Timeout())
	if err := rdb.Ping(pingCtx); err != nil {
		zlog.Warn("redis unreachable, conversation history will be degraded", zap.Error(err))
	}
	cancelPing()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var generator ai.Generator
	chatModel, err := ai.NewChatModel(ctx, cfg.Chat)
	if err != nil {
		zlog.Warn("chat model unavailable, replies will use fallbacks",
			zap.String("provider", cfg.Chat.Provider), zap.Error(err))
		generator = ai.Unavailable(err)
	} else {
		breakerCfg := ai.DefaultBreakerConfig(cfg.Chat.Provider)
		if cfg.Chat.BreakerTimeoutSeconds > 0 {
			breakerCfg.Timeout = time.Duration(cfg.Chat.BreakerTimeoutSeconds) * time.Second
		}
		generator = ai.NewBreakerGenerator(ai.NewChatModelGenerator(chatModel, cfg.Chat), breakerCfg, zlog)
	}

	orchestrator := ai.NewOrchestrator(generator, zlog,
		ai.WithCallTimeout(cfg.Chat.Timeout()),
		ai.WithMetrics(metrics),
	)
	assessments := assessment.NewService(db, cfg.Database.Driver, zlog, metrics)
	conversations := conversation.NewService(
		conversation.NewRedisStore(rdb, cfg.Redis.ConversationTTL()),
		zlog,
		conversation.WithTimeout(cfg.Redis.Timeout()),
		conversation.WithMetrics(metrics),
	)

	handlers := api.NewHandler(api.Dependencies{
		Chat:          orchestrator,
		Assessments:   assessments,
		Conversations: conversations,
		Auth:          auth.NewService(cfg.Auth.JWTSecret, cfg.BasicConfig.AdminToken),
		Memory:        rdb,
		Metrics:       metrics,
		Logger:        zlog,
	})

	if cfg.BasicConfig.GinMode != "" {
		gin.SetMode(cfg.BasicConfig.GinMode)
	}
	router := api.NewRouter(handlers)

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.BasicConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Token", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	})

	srv := &http.Server{
		Addr:              cfg.BasicConfig.ServerAddress,
		Handler:           corsHandler(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
