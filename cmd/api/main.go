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

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/sympcheck/backend/internal/config"
	"github.com/zhouzirui/sympcheck/backend/internal/handler"
	"github.com/zhouzirui/sympcheck/backend/internal/logger"
	"github.com/zhouzirui/sympcheck/backend/internal/service/ai"
	"github.com/zhouzirui/sympcheck/backend/internal/service/cache"
	"github.com/zhouzirui/sympcheck/backend/internal/service/diagnosis"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.App)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	// Initialize AI service
	var inference diagnosis.Inference
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, ai.Options{
			InitialQuestions: cfg.Diagnosis.InitialQuestions,
			MaxTotal:         cfg.Diagnosis.MaxFollowUps,
		}, zapLogger.Named("ai"))
		if err != nil {
			zapLogger.Warn("failed to initialize AI service, continuing without inference - 请检查 Ark 模型相关环境变量", zap.Error(err))
		} else {
			inference = aiService
			zapLogger.Info("AI service initialized successfully", zap.String("model", cfg.AI.Model))
		}
	} else {
		zapLogger.Info("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	detailCache, closeCache := newDetailCache(ctx, cfg.Cache, zapLogger)
	defer closeCache()

	controller := diagnosis.NewController(inference, detailCache, diagnosis.Config{
		Limits: diagnosis.Limits{
			InitialQuestions: cfg.Diagnosis.InitialQuestions,
			MaxTotal:         cfg.Diagnosis.MaxFollowUps,
		},
		CacheTTL: cfg.Cache.TTL,
	}, zapLogger.Named("diagnosis"))

	router := handler.NewRouter(cfg.Server, controller, inference != nil, zapLogger.Named("http"))

	startServer(ctx, cfg.Server, router, zapLogger)
}

// newDetailCache prefers Redis when configured and falls back to process memory.
func newDetailCache(ctx context.Context, cfg config.CacheConfig, zapLogger *zap.Logger) (diagnosis.DetailCache, func()) {
	if !cfg.UseRedis() {
		zapLogger.Info("condition cache: in-memory")
		return cache.NewMemoryStore(), func() {}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	client, err := cache.NewRedisClient(pingCtx, cfg)
	if err != nil {
		zapLogger.Warn("condition cache: redis unavailable, falling back to in-memory", zap.Error(err))
		return cache.NewMemoryStore(), func() {}
	}

	store := cache.NewRedisStore(client)
	zapLogger.Info("condition cache: redis", zap.String("addr", cfg.RedisAddr), zap.Int("db", cfg.RedisDB))
	return store, func() { _ = store.Close() }
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zapLogger *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zapLogger.Info("symptom checker backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zapLogger.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
