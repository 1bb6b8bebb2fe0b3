// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	ginprometheus "github.com/zsais/go-gin-prometheus"

	"github.com/yourusername/literacy-poster/internal/config"
	"github.com/yourusername/literacy-poster/internal/history"
	"github.com/yourusername/literacy-poster/internal/jobs"
	"github.com/yourusername/literacy-poster/internal/kie"
	"github.com/yourusername/literacy-poster/internal/logging"
	"github.com/yourusername/literacy-poster/internal/middleware"
	"github.com/yourusername/literacy-poster/internal/poster"
	"github.com/yourusername/literacy-poster/internal/session"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		logger := logging.New("production")
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	logger := logging.New(cfg.AppEnv)

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(logging.GinLogger(logger), gin.Recovery())

	// Prometheus の /metrics を登録
	ginprometheus.NewPrometheus("gin").Use(router)

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	if cfg.AllowAllOrigins() {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins()
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		logging.RequestIDHeader,
	}
	corsConfig.ExposeHeaders = []string{logging.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	// 匿名セッション（履歴の保存単位）
	router.Use(session.Middleware(cfg.SessionSecret, cfg.GinMode == gin.ReleaseMode)...)

	app, err := newApp(cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	limiter.StartSweeper(ctx.Done())

	// ルーティングの設定
	setupRoutes(router, cfg, app, limiter)

	if app.manager != nil {
		app.manager.StartWorkers()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
	}

	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Str("mode", cfg.GinMode).
			Bool("watcher", app.manager != nil).
			Msg("starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	if !cfg.HasAPIKey() {
		logger.Warn().Msg("API_KEY is not set; generation requests will fail with CONFIG_ERROR")
	}

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http server shutdown failed")
	}
	app.close(shutdownCtx)
}

// app はリクエスト処理に必要な依存関係をまとめたものです。
type app struct {
	svc     *poster.Service
	history *history.Service
	manager *jobs.Manager
	closers []func() error
	logger  *zerolog.Logger
}

func newApp(cfg *config.Config, logger *zerolog.Logger) (*app, error) {
	client := kie.NewClient(kie.Options{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.KieBaseURL,
		Model:   cfg.KieModel,
		Timeout: cfg.KieHTTPTimeout,
		Logger:  logger,
	})
	poller := jobs.NewPoller(client, jobs.WithLogger(logger))
	orch := jobs.NewOrchestrator(client, poller, cfg.BatchConcurrency, logger)
	wait := jobs.WaitOptions{MaxRetries: cfg.PollMaxRetries, Interval: cfg.PollInterval}

	store, closeStore, err := setupHistoryStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	hist := history.NewService(store, history.DefaultCapacity)

	a := &app{history: hist, logger: logger}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	opts := []poster.ServiceOption{poster.WithServiceLogger(logger)}
	if cfg.WatcherEnabled {
		manager, err := setupWatcher(cfg, poller, hist, wait, logger)
		if err != nil {
			return nil, err
		}
		a.manager = manager
		opts = append(opts, poster.WithScheduler(manager))
	}

	a.svc = poster.NewService(orch, jobs.NewCachedReader(client, cfg.StatusCacheTTL), poster.Settings{
		APIKeyConfigured: cfg.HasAPIKey(),
		Wait:             wait,
		MaxBatchItems:    cfg.MaxBatchItems,
		CallbackURL:      cfg.KieCallbackURL,
	}, opts...)
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.manager != nil {
		if err := a.manager.Shutdown(ctx); err != nil {
			a.logger.Error().Err(err).Msg("watcher shutdown failed")
		}
	}
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Error().Err(err).Msg("failed to close resource")
		}
	}
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"message":   "儿童识字小报生成器 API 运行正常",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// setupRoutes は API グループと静的ファイル配信の配線を行います。
func setupRoutes(router *gin.Engine, cfg *config.Config, a *app, limiter *middleware.RateLimiter) {
	api := router.Group("/api")
	api.GET("/health", handleHealth)
	poster.RegisterRoutes(api, a.svc, a.history, limiter.Handler())

	var fallback gin.HandlerFunc
	if cfg.StaticDir != "" {
		fallback = spaHandler(cfg.StaticDir)
	}
	router.NoRoute(poster.NotFoundHandler(fallback))
}

// spaHandler は静的ファイルを返し、存在しないパスには index.html を返します。
func spaHandler(dir string) gin.HandlerFunc {
	root := http.Dir(dir)
	fileServer := http.FileServer(root)
	index := filepath.Join(dir, "index.html")

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		if f, err := root.Open(c.Request.URL.Path); err == nil {
			stat, statErr := f.Stat()
			_ = f.Close()
			if statErr == nil && !stat.IsDir() {
				fileServer.ServeHTTP(c.Writer, c.Request)
				return
			}
		}
		if _, err := os.Stat(index); err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(index)
	}
}
