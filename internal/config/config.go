// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port             string        // APIサーバーのポート番号
	GinMode          string        // Ginの実行モード (debug, release, test)
	AppEnv           string        // 実行環境 (development, production)
	StaticDir        string        // フロントエンドの静的ファイル配置先（空なら配信しない）
	HTTPWriteTimeout time.Duration // 0 の場合は無制限（同期生成は長時間ブロックするため）

	// kie.ai 設定
	APIKey         string        // Nano Banana Pro API キー
	KieBaseURL     string        // ジョブAPIのベースURL
	KieModel       string        // 生成モデル名
	KieHTTPTimeout time.Duration // 1リクエストあたりのタイムアウト
	KieCallbackURL string        // 完了通知先（任意）

	// ポーリング設定
	PollMaxRetries int           // 状態取得の最大回数
	PollInterval   time.Duration // 状態取得の間隔

	// バッチ設定
	BatchConcurrency int // 同時に処理するバッチ項目数
	MaxBatchItems    int // 1リクエストで受け付ける最大項目数

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り、"*" で全許可）

	// セッション / 履歴設定
	SessionSecret  string        // セッションクッキー署名用の秘密鍵
	RedisURL       string        // 履歴ストアとウォッチャー用のRedis接続URL
	HistoryTTL     time.Duration // セッション履歴の保持期間
	StatusCacheTTL time.Duration // 終端状態スナップショットのキャッシュ期間

	// ウォッチャー設定
	WatcherEnabled     bool // 非同期生成の完了監視をバックグラウンドで行うか
	WatcherConcurrency int  // Asynq ワーカーの並列数

	// レート制限
	RateLimitRPS   float64
	RateLimitBurst int
}

// Load は環境変数から設定を読み込みます。
// .env.local / .env ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	config := &Config{
		Port:             getEnv("PORT", "3000"),
		GinMode:          getEnv("GIN_MODE", "debug"),
		AppEnv:           getEnv("APP_ENV", "development"),
		StaticDir:        getEnv("STATIC_DIR", ""),
		HTTPWriteTimeout: time.Duration(getEnvAsInt("HTTP_WRITE_TIMEOUT_SECONDS", 0)) * time.Second,

		APIKey:         strings.TrimSpace(getEnv("API_KEY", "")),
		KieBaseURL:     getEnv("KIE_BASE_URL", "https://api.kie.ai/api/v1/jobs"),
		KieModel:       getEnv("KIE_MODEL", "nano-banana-pro"),
		KieHTTPTimeout: time.Duration(getEnvAsInt("KIE_TIMEOUT_SECONDS", 30)) * time.Second,
		KieCallbackURL: getEnv("KIE_CALLBACK_URL", ""),

		PollMaxRetries: getEnvAsInt("POLL_MAX_RETRIES", 60),
		PollInterval:   time.Duration(getEnvAsInt("POLL_INTERVAL_MS", 2000)) * time.Millisecond,

		BatchConcurrency: getEnvAsInt("BATCH_CONCURRENCY", 4),
		MaxBatchItems:    getEnvAsInt("MAX_BATCH_ITEMS", 20),

		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),

		SessionSecret:  getEnv("SESSION_SECRET", ""),
		RedisURL:       getEnv("REDIS_URL", ""),
		HistoryTTL:     time.Duration(getEnvAsInt("HISTORY_TTL_HOURS", 24*30)) * time.Hour,
		StatusCacheTTL: time.Duration(getEnvAsInt("STATUS_CACHE_MINUTES", 30)) * time.Minute,

		WatcherEnabled:     getEnvAsBool("WATCHER_ENABLED", false),
		WatcherConcurrency: getEnvAsInt("WATCHER_CONCURRENCY", 4),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 2),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	// godotenv は既存の環境変数を上書きしないため、優先度の高い順に読み込む
	for _, name := range []string{".env.local", ".env", filepath.Join("config", ".env")} {
		_ = godotenv.Load(name)
	}
}

// Validate は設定の妥当性を検証します。
// API キーの欠如はここではエラーにせず、リクエスト時に設定エラーとして返します。
func (c *Config) Validate() error {
	if c.PollMaxRetries < 0 {
		return fmt.Errorf("POLL_MAX_RETRIES must be >= 0")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("POLL_INTERVAL_MS must be >= 0")
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("BATCH_CONCURRENCY must be > 0")
	}
	if c.MaxBatchItems <= 0 {
		return fmt.Errorf("MAX_BATCH_ITEMS must be > 0")
	}
	if c.WatcherEnabled && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required when WATCHER_ENABLED is true")
	}
	if c.GinMode == "release" && c.SessionSecret == "" {
		return fmt.Errorf("SESSION_SECRET is required in release mode")
	}
	return nil
}

// HasAPIKey は API キーが設定されているかを返します。
func (c *Config) HasAPIKey() bool {
	return c.APIKey != ""
}

// AllowAllOrigins は CORS で全オリジンを許可するかを返します。
func (c *Config) AllowAllOrigins() bool {
	for _, o := range c.AllowedOrigins() {
		if o == "*" {
			return true
		}
	}
	return false
}

// AllowedOrigins は CORS 許可オリジンを配列で返します。
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
