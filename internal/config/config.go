// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL,required,notEmpty"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	BaseURL    string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Session
	SessionMaxAge          int           `env:"SESSION_MAX_AGE" envDefault:"604800"`
	SessionCleanupInterval time.Duration `env:"SESSION_CLEANUP_INTERVAL" envDefault:"1h"`

	// Cookie（CookieSecureはBASE_URLから導出する）
	CookieSecure bool
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS（カンマ区切りで複数オリジンを指定できる）
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Upload
	UploadMaxBytes int64 `env:"UPLOAD_MAX_BYTES" envDefault:"16777216"`

	// Rate Limit（ユーザーごとの1分あたりリクエスト数）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitHeavy   int `env:"RATE_LIMIT_HEAVY" envDefault:"20"`

	// Text model
	OpenAI               OpenAI `envPrefix:"OPENAI_"`
	TranslateDefaultLang string `env:"TRANSLATE_DEFAULT_LANG" envDefault:"ar"`

	// Blob storage
	MinIO MinIO `envPrefix:"MINIO_"`
}

// OpenAI はOpenAI互換APIの設定。APIKeyが空の場合テキスト機能は無効。
type OpenAI struct {
	APIKey  string `env:"API_KEY"`
	BaseURL string `env:"BASE_URL"`
	Model   string `env:"MODEL" envDefault:"gpt-4o-mini"`
}

// MinIO はPDF原本の保存先設定。Endpointが空の場合は原本を保存しない。
type MinIO struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"studyapp-uploads"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// Enabled はMinIOへの保存が有効かを返す。
func (m MinIO) Enabled() bool {
	return m.Endpoint != ""
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗しました: %w", err)
	}

	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SlogLevel はLOG_LEVELをslog.Levelに変換する。
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) validate() error {
	var invalid []string
	if c.SessionMaxAge <= 0 {
		invalid = append(invalid, "SESSION_MAX_AGE")
	}
	if c.SessionCleanupInterval <= 0 {
		invalid = append(invalid, "SESSION_CLEANUP_INTERVAL")
	}
	if c.UploadMaxBytes <= 0 {
		invalid = append(invalid, "UPLOAD_MAX_BYTES")
	}
	if c.RateLimitGeneral <= 0 {
		invalid = append(invalid, "RATE_LIMIT_GENERAL")
	}
	if c.RateLimitHeavy <= 0 {
		invalid = append(invalid, "RATE_LIMIT_HEAVY")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		invalid = append(invalid, "LOG_LEVEL")
	}
	if len(invalid) > 0 {
		return fmt.Errorf("環境変数の値が不正です: %v", invalid)
	}
	return nil
}
