package config

import (
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/ffmesync/internal/logger"
	"github.com/hitoshi/ffmesync/internal/security"
)

// 利用者ストアの種別。
const (
	StoreBackendPostgres = "postgres"
	StoreBackendRedis    = "redis"
)

// 会員データ取得元のAPI世代。
const (
	SourceGraphQL  = "graphql"
	SourceExtranet = "extranet"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Server
	ServerPort string
	LogLevel   slog.Level

	// 利用者ストア
	StoreBackend  string
	RedisURL      string
	UserKeyPrefix string

	// 会員データ取得元
	SourceGeneration        string
	MyFFMEAPIURL            string
	MyFFMEAuthURL           string
	MyFFMEUsername          string
	MyFFMEPassword          string
	MyFFMERequestsPerSecond float64
	ExtranetAPIURL          string
	ExtranetAPIKey          string
	UpstreamTimeout         time.Duration

	// 同期
	SyncStructureIDs []int
	SyncInterval     time.Duration
	SyncTimeout      time.Duration

	// 競技成績
	ResultsURL     string
	ResultsTimeout time.Duration

	// 料金表
	FeeCacheTTL time.Duration

	// HTTP API
	AdminToken         string
	CORSAllowedOrigin  string
	RateLimitPerMinute int
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や、値の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.StoreBackend = strings.ToLower(getEnvString("STORE_BACKEND", StoreBackendPostgres))
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.StoreBackend == StoreBackendRedis && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Enumerated and parsed fields
	var err error
	if cfg.StoreBackend != StoreBackendPostgres && cfg.StoreBackend != StoreBackendRedis {
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q: %q", StoreBackendPostgres, StoreBackendRedis, cfg.StoreBackend)
	}

	cfg.SourceGeneration = strings.ToLower(getEnvString("SOURCE_GENERATION", SourceGraphQL))
	if cfg.SourceGeneration != SourceGraphQL && cfg.SourceGeneration != SourceExtranet {
		return nil, fmt.Errorf("SOURCE_GENERATION must be %q or %q: %q", SourceGraphQL, SourceExtranet, cfg.SourceGeneration)
	}

	if cfg.LogLevel, err = logger.ParseLevel(os.Getenv("LOG_LEVEL")); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	if cfg.SyncStructureIDs, err = getEnvIntList("SYNC_STRUCTURE_IDS"); err != nil {
		return nil, fmt.Errorf("invalid SYNC_STRUCTURE_IDS: %w", err)
	}

	cfg.ResultsURL = os.Getenv("RESULTS_URL")
	if cfg.ResultsURL != "" {
		if err := security.ValidateURL(cfg.ResultsURL); err != nil {
			return nil, fmt.Errorf("invalid RESULTS_URL: %w", err)
		}
	}

	// Optional fields with defaults
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.UserKeyPrefix = getEnvString("USER_KEY_PREFIX", "user:")
	cfg.MyFFMEAPIURL = os.Getenv("MYFFME_API_URL")
	cfg.MyFFMEAuthURL = os.Getenv("MYFFME_AUTH_URL")
	cfg.MyFFMEUsername = os.Getenv("MYFFME_USERNAME")
	cfg.MyFFMEPassword = os.Getenv("MYFFME_PASSWORD")
	cfg.MyFFMERequestsPerSecond = getEnvFloat("MYFFME_REQUESTS_PER_SECOND", 5)
	cfg.ExtranetAPIURL = os.Getenv("EXTRANET_API_URL")
	cfg.ExtranetAPIKey = os.Getenv("EXTRANET_API_KEY")
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 6*time.Hour)
	cfg.SyncTimeout = getEnvDuration("SYNC_TIMEOUT", 10*time.Minute)
	cfg.ResultsTimeout = getEnvDuration("RESULTS_TIMEOUT", 10*time.Second)
	cfg.FeeCacheTTL = getEnvDuration("FEE_CACHE_TTL", 5*time.Minute)
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "")
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 60)

	return cfg, nil
}

// ValidateSync は同期を実行するモード（worker, sync）に必要な設定が揃っているかを検証する。
func (c *Config) ValidateSync() error {
	var missing []string
	switch c.SourceGeneration {
	case SourceGraphQL:
		for key, v := range map[string]string{
			"MYFFME_API_URL":  c.MyFFMEAPIURL,
			"MYFFME_AUTH_URL": c.MyFFMEAuthURL,
			"MYFFME_USERNAME": c.MyFFMEUsername,
			"MYFFME_PASSWORD": c.MyFFMEPassword,
		} {
			if v == "" {
				missing = append(missing, key)
			}
		}
	case SourceExtranet:
		if c.ExtranetAPIURL == "" {
			missing = append(missing, "EXTRANET_API_URL")
		}
		if c.ExtranetAPIKey == "" {
			missing = append(missing, "EXTRANET_API_KEY")
		}
	}
	if len(c.SyncStructureIDs) == 0 {
		missing = append(missing, "SYNC_STRUCTURE_IDS")
	}

	if len(missing) > 0 {
		// mapの走査順に依存しないよう並べ替える
		slices.Sort(missing)
		return fmt.Errorf("required environment variables for %s sync are not set: %v", c.SourceGeneration, missing)
	}
	return nil
}

// SyncEnabled は同期に必要な設定が揃っているかを返す。
func (c *Config) SyncEnabled() bool {
	return c.ValidateSync() == nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// getEnvIntList はカンマ区切りの整数リストを読み込む。未設定の場合はnilを返す。
func getEnvIntList(key string) ([]int, error) {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i, err := strconv.Atoi(part)
		if err != nil || i <= 0 {
			return nil, fmt.Errorf("%q is not a positive integer", part)
		}
		out = append(out, i)
	}
	return out, nil
}
