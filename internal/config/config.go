package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 聚合服务启动需要的关键配置。
type Config struct {
	HTTPPort  string
	BaseURL   string
	LogLevel  string
	LogFormat string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnectRetries  int

	// 元数据存储: "postgres" 或 "memory"
	StoreDriver string

	// 鉴权配置
	AuthMode          string   // "none"、"apikey" 或 "supabase"
	APIKeys           []string // 有效的 API Keys 列表
	SeedOwners        []string // 启动时登记的用户 id，AUTH_MODE=none 时上传前必须登记
	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string
	OwnerCacheSize    int
	OwnerCacheTTL     time.Duration

	// 存储配置
	StorageDriver     string // "local"、"s3"、"aws" 或 "memory"
	StorageDir        string
	StoragePrefix     string
	BlobSigningSecret string
	SignedURLTTL      time.Duration
	BlobTimeout       time.Duration
	S3Endpoint        string // S3/MinIO 端点，不含协议
	S3AccessKey       string
	S3SecretKey       string
	S3Bucket          string
	S3Region          string
	S3UseSSL          bool // 是否使用 HTTPS
	S3PathStyle       bool // 是否使用路径风格访问（MinIO 需要设为 true）
	AWSEndpoint       string

	// 分享策略
	MaxUploadBytes       int64
	MaxBatchFiles        int
	AllowedExtensions    []string
	DefaultRetention     time.Duration
	MaxExpiryHours       int
	ShortCodeMinLength   int
	ShortCodeMaxAttempts int
	PasswordAlgorithm    string // "argon2id" 或 "bcrypt"

	// 统计
	StatsDriver   string // "postgres"、"memory" 或 "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

var defaults = map[string]any{
	"PORT":                   "8080",
	"BASE_URL":               "http://localhost:8080",
	"LOG_LEVEL":              "info",
	"LOG_FORMAT":             "json",
	"DB_HOST":                "127.0.0.1",
	"DB_PORT":                5432,
	"DB_USER":                "dropshare",
	"DB_PASSWORD":            "dropshare",
	"DB_NAME":                "dropshare",
	"DB_SSL_MODE":            "disable",
	"DB_MAX_OPEN_CONNS":      15,
	"DB_MAX_IDLE_CONNS":      5,
	"DB_CONN_MAX_LIFETIME":   30 * time.Minute,
	"DB_CONNECT_RETRIES":     5,
	"STORE_DRIVER":           "postgres",
	"AUTH_MODE":              "apikey",
	"API_KEYS":               "dev-api-key-123456",
	"SEED_OWNERS":            "",
	"OWNER_CACHE_SIZE":       1024,
	"OWNER_CACHE_TTL":        5 * time.Minute,
	"STORAGE_DRIVER":         "local",
	"STORAGE_DIR":            "./data",
	"STORAGE_PREFIX":         "file-share-app",
	"BLOB_SIGNING_SECRET":    "dev-blob-signing-secret",
	"SIGNED_URL_TTL":         time.Hour,
	"BLOB_TIMEOUT":           30 * time.Second,
	"S3_ENDPOINT":            "localhost:9000",
	"S3_ACCESS_KEY":          "minioadmin",
	"S3_SECRET_KEY":          "minioadmin",
	"S3_BUCKET":              "dropshare",
	"S3_REGION":              "us-east-1",
	"S3_USE_SSL":             false,
	"S3_PATH_STYLE":          true,
	"MAX_UPLOAD_BYTES":       int64(10 * 1024 * 1024),
	"MAX_BATCH_FILES":        10,
	"DEFAULT_RETENTION":      240 * time.Hour,
	"MAX_EXPIRY_HOURS":       24 * 365,
	"SHORTCODE_MIN_LENGTH":   7,
	"SHORTCODE_MAX_ATTEMPTS": 5,
	"PASSWORD_ALGORITHM":     "argon2id",
	"STATS_DRIVER":           "postgres",
	"REDIS_ADDR":             "127.0.0.1:6379",
	"REDIS_DB":               0,
}

// Load 从环境变量（以及可选的 .env 文件）加载配置，并提供默认值。
func Load() (*Config, error) {
	// .env 只用于本地开发
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// 没有默认值的键需要显式绑定
	for _, key := range []string{
		"SUPABASE_URL", "SUPABASE_ANON_KEY", "SUPABASE_JWT_SECRET",
		"AWS_ENDPOINT", "ALLOWED_EXTENSIONS", "REDIS_PASSWORD",
	} {
		_ = v.BindEnv(key)
	}

	cfg := &Config{
		HTTPPort:             v.GetString("PORT"),
		BaseURL:              strings.TrimRight(v.GetString("BASE_URL"), "/"),
		LogLevel:             strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:            strings.ToLower(v.GetString("LOG_FORMAT")),
		DBHost:               v.GetString("DB_HOST"),
		DBPort:               v.GetInt("DB_PORT"),
		DBUser:               v.GetString("DB_USER"),
		DBPassword:           v.GetString("DB_PASSWORD"),
		DBName:               v.GetString("DB_NAME"),
		DBSSLMode:            v.GetString("DB_SSL_MODE"),
		DBMaxOpenConns:       v.GetInt("DB_MAX_OPEN_CONNS"),
		DBMaxIdleConns:       v.GetInt("DB_MAX_IDLE_CONNS"),
		DBConnMaxLifetime:    v.GetDuration("DB_CONN_MAX_LIFETIME"),
		DBConnectRetries:     v.GetInt("DB_CONNECT_RETRIES"),
		StoreDriver:          strings.ToLower(v.GetString("STORE_DRIVER")),
		AuthMode:             strings.ToLower(v.GetString("AUTH_MODE")),
		APIKeys:              parseList(v.GetString("API_KEYS")),
		SeedOwners:           parseList(v.GetString("SEED_OWNERS")),
		SupabaseURL:          v.GetString("SUPABASE_URL"),
		SupabaseAnonKey:      v.GetString("SUPABASE_ANON_KEY"),
		SupabaseJWTSecret:    v.GetString("SUPABASE_JWT_SECRET"),
		OwnerCacheSize:       v.GetInt("OWNER_CACHE_SIZE"),
		OwnerCacheTTL:        v.GetDuration("OWNER_CACHE_TTL"),
		StorageDriver:        strings.ToLower(v.GetString("STORAGE_DRIVER")),
		StorageDir:           v.GetString("STORAGE_DIR"),
		StoragePrefix:        strings.Trim(v.GetString("STORAGE_PREFIX"), "/"),
		BlobSigningSecret:    v.GetString("BLOB_SIGNING_SECRET"),
		SignedURLTTL:         v.GetDuration("SIGNED_URL_TTL"),
		BlobTimeout:          v.GetDuration("BLOB_TIMEOUT"),
		S3Endpoint:           v.GetString("S3_ENDPOINT"),
		S3AccessKey:          v.GetString("S3_ACCESS_KEY"),
		S3SecretKey:          v.GetString("S3_SECRET_KEY"),
		S3Bucket:             v.GetString("S3_BUCKET"),
		S3Region:             v.GetString("S3_REGION"),
		S3UseSSL:             v.GetBool("S3_USE_SSL"),
		S3PathStyle:          v.GetBool("S3_PATH_STYLE"),
		AWSEndpoint:          v.GetString("AWS_ENDPOINT"),
		MaxUploadBytes:       v.GetInt64("MAX_UPLOAD_BYTES"),
		MaxBatchFiles:        v.GetInt("MAX_BATCH_FILES"),
		AllowedExtensions:    normalizeExtensions(parseList(v.GetString("ALLOWED_EXTENSIONS"))),
		DefaultRetention:     v.GetDuration("DEFAULT_RETENTION"),
		MaxExpiryHours:       v.GetInt("MAX_EXPIRY_HOURS"),
		ShortCodeMinLength:   v.GetInt("SHORTCODE_MIN_LENGTH"),
		ShortCodeMaxAttempts: v.GetInt("SHORTCODE_MAX_ATTEMPTS"),
		PasswordAlgorithm:    strings.ToLower(v.GetString("PASSWORD_ALGORITHM")),
		StatsDriver:          strings.ToLower(v.GetString("STATS_DRIVER")),
		RedisAddr:            v.GetString("REDIS_ADDR"),
		RedisPassword:        v.GetString("REDIS_PASSWORD"),
		RedisDB:              v.GetInt("REDIS_DB"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if cfg.StorageDriver == "local" {
		if err := ensureDir(cfg.StorageDir); err != nil {
			return nil, fmt.Errorf("确保存储目录失败: %w", err)
		}
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.SignedURLTTL <= 0 {
		errs = append(errs, fmt.Errorf("SIGNED_URL_TTL must be positive"))
	}
	if c.DefaultRetention <= 0 {
		errs = append(errs, fmt.Errorf("DEFAULT_RETENTION must be positive"))
	}
	if c.ShortCodeMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("SHORTCODE_MAX_ATTEMPTS must be positive"))
	}
	switch c.StoreDriver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	switch c.StorageDriver {
	case "local", "s3", "aws", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	switch c.AuthMode {
	case "none", "apikey", "supabase":
	default:
		errs = append(errs, fmt.Errorf("unknown AUTH_MODE %q", c.AuthMode))
	}
	switch c.StatsDriver {
	case "postgres", "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown STATS_DRIVER %q", c.StatsDriver))
	}
	// 非 redis 的统计直接写在元数据存储的用户表里
	if c.StatsDriver != "redis" && c.StatsDriver != c.StoreDriver {
		errs = append(errs, fmt.Errorf("STATS_DRIVER=%s requires STORE_DRIVER=%s", c.StatsDriver, c.StatsDriver))
	}
	return errors.Join(errs...)
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("路径 %s 已存在但不是目录", path)
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0o755)
	}

	return err
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}

	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func normalizeExtensions(items []string) []string {
	for i, ext := range items {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		items[i] = ext
	}
	return items
}

// PostgresDSN 生成标准 postgres:// 连接串，供数据访问层直接使用。
func (c *Config) PostgresDSN() string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   c.DBName,
	}

	q := url.Values{}
	if c.DBSSLMode != "" {
		q.Set("sslmode", c.DBSSLMode)
	}
	u.RawQuery = q.Encode()

	return u.String()
}
