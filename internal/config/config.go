package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config aggregates application settings that may be sourced from files or environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Log      LogConfig      `mapstructure:"log"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Clamd    ClamdConfig    `mapstructure:"clamd"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port           int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	InternalSecret string `mapstructure:"internal_secret"`
	CookieDomain   string `mapstructure:"cookie_domain"`
	// AllowedOrigins 为空时 WebSocket 只接受同源请求。
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"gt=0,lte=65535"`
	Name     string `mapstructure:"name" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password" validate:"required"`
	SSLMode  string `mapstructure:"sslmode" validate:"required"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"gt=0,lte=65535"`
}

// Addr 返回 host:port 形式的地址。
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id" validate:"required"`
	SecretAccessKey string `mapstructure:"secret_access_key" validate:"required"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	Bucket          string `mapstructure:"bucket" validate:"required"`
	// PublicEndpoint 用于生成浏览器可访问的预签名链接，为空时沿用 Endpoint。
	PublicEndpoint   string `mapstructure:"public_endpoint" validate:"omitempty,url"`
	Region           string `mapstructure:"region"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// AuthConfig 包含 JWT 密钥与登录保护参数。
type AuthConfig struct {
	PrivateKeyPath        string        `mapstructure:"private_key_path" validate:"required"`
	PublicKeyPath         string        `mapstructure:"public_key_path" validate:"required"`
	AccessTokenTTL        time.Duration `mapstructure:"access_token_ttl" validate:"gt=0"`
	RefreshTokenTTL       time.Duration `mapstructure:"refresh_token_ttl" validate:"gt=0"`
	LoginRateLimitPerHour int           `mapstructure:"login_rate_limit_per_hour" validate:"gte=1"`
	LoginLockThreshold    int           `mapstructure:"login_lock_threshold" validate:"gte=1"`
	LoginLockTTL          time.Duration `mapstructure:"login_lock_ttl" validate:"gt=0"`
}

// LimitsConfig 汇总网格尺寸与各类配额。
type LimitsConfig struct {
	GridMaxRows               int   `mapstructure:"grid_max_rows" validate:"gte=1"`
	GridMaxCols               int   `mapstructure:"grid_max_cols" validate:"gte=1"`
	MaxPublishedResumes       int   `mapstructure:"max_published_resumes" validate:"gte=0"`
	MaxDraftResumes           int   `mapstructure:"max_draft_resumes" validate:"gte=0"`
	MaxEducationAndExperience int   `mapstructure:"max_education_and_experience" validate:"gte=1"`
	AboutMeMaxLength          int   `mapstructure:"about_me_max_length" validate:"gte=1"`
	AvatarMaxBytes            int64 `mapstructure:"avatar_max_bytes" validate:"gte=1"`
}

// LogConfig 控制日志级别与输出格式。
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error dpanic panic fatal"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

// WorkerConfig 控制异步任务与网格快照缓存。
type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency" validate:"gte=1,lte=1000"`
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl" validate:"gt=0"`
}

// ClamdConfig 为空时跳过头像病毒扫描。
type ClamdConfig struct {
	Addr string `mapstructure:"addr"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from environment variables, optionally seeded from .env files.
func Load() (*Config, error) {
	// .env 不存在时忽略。
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// MustLoad wraps Load and exits the process on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "resume_safari")
	v.SetDefault("database.user", "resume_safari")
	v.SetDefault("database.password", "resume_safari")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "avatars")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl", "168h")
	v.SetDefault("auth.login_rate_limit_per_hour", 10)
	v.SetDefault("auth.login_lock_threshold", 5)
	v.SetDefault("auth.login_lock_ttl", "15m")
	v.SetDefault("limits.grid_max_rows", 10)
	v.SetDefault("limits.grid_max_cols", 5)
	v.SetDefault("limits.max_published_resumes", 3)
	v.SetDefault("limits.max_draft_resumes", 5)
	v.SetDefault("limits.max_education_and_experience", 50)
	v.SetDefault("limits.about_me_max_length", 2000)
	v.SetDefault("limits.avatar_max_bytes", 5<<20)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("worker.concurrency", 10)
	v.SetDefault("worker.snapshot_ttl", "24h")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                            "API_PORT",
		"api.internal_secret":                 "INTERNAL_API_SECRET",
		"api.cookie_domain":                   "COOKIE_DOMAIN",
		"api.allowed_origins":                 "WS_ALLOWED_ORIGINS",
		"database.host":                       "DATABASE_HOST",
		"database.port":                       "DATABASE_PORT",
		"database.name":                       "POSTGRES_DB",
		"database.user":                       "POSTGRES_USER",
		"database.password":                   "POSTGRES_PASSWORD",
		"database.sslmode":                    "DATABASE_SSLMODE",
		"redis.host":                          "REDIS_HOST",
		"redis.port":                          "REDIS_PORT",
		"minio.endpoint":                      "MINIO_ENDPOINT",
		"minio.access_key_id":                 "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":             "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                       "MINIO_USE_SSL",
		"minio.bucket":                        "MINIO_BUCKET",
		"minio.public_endpoint":               "MINIO_PUBLIC_ENDPOINT",
		"minio.region":                        "MINIO_REGION",
		"minio.auto_create_bucket":            "MINIO_AUTO_CREATE_BUCKET",
		"auth.private_key_path":               "JWT_PRIVATE_KEY_PATH",
		"auth.public_key_path":                "JWT_PUBLIC_KEY_PATH",
		"auth.access_token_ttl":               "JWT_ACCESS_TOKEN_TTL",
		"auth.refresh_token_ttl":              "JWT_REFRESH_TOKEN_TTL",
		"auth.login_rate_limit_per_hour":      "LOGIN_RATE_LIMIT_PER_HOUR",
		"auth.login_lock_threshold":           "LOGIN_LOCK_THRESHOLD",
		"auth.login_lock_ttl":                 "LOGIN_LOCK_TTL",
		"limits.grid_max_rows":                "GRID_MAX_ROWS",
		"limits.grid_max_cols":                "GRID_MAX_COLS",
		"limits.max_published_resumes":        "MAX_PUBLISHED_RESUMES",
		"limits.max_draft_resumes":            "MAX_DRAFT_RESUMES",
		"limits.max_education_and_experience": "MAX_EDUCATION_AND_EXPERIENCE",
		"limits.about_me_max_length":          "ABOUT_ME_MAX_LENGTH",
		"limits.avatar_max_bytes":             "AVATAR_MAX_BYTES",
		"log.level":                           "LOG_LEVEL",
		"log.format":                          "LOG_FORMAT",
		"worker.concurrency":                  "ASYNQ_CONCURRENCY",
		"worker.snapshot_ttl":                 "GRID_SNAPSHOT_TTL",
		"clamd.addr":                          "CLAMD_ADDR",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}
