package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/paperdesk/paperdesk/internal/paper"
	"github.com/paperdesk/paperdesk/pkg/logger"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Papers    PapersConfig
	Users     UsersConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// MaxUploadBytes caps multipart uploads.
	MaxUploadBytes int64
}

// MongoDBConfig: an empty URI selects the in-memory stores.
type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
	// ConnectAttempts is the number of tries, with doubling backoff, at startup.
	ConnectAttempts int
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr is host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

// MinIOConfig configures the attachment blob mirror. An empty endpoint
// disables it.
type MinIOConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	UseSSL     bool
	Bucket     string
	PresignTTL time.Duration
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type PapersConfig struct {
	// Statuses is the accepted status set; the first entry is the initial status.
	Statuses []string
	// LockTTL bounds how long a Redis mutation lock is held.
	LockTTL time.Duration
	// LockWait bounds how long a request waits for the lock.
	LockWait time.Duration
	// MaxAttachmentBytes caps the total image bytes stored per paper.
	MaxAttachmentBytes int
}

type UsersConfig struct {
	// SeedFile is a YAML file of accounts loaded at startup.
	SeedFile string
	// AdminUsername and AdminPassword create an admin account at startup
	// when the password is set.
	AdminUsername string
	AdminPassword string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_MAX_UPLOAD_MB", 32)
	v.SetDefault("MONGODB_DATABASE", "paperdesk")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("MONGODB_CONNECT_ATTEMPTS", 5)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("MINIO_BUCKET", "paperdesk")
	v.SetDefault("MINIO_PRESIGN_TTL", 15)
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", 60)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("PAPER_STATUSES", strings.Join(defaultStatuses(), ","))
	v.SetDefault("PAPER_LOCK_TTL", 30)
	v.SetDefault("PAPER_LOCK_WAIT", 10)
	v.SetDefault("PAPER_MAX_ATTACHMENT_MB", 12)
	v.SetDefault("USERS_SEED_FILE", "")
	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "")

	cfg := &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Host:           v.GetString("SERVER_HOST"),
			Environment:    v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: v.GetInt64("SERVER_MAX_UPLOAD_MB") << 20,
		},
		MongoDB: MongoDBConfig{
			URI:             v.GetString("MONGODB_URI"),
			Database:        v.GetString("MONGODB_DATABASE"),
			Timeout:         time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
			ConnectAttempts: v.GetInt("MONGODB_CONNECT_ATTEMPTS"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:   v.GetString("MINIO_ENDPOINT"),
			AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
			SecretKey:  v.GetString("MINIO_SECRET_KEY"),
			UseSSL:     v.GetBool("MINIO_USE_SSL"),
			Bucket:     v.GetString("MINIO_BUCKET"),
			PresignTTL: time.Duration(v.GetInt("MINIO_PRESIGN_TTL")) * time.Minute,
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			AccessTokenTTL: time.Duration(v.GetInt("JWT_ACCESS_TOKEN_TTL")) * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Papers: PapersConfig{
			Statuses: splitList(v.GetString("PAPER_STATUSES")),
			LockTTL:  time.Duration(v.GetInt("PAPER_LOCK_TTL")) * time.Second,
			LockWait: time.Duration(v.GetInt("PAPER_LOCK_WAIT")) * time.Second,

			MaxAttachmentBytes: v.GetInt("PAPER_MAX_ATTACHMENT_MB") << 20,
		},
		Users: UsersConfig{
			SeedFile:      v.GetString("USERS_SEED_FILE"),
			AdminUsername: v.GetString("ADMIN_USERNAME"),
			AdminPassword: v.GetString("ADMIN_PASSWORD"),
		},
	}

	// Basic validation
	if cfg.JWT.Secret == "" {
		logger.Warn("JWT_SECRET is not set; set a secure value in production")
	}
	if len(cfg.Papers.Statuses) == 0 {
		cfg.Papers.Statuses = defaultStatuses()
	}

	return cfg, nil
}

func defaultStatuses() []string {
	var out []string
	for _, s := range paper.DefaultStatuses() {
		out = append(out, string(s))
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
