package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Lock backends.
const (
	LockPostgres = "postgres"
	LockRedis    = "redis"
	LockMemory   = "memory"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Discord   DiscordConfig
	Processor ProcessorConfig
	Cache     CacheConfig
	Lock      LockConfig
	AWS       AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DiscordConfig holds the bot credentials and the outbound call timeout.
type DiscordConfig struct {
	Token      string
	TimeoutSec int
	// QueuePresses routes button presses through the Redis interaction queue
	// instead of handling them inline in the gateway process.
	QueuePresses bool
}

// ProcessorConfig controls the background tick loop.
type ProcessorConfig struct {
	IntervalSec    int
	OrphanFallback bool // post orphaned recipients to the first publication
}

// CacheConfig controls the event cache.
type CacheConfig struct {
	RefreshSec int
}

// LockConfig selects the distributed job lock backend.
type LockConfig struct {
	Backend string
	TTLSec  int // redis only
}

// AWSConfig holds AWS credentials and the archive bucket. An empty bucket disables archiving.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ArchiveBucket        string
	Endpoint             string
	PresignExpireMinutes int
}

// ChatTimeout is the deadline applied to each chat platform call.
func (c DiscordConfig) ChatTimeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// Interval is the processor tick period.
func (c ProcessorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSec) * time.Second
}

// Refresh is the cache reload period.
func (c CacheConfig) Refresh() time.Duration {
	return time.Duration(c.RefreshSec) * time.Second
}

// TTL is the redis lock expiry.
func (c LockConfig) TTL() time.Duration {
	return time.Duration(c.TTLSec) * time.Second
}

// ArchiveEnabled reports whether finalized events are uploaded to S3.
func (c AWSConfig) ArchiveEnabled() bool { return c.ArchiveBucket != "" }

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (DATABASE_URL), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "eventbot"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Discord: DiscordConfig{
			Token:        getEnv("DISCORD_TOKEN", ""),
			TimeoutSec:   getEnvInt("CHAT_TIMEOUT_SEC", 20),
			QueuePresses: getEnvBool("QUEUE_PRESSES", false),
		},
		Processor: ProcessorConfig{
			IntervalSec:    getEnvInt("PROCESSOR_INTERVAL_SEC", 60),
			OrphanFallback: getEnvBool("ORPHAN_FALLBACK", true),
		},
		Cache: CacheConfig{
			RefreshSec: getEnvInt("CACHE_REFRESH_SEC", 300),
		},
		Lock: LockConfig{
			Backend: strings.ToLower(getEnv("LOCK_BACKEND", LockPostgres)),
			TTLSec:  getEnvInt("LOCK_TTL_SEC", 300),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ArchiveBucket:        getEnv("AWS_S3_ARCHIVE_BUCKET", ""),
			Endpoint:             getEnv("AWS_S3_ENDPOINT", ""),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 15),
		},
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Lock.Backend {
	case LockPostgres, LockRedis, LockMemory:
	default:
		return fmt.Errorf("config: unknown LOCK_BACKEND %q", c.Lock.Backend)
	}
	if c.Processor.IntervalSec <= 0 {
		return fmt.Errorf("config: PROCESSOR_INTERVAL_SEC must be positive")
	}
	if c.Discord.TimeoutSec <= 0 {
		return fmt.Errorf("config: CHAT_TIMEOUT_SEC must be positive")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// SplitTrim splits a comma-style list and drops empty entries.
func SplitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
