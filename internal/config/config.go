package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPAddr    string
	CORSOrigins []string

	DBDriver string
	DBDSN    string

	TinyPesaAPIKey        string
	TinyPesaInitializeURL string
	TinyPesaStatusURL     string
	TinyPesaTimeout       time.Duration

	Warmup          time.Duration
	PollInterval    time.Duration
	MaxPollAttempts int
	PollTimeout     time.Duration
	DefaultAmount   int64
	PersistFailures bool

	RetentionHorizon  time.Duration
	RetentionSchedule string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	DiscordBotToken  string
	DiscordChannelId string

	LogLevel       string
	LogDevelopment bool
}

func defaults(v *viper.Viper) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("DB_DRIVER", "sqlite")
	v.SetDefault("DB_DSN", "transactions.db")
	v.SetDefault("TINYPESA_INITIALIZE_URL", "https://tinypesa.com/api/v1/express/initialize")
	v.SetDefault("TINYPESA_STATUS_URL", "https://tinypesa.com/api/v1/express/get_status/")
	v.SetDefault("TINYPESA_TIMEOUT", "30s")
	v.SetDefault("STK_WARMUP", "30s")
	v.SetDefault("STK_POLL_INTERVAL", "5s")
	v.SetDefault("STK_MAX_POLL_ATTEMPTS", 24)
	v.SetDefault("STK_POLL_TIMEOUT", "3m")
	v.SetDefault("STK_DEFAULT_AMOUNT", 1)
	v.SetDefault("STK_PERSIST_FAILURES", false)
	v.SetDefault("RETENTION_HORIZON", "24h")
	v.SetDefault("RETENTION_SCHEDULE", "0 0 * * *")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("LOCK_TTL", "5m")
	v.SetDefault("KAFKA_TOPIC", "payment.outcome")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DEVELOPMENT", false)
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	v.AutomaticEnv()
	defaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddr:              v.GetString("HTTP_ADDR"),
		CORSOrigins:           splitList(v.GetString("CORS_ORIGINS")),
		DBDriver:              v.GetString("DB_DRIVER"),
		DBDSN:                 v.GetString("DB_DSN"),
		TinyPesaAPIKey:        v.GetString("TINYPESA_API_KEY"),
		TinyPesaInitializeURL: v.GetString("TINYPESA_INITIALIZE_URL"),
		TinyPesaStatusURL:     v.GetString("TINYPESA_STATUS_URL"),
		TinyPesaTimeout:       v.GetDuration("TINYPESA_TIMEOUT"),
		Warmup:                v.GetDuration("STK_WARMUP"),
		PollInterval:          v.GetDuration("STK_POLL_INTERVAL"),
		MaxPollAttempts:       v.GetInt("STK_MAX_POLL_ATTEMPTS"),
		PollTimeout:           v.GetDuration("STK_POLL_TIMEOUT"),
		DefaultAmount:         v.GetInt64("STK_DEFAULT_AMOUNT"),
		PersistFailures:       v.GetBool("STK_PERSIST_FAILURES"),
		RetentionHorizon:      v.GetDuration("RETENTION_HORIZON"),
		RetentionSchedule:     v.GetString("RETENTION_SCHEDULE"),
		RedisAddr:             v.GetString("REDIS_ADDR"),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		LockTTL:               v.GetDuration("LOCK_TTL"),
		KafkaBrokers:          splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:            v.GetString("KAFKA_TOPIC"),
		DiscordBotToken:       v.GetString("DISCORD_BOT_TOKEN"),
		DiscordChannelId:      v.GetString("DISCORD_CHANNEL_ID"),
		LogLevel:              v.GetString("LOG_LEVEL"),
		LogDevelopment:        v.GetBool("LOG_DEVELOPMENT"),
	}

	if cfg.TinyPesaAPIKey == "" {
		return nil, fmt.Errorf("TINYPESA_API_KEY is not set")
	}
	if cfg.DiscordBotToken != "" && cfg.DiscordChannelId == "" {
		return nil, fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_BOT_TOKEN is set")
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("STK_POLL_INTERVAL must be positive")
	}
	if cfg.PollTimeout < 0 || cfg.MaxPollAttempts < 0 {
		return nil, fmt.Errorf("STK_POLL_TIMEOUT and STK_MAX_POLL_ATTEMPTS must not be negative")
	}
	if cfg.PollTimeout == 0 && cfg.MaxPollAttempts == 0 {
		return nil, fmt.Errorf("one of STK_POLL_TIMEOUT or STK_MAX_POLL_ATTEMPTS must be set")
	}
	if cfg.PollTimeout > 0 && cfg.PollTimeout <= cfg.Warmup {
		return nil, fmt.Errorf("STK_POLL_TIMEOUT (%s) must exceed STK_WARMUP (%s)", cfg.PollTimeout, cfg.Warmup)
	}
	if cfg.RedisAddr != "" && cfg.LockTTL <= cfg.MaxWorkflowDuration() {
		return nil, fmt.Errorf("LOCK_TTL (%s) must exceed the longest push (%s)", cfg.LockTTL, cfg.MaxWorkflowDuration())
	}
	if cfg.DefaultAmount <= 0 {
		return nil, fmt.Errorf("STK_DEFAULT_AMOUNT must be positive")
	}

	return cfg, nil
}

// MaxWorkflowDuration is the longest a single push can run. Without
// STK_POLL_TIMEOUT it is derived from the attempt budget, counting a full
// upstream timeout for the initialize call and every status read.
func (c *Config) MaxWorkflowDuration() time.Duration {
	upstream := c.TinyPesaTimeout
	if upstream <= 0 {
		upstream = 30 * time.Second // mpesa.Client default
	}
	byAttempts := time.Duration(-1)
	if c.MaxPollAttempts > 0 {
		n := time.Duration(c.MaxPollAttempts)
		byAttempts = upstream + c.Warmup + n*upstream + (n-1)*c.PollInterval
	}
	switch {
	case c.PollTimeout <= 0:
		return byAttempts
	case byAttempts >= 0 && byAttempts < c.PollTimeout:
		return byAttempts
	default:
		return c.PollTimeout
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
