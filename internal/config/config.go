package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	// ChannelBase prefixes every redis key and pub/sub channel so multiple
	// deployments can share one redis instance.
	ChannelBase string

	TypingTTL        time.Duration
	SyncSetupTimeout time.Duration
	SyncBackoffBase  time.Duration
	SyncBackoffCap   time.Duration
	SyncMaxRetries   int
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("RELAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Relay API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("channel.base", "relay")
	v.SetDefault("typing.ttl", "2s")
	v.SetDefault("sync.setup_timeout", "5s")
	v.SetDefault("sync.backoff_base", "1s")
	v.SetDefault("sync.backoff_cap", "30s")
	v.SetDefault("sync.max_retries", 5)

	typingTTL, err := parseDuration(v, "typing.ttl", 2*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid typing ttl: %w", err)
	}
	setupTimeout, err := parseDuration(v, "sync.setup_timeout", 5*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid sync setup timeout: %w", err)
	}
	backoffBase, err := parseDuration(v, "sync.backoff_base", time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid sync backoff base: %w", err)
	}
	backoffCap, err := parseDuration(v, "sync.backoff_cap", 30*time.Second)
	if err != nil {
		return Config{}, fmt.Errorf("invalid sync backoff cap: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		JWTSecret:        v.GetString("jwt.secret"),
		ChannelBase:      v.GetString("channel.base"),
		TypingTTL:        typingTTL,
		SyncSetupTimeout: setupTimeout,
		SyncBackoffBase:  backoffBase,
		SyncBackoffCap:   backoffCap,
		SyncMaxRetries:   v.GetInt("sync.max_retries"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.SyncMaxRetries <= 0 {
		cfg.SyncMaxRetries = 5
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := v.GetString(key)
	if raw == "" {
		return fallback, nil
	}
	return time.ParseDuration(raw)
}
