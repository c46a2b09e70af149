package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/clearledger/karbonsync/internal/db"
)

// Config is the full service configuration, loaded once at startup and
// validated before any sync or webhook handler runs.
type Config struct {
	Server   ServerConfig `mapstructure:"server"`
	Database db.Config    `mapstructure:"database"`
	Karbon   KarbonConfig `mapstructure:"karbon"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" validate:"required"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// KarbonConfig configures the source API connection. Both credential headers
// are required; a missing one is a startup error, never retried.
type KarbonConfig struct {
	BaseURL               string  `mapstructure:"base_url" validate:"required,url"`
	AccessKey             string  `mapstructure:"access_key" validate:"required"`
	BearerToken           string  `mapstructure:"bearer_token" validate:"required"`
	WebhookSecret         string  `mapstructure:"webhook_secret"`
	RequestTimeoutSeconds int     `mapstructure:"request_timeout_seconds" validate:"gte=0"`
	RequestsPerSecond     float64 `mapstructure:"requests_per_second" validate:"gte=0"`
	PageSize              int     `mapstructure:"page_size" validate:"gte=0,lte=1000"`
	MaxPages              int     `mapstructure:"max_pages" validate:"gte=0"`
}

// Load reads config.yaml from the given path with environment overrides
// (KARBONSYNC_ prefix, e.g. KARBONSYNC_KARBON_ACCESS_KEY) and validates the
// result.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("KARBONSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Nested keys must be bound explicitly for env-only configuration.
	for _, key := range []string{
		"server.addr",
		"database.host", "database.port", "database.user", "database.password", "database.dbname", "database.sslmode",
		"karbon.base_url", "karbon.access_key", "karbon.bearer_token", "karbon.webhook_secret",
		"karbon.request_timeout_seconds", "karbon.requests_per_second", "karbon.page_size", "karbon.max_pages",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config.yaml; defaults and env vars carry the configuration.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate runs struct validation over a config. Exposed so tests and main
// can validate hand-built configs.
func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	def := db.DefaultConfig()
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("database.host", def.Host)
	v.SetDefault("database.port", def.Port)
	v.SetDefault("database.user", def.User)
	v.SetDefault("database.dbname", def.DBName)
	v.SetDefault("database.sslmode", def.SSLMode)
	v.SetDefault("karbon.base_url", "https://api.karbonhq.com/v3")
	v.SetDefault("karbon.request_timeout_seconds", 30)
	v.SetDefault("karbon.requests_per_second", 3)
	v.SetDefault("karbon.page_size", 100)
	v.SetDefault("karbon.max_pages", 100)
}
