package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the study service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Sefaria   SefariaConfig   `mapstructure:"sefaria"`
	Study     StudyConfig     `mapstructure:"study"`
	Session   SessionConfig   `mapstructure:"session"`
	Databases DatabasesConfig `mapstructure:"databases"`
}

// GeneralConfig contains server-wide settings.
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// ProvidersConfig groups external model providers.
type ProvidersConfig struct {
	OpenRouter OpenRouterConfig `mapstructure:"openrouter"`
}

// OpenRouterConfig configures the translation provider.
type OpenRouterConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Referer     string        `mapstructure:"referer"`
	Title       string        `mapstructure:"title"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

func (c OpenRouterConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("providers.openrouter.api_key must be configured")
	}
	if c.Model == "" {
		return fmt.Errorf("providers.openrouter.model must be configured")
	}
	return nil
}

// SefariaConfig configures the upstream text service client and its cache pools.
type SefariaConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	TextCacheSize int           `mapstructure:"text_cache_size"`
	TextCacheTTL  time.Duration `mapstructure:"text_cache_ttl"`
	LinkCacheSize int           `mapstructure:"link_cache_size"`
	LinkCacheTTL  time.Duration `mapstructure:"link_cache_ttl"`
}

func (c SefariaConfig) Validate() error {
	if c.TextCacheSize <= 0 || c.LinkCacheSize <= 0 {
		return fmt.Errorf("sefaria cache sizes must be > 0")
	}
	if c.TextCacheTTL <= 0 || c.LinkCacheTTL <= 0 {
		return fmt.Errorf("sefaria cache TTLs must be > 0")
	}
	return nil
}

// StudyConfig tunes commentary expansion.
type StudyConfig struct {
	MaxCommentaryDepth int `mapstructure:"max_commentary_depth"`
}

// SessionConfig selects the navigation-session backend.
type SessionConfig struct {
	Backend string        `mapstructure:"backend"` // inmemory or redis
	TTL     time.Duration `mapstructure:"ttl"`
}

// DatabasesConfig groups storage backends.
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig holds connection settings for the translation store.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles the Postgres connection string, preferring an explicit URL.
func (c PostgresConfig) DSN() (string, error) {
	if c.URL != "" {
		return c.URL, nil
	}
	if c.Host == "" || c.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, port, c.DBName, ssl), nil
}

// RedisConfig holds connection settings for the redis session backend.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string { return fmt.Sprintf("%s:%s", c.Host, c.Port) }

// LoadConfig reads configuration from the given file, or searches the usual
// locations when path is empty. Environment variables prefixed TALMUD_ override
// file values (dots become underscores).
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("general.listen", ":8080")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("providers.openrouter.base_url", "https://openrouter.ai/api/v1")
	viper.SetDefault("providers.openrouter.model", "google/gemini-2.5-flash")
	viper.SetDefault("providers.openrouter.title", "Talmudic Study App")
	viper.SetDefault("providers.openrouter.temperature", 0.3)
	viper.SetDefault("providers.openrouter.max_tokens", 8000)
	viper.SetDefault("providers.openrouter.timeout", "120s")
	viper.SetDefault("sefaria.base_url", "https://www.sefaria.org/api")
	viper.SetDefault("sefaria.timeout", "30s")
	viper.SetDefault("sefaria.text_cache_size", 500)
	viper.SetDefault("sefaria.text_cache_ttl", "1h")
	viper.SetDefault("sefaria.link_cache_size", 200)
	viper.SetDefault("sefaria.link_cache_ttl", "30m")
	viper.SetDefault("study.max_commentary_depth", 3)
	viper.SetDefault("session.backend", "inmemory")
	viper.SetDefault("session.ttl", "12h")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("TALMUD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	if err := config.Sefaria.Validate(); err != nil {
		panic(err)
	}
	if config.Study.MaxCommentaryDepth <= 0 {
		config.Study.MaxCommentaryDepth = 3
	}
	return &config
}
