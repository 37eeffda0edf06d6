package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration. Values come from an optional YAML
// file (LEAGUE_CONFIG), then environment variables, which take precedence.
type Config struct {
	HTTPAddr         string          `yaml:"http_addr"`
	DatabaseURL      string          `yaml:"database_url"`
	RedisURL         string          `yaml:"redis_url"`
	JWTIssuer        string          `yaml:"jwt_issuer"`
	JWTSecret        string          `yaml:"jwt_secret"`
	JWTTTL           time.Duration   `yaml:"jwt_ttl"`
	InitialBalance   decimal.Decimal `yaml:"initial_balance"`
	QuoteProvider    string          `yaml:"quote_provider"`
	TwelveDataAPIKey string          `yaml:"twelvedata_api_key"`
	PolygonAPIKey    string          `yaml:"polygon_api_key"`
	QuoteTimeout     time.Duration   `yaml:"quote_timeout"`
	QuoteCacheTTL    time.Duration   `yaml:"quote_cache_ttl"`
	StaticPrices     string          `yaml:"static_prices"`
	LogLevel         string          `yaml:"log_level"`
	WebSocketOrigin  string          `yaml:"ws_origin"`
}

const (
	ProviderTwelveData = "twelvedata"
	ProviderPolygon    = "polygon"
	ProviderStatic     = "static"
)

func defaults() Config {
	return Config{
		HTTPAddr:       ":8080",
		JWTIssuer:      "stock-league",
		JWTTTL:         24 * time.Hour,
		InitialBalance: decimal.NewFromInt(100000),
		QuoteProvider:  ProviderTwelveData,
		QuoteTimeout:   5 * time.Second,
		QuoteCacheTTL:  15 * time.Second,
		LogLevel:       "info",
	}
}

// Load reads .env (if present), the YAML file named by LEAGUE_CONFIG (if
// set) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	c := defaults()
	if path := os.Getenv("LEAGUE_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := c.applyEnv(); err != nil {
		return c, err
	}
	return c, c.validate()
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("HTTP_ADDR", &c.HTTPAddr)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REDIS_URL", &c.RedisURL)
	str("JWT_ISSUER", &c.JWTIssuer)
	str("JWT_SECRET", &c.JWTSecret)
	str("QUOTE_PROVIDER", &c.QuoteProvider)
	str("TWELVEDATA_API_KEY", &c.TwelveDataAPIKey)
	str("POLYGON_API_KEY", &c.PolygonAPIKey)
	str("STATIC_PRICES", &c.StaticPrices)
	str("LOG_LEVEL", &c.LogLevel)
	str("WS_ORIGIN", &c.WebSocketOrigin)
	if err := dur("JWT_TTL", &c.JWTTTL); err != nil {
		return err
	}
	if err := dur("QUOTE_TIMEOUT", &c.QuoteTimeout); err != nil {
		return err
	}
	if err := dur("QUOTE_CACHE_TTL", &c.QuoteCacheTTL); err != nil {
		return err
	}
	if v := strings.TrimSpace(os.Getenv("INITIAL_BALANCE")); v != "" {
		b, err := decimal.NewFromString(v)
		if err != nil {
			return errors.New("invalid INITIAL_BALANCE")
		}
		c.InitialBalance = b
	}
	c.QuoteProvider = strings.ToLower(c.QuoteProvider)
	return nil
}

func (c *Config) validate() error {
	var missing []string
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	switch c.QuoteProvider {
	case ProviderTwelveData:
		if c.TwelveDataAPIKey == "" {
			missing = append(missing, "TWELVEDATA_API_KEY")
		}
	case ProviderPolygon:
		if c.PolygonAPIKey == "" {
			missing = append(missing, "POLYGON_API_KEY")
		}
	case ProviderStatic:
	default:
		return fmt.Errorf("invalid QUOTE_PROVIDER %q: use twelvedata, polygon or static", c.QuoteProvider)
	}
	if !c.InitialBalance.IsPositive() {
		return errors.New("INITIAL_BALANCE must be positive")
	}
	if len(missing) > 0 {
		return errors.New("missing required env: " + strings.Join(missing, ","))
	}
	return nil
}

// SlogLevel maps LogLevel onto slog; unknown values are info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
