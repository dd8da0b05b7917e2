package config

import (
	"errors"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config centraliza la configuración del servicio. Se carga una sola vez al
// arrancar y se pasa explícitamente a cada constructor.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"5001"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret string `env:"JWT_SECRET,required"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"blogsphere"`

	GitHubClientID             string        `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret         string        `env:"GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL          string        `env:"GITHUB_CALLBACK_URL"`
	GitHubVerifyState          bool          `env:"GITHUB_VERIFY_STATE" envDefault:"true"`
	GitHubRequireVerifiedEmail bool          `env:"GITHUB_REQUIRE_VERIFIED_EMAIL" envDefault:"true"`
	GitHubHTTPTimeout          time.Duration `env:"GITHUB_HTTP_TIMEOUT" envDefault:"10s"`

	FrontendURL        string   `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	// Vacío: la IP del cliente es siempre la del socket.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	LoginRateWindow time.Duration `env:"LOGIN_RATE_WINDOW" envDefault:"15m"`
	LoginRateMax    int           `env:"LOGIN_RATE_MAX" envDefault:"10"`
	RateLimitRPM    int           `env:"RATE_LIMIT_RPM" envDefault:"30"`

	MigrateOnStart bool `env:"MIGRATE_ON_START" envDefault:"true"`
}

var ErrInvalidConfig = errors.New("invalid config")

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	if c.JWTSecret == "" {
		return errors.Join(ErrInvalidConfig, errors.New("JWT_SECRET is empty"))
	}
	c.FrontendURL = strings.TrimRight(strings.TrimSpace(c.FrontendURL), "/")
	if len(c.CORSAllowedOrigins) == 0 && c.FrontendURL != "" {
		c.CORSAllowedOrigins = []string{c.FrontendURL}
	}
	if c.GitHubHTTPTimeout <= 0 {
		c.GitHubHTTPTimeout = 10 * time.Second
	}
	return nil
}

// GitHubEnabled indica si hay credenciales OAuth de GitHub configuradas.
func (c *Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// NewLogger construye el logger de producción con el nivel configurado.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		level = zapcore.InfoLevel
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
