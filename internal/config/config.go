package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the API process configuration, read once from the environment.
// Secrets may be overlaid from SSM between Parse and Validate.
type Config struct {
	App     AppConfig
	Store   StoreConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Webhook WebhookConfig
	Stats   StatsConfig
	WS      WSConfig
	SSM     SSMConfig
}

type AppConfig struct {
	Env  string `env:"APP_ENV" envDefault:"local"`
	Port int    `env:"APP_PORT" envDefault:"3001"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

type StoreConfig struct {
	// Driver accepts: postgres, supabase, memory
	Driver string `env:"STORE_DRIVER" envDefault:"postgres"`

	DatabaseURL string `env:"DATABASE_URL"`

	SupabaseURL string `env:"SUPABASE_URL"`
	SupabaseKey string `env:"SUPABASE_KEY"`
}

type RedisConfig struct {
	// Addr is host:port. Empty disables Redis-backed features.
	Addr     string `env:"REDIS_ADDR"`
	Password string `env:"REDIS_PASSWORD"`
}

type AuthConfig struct {
	JWTSecret       string        `env:"JWT_SECRET"`
	JWTIssuer       string        `env:"JWT_ISSUER"`
	JWTAudience     string        `env:"JWT_AUDIENCE"`
	AccessTokenTTL  time.Duration `env:"JWT_ACCESS_TTL" envDefault:"12h"`
	RefreshTokenTTL time.Duration `env:"JWT_REFRESH_TTL" envDefault:"168h"`

	// DashboardPassword enables the legacy single-secret login.
	DashboardPassword string `env:"DASHBOARD_PASSWORD"`
	// PasswordScan lets password-only logins be checked against every registered user.
	PasswordScan bool `env:"AUTH_PASSWORD_SCAN" envDefault:"true"`

	LoginMaxAttempts int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"10"`
	LoginWindow      time.Duration `env:"LOGIN_WINDOW" envDefault:"1m"`
}

type WebhookConfig struct {
	Secret           string `env:"WEBHOOK_SECRET"`
	RequireSignature bool   `env:"WEBHOOK_REQUIRE_SIGNATURE" envDefault:"false"`
}

type StatsConfig struct {
	Timezone string `env:"STATS_TIMEZONE" envDefault:"UTC"`
}

type WSConfig struct {
	SendBuffer   int           `env:"WS_SEND_BUFFER" envDefault:"16"`
	WriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
}

// SSMConfig names AWS SSM parameters that override secrets when set.
type SSMConfig struct {
	WebhookSecretParam     string `env:"SSM_WEBHOOK_SECRET_PARAM"`
	DashboardPasswordParam string `env:"SSM_DASHBOARD_PASSWORD_PARAM"`
	JWTSecretParam         string `env:"SSM_JWT_SECRET_PARAM"`
}

// Enabled reports whether any secret should be fetched from SSM.
func (c SSMConfig) Enabled() bool {
	return c.WebhookSecretParam != "" || c.DashboardPasswordParam != "" || c.JWTSecretParam != ""
}

// Parse reads the environment. Call Validate after any secret overlay has been applied.
func Parse() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	c.App.Env = strings.TrimSpace(c.App.Env)
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	return c, nil
}

// Load parses and validates in one step.
func Load() (Config, error) {
	c, err := Parse()
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	for _, o := range c.App.CORSAllowedOrigins {
		o = strings.TrimSpace(o)
		if o != "*" && !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			errs = append(errs, fmt.Errorf("CORS_ALLOWED_ORIGINS entries must be * or start with http:// or https://, got %q", o))
		}
	}

	switch c.Store.Driver {
	case "postgres":
		if strings.TrimSpace(c.Store.DatabaseURL) == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for STORE_DRIVER=postgres"))
		}
	case "supabase":
		if strings.TrimSpace(c.Store.SupabaseURL) == "" {
			errs = append(errs, errors.New("SUPABASE_URL is required for STORE_DRIVER=supabase"))
		}
		if c.Store.SupabaseKey == "" {
			errs = append(errs, errors.New("SUPABASE_KEY is required for STORE_DRIVER=supabase"))
		}
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of postgres, supabase, memory, got %q", c.Store.Driver))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Webhook.Secret == "" {
			errs = append(errs, errors.New("WEBHOOK_SECRET is required in production"))
		}
	}
	if c.Webhook.RequireSignature && c.Webhook.Secret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required when WEBHOOK_REQUIRE_SIGNATURE=true"))
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 12 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.LoginMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("LOGIN_MAX_ATTEMPTS must be > 0, got %d", c.Auth.LoginMaxAttempts))
	}
	if c.Auth.LoginWindow <= 0 {
		c.Auth.LoginWindow = time.Minute
	}

	if c.Stats.Timezone == "" {
		c.Stats.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Stats.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("STATS_TIMEZONE is not a valid location: %q", c.Stats.Timezone))
	}

	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 16
	}
	if c.WS.WriteTimeout <= 0 {
		c.WS.WriteTimeout = 10 * time.Second
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

// StatsLocation returns the location used for "start of current day".
func (c Config) StatsLocation() *time.Location {
	loc, err := time.LoadLocation(c.Stats.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
