package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds provider server configuration loaded from environment variables.
type Config struct {
	Port                     int           `envconfig:"PORT" default:"8080"`
	LogLevel                 string        `envconfig:"LOG_LEVEL" default:"info"`
	DatabaseURL              string        `envconfig:"DATABASE_URL" required:"true"`
	RedisURL                 string        `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	Version                  string        `envconfig:"VERSION" default:"dev"`
	BcryptCost               int           `envconfig:"BCRYPT_COST" default:"12"`
	JWTSecret                string        `envconfig:"JWT_SECRET" required:"true"`
	AccessTokenTTL           time.Duration `envconfig:"ACCESS_TOKEN_TTL" default:"1h"`
	RefreshTokenTTL          time.Duration `envconfig:"REFRESH_TOKEN_TTL" default:"720h"`
	PublicAPIKey             string        `envconfig:"PUBLIC_API_KEY" required:"true"`
	PublicBaseURL            string        `envconfig:"PUBLIC_BASE_URL" default:"http://localhost:8080"`
	StorageDir               string        `envconfig:"STORAGE_DIR" default:"./data/storage"`
	AllowedOrigins           []string      `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:5173"`
	RequireEmailConfirmation bool          `envconfig:"REQUIRE_EMAIL_CONFIRMATION" default:"false"`
	ReconcilerInterval       int           `envconfig:"RECONCILER_INTERVAL" default:"60"`
	OrphanGrace              time.Duration `envconfig:"ORPHAN_GRACE" default:"15m"`
	OrphanPurge              bool          `envconfig:"ORPHAN_PURGE" default:"false"`
	MigrateOnStart           bool          `envconfig:"MIGRATE_ON_START" default:"true"`
}

// minJWTSecretLength is the shortest HS256 key accepted.
const minJWTSecretLength = 32

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters", minJWTSecretLength)
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token TTLs must be positive")
	}
	if c.AccessTokenTTL > c.RefreshTokenTTL {
		return fmt.Errorf("ACCESS_TOKEN_TTL must not exceed REFRESH_TOKEN_TTL")
	}
	if c.ReconcilerInterval <= 0 {
		return fmt.Errorf("RECONCILER_INTERVAL must be positive")
	}
	return nil
}
