// Package config loads the immutable process configuration from the
// environment. It is read once at startup; nothing mutates it afterwards.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"gatekey.org/internal/validation"
)

const minimumHMACKeyLength = 16

// Config holds runtime settings for the gatekey API.
type Config struct {
	Addr        string `env:"GATEKEY_ADDR" envDefault:":8080"`
	DatabaseDSN string `env:"GATEKEY_PG_DSN"`

	// Signing configuration for access tokens (HS256).
	JWTKey          string `env:"GATEKEY_JWT_KEY"`
	LifetimeMinutes int    `env:"GATEKEY_JWT_LIFETIME_MINUTES" envDefault:"15"`

	// Audience for federated Google sign-in. When empty, GoogleLogin
	// rejects every request.
	GoogleClientID string `env:"GATEKEY_GOOGLE_CLIENT_ID"`

	// Password policy consumed by the validation rules.
	PasswordRequireDigit    bool `env:"GATEKEY_PASSWORD_REQUIRE_DIGIT" envDefault:"true"`
	PasswordRequireLower    bool `env:"GATEKEY_PASSWORD_REQUIRE_LOWERCASE" envDefault:"true"`
	PasswordRequireUpper    bool `env:"GATEKEY_PASSWORD_REQUIRE_UPPERCASE" envDefault:"true"`
	PasswordRequireNonAlnum bool `env:"GATEKEY_PASSWORD_REQUIRE_NONALPHANUMERIC" envDefault:"true"`
	PasswordMinLength       int  `env:"GATEKEY_PASSWORD_MIN_LENGTH" envDefault:"6"`

	// Outbound mail (confirmation and recovery links).
	SMTPHost     string `env:"GATEKEY_SMTP_HOST"`
	SMTPPort     int    `env:"GATEKEY_SMTP_PORT" envDefault:"465"`
	SMTPUser     string `env:"GATEKEY_SMTP_USER"`
	SMTPPassword string `env:"GATEKEY_SMTP_PASSWORD"`
	MailFrom     string `env:"GATEKEY_MAIL_FROM"`
	MailFromName string `env:"GATEKEY_MAIL_FROM_NAME" envDefault:"Gatekey"`

	RateBurst  int `env:"GATEKEY_RATE_BURST" envDefault:"20"`
	RatePerSec int `env:"GATEKEY_RATE_PER_SEC" envDefault:"10"`
}

// Load parses and validates the configuration.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every violation at once, one message per line.
func (c *Config) Validate() error {
	var problems []string
	if len(c.JWTKey) < minimumHMACKeyLength {
		problems = append(problems, "Minimum length of the key is 16 characters")
	}
	if c.LifetimeMinutes < 1 || c.LifetimeMinutes > 1000 {
		problems = append(problems, "Lifetime minutes should be between 1 and 1000 inclusive")
	}
	if c.PasswordMinLength < 1 {
		problems = append(problems, "Password minimum length must be positive")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.New(strings.Join(problems, "\n"))
}

// PasswordPolicy maps the configured flags onto the validation rules.
func (c *Config) PasswordPolicy() validation.PasswordPolicy {
	return validation.PasswordPolicy{
		RequireDigit:           c.PasswordRequireDigit,
		RequireLowercase:       c.PasswordRequireLower,
		RequireUppercase:       c.PasswordRequireUpper,
		RequireNonAlphanumeric: c.PasswordRequireNonAlnum,
		MinLength:              c.PasswordMinLength,
	}
}
