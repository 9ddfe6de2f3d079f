package config

import (
	"os"
	"strconv"
	"time"
)

// Defaults for the timing and counting knobs. All overridable via env.
const (
	DefaultSessionTimeout  = 30 * time.Minute
	DefaultMaxAttempts     = 5
	DefaultLockoutDuration = 5 * time.Minute
	DefaultEmailRateLimit  = 5
	DefaultRateLimitWindow = time.Hour
)

// Config holds runtime configuration for the portal.
type Config struct {
	SessionTimeout  time.Duration
	MaxAttempts     int
	LockoutDuration time.Duration
	EmailRateLimit  int
	RateLimitWindow time.Duration

	EmailServiceID      string
	EmailTemplateLogin  string
	EmailTemplateUpdate string
	EmailPublicKey      string
	AdminEmail          string
}

// Load reads configuration from the environment. Unset or non-numeric
// values fall back to the defaults rather than erroring.
func Load() Config {
	return Config{
		SessionTimeout:  envDuration("SESSION_TIMEOUT", DefaultSessionTimeout),
		MaxAttempts:     envInt("MAX_LOGIN_ATTEMPTS", DefaultMaxAttempts),
		LockoutDuration: envDuration("LOCKOUT_DURATION", DefaultLockoutDuration),
		EmailRateLimit:  envInt("EMAIL_RATE_LIMIT", DefaultEmailRateLimit),
		RateLimitWindow: envDuration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow),

		EmailServiceID:      os.Getenv("EMAILJS_SERVICE_ID"),
		EmailTemplateLogin:  os.Getenv("EMAILJS_TEMPLATE_ID_LOGIN"),
		EmailTemplateUpdate: os.Getenv("EMAILJS_TEMPLATE_ID_UPDATE"),
		EmailPublicKey:      os.Getenv("EMAILJS_PUBLIC_KEY"),
		AdminEmail:          os.Getenv("ADMIN_EMAIL"),
	}
}

// envDuration reads an integer number of milliseconds from the environment.
func envDuration(key string, fallback time.Duration) time.Duration {
	ms, err := strconv.Atoi(os.Getenv(key))
	if err != nil || ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
