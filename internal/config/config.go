package config

import (
	"fmt"
	"net/mail"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN     string
	JWTSecret string

	LogLevel string

	SessionDays          int
	PublicRateLimitRPM   int
	MaxImportBytes       int64
	InviteTTLHours       int
	InviteRetentionDays  int
	EmailStatusPerSecond float64

	SendGridAPIKey string
	SendGridHost   string
	MailFrom       string
	MailTimeoutMS  int

	ConsumerAppURL string
	InviteURL      string

	PaymentAPIKey string
	PartnersFile  string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("SD_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("SD_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("SD_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("SD_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("SD_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("SD_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("SD_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SD_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("SD_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("SD_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("SD_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.LogLevel = getEnvOrDefault("SD_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("SD_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.SessionDays, err = getEnvIntOrDefault("SD_SESSION_DAYS", 7)
	if err != nil {
		return nil, err
	}

	cfg.PublicRateLimitRPM, err = getEnvIntOrDefault("SD_PUBLIC_RATE_LIMIT_RPM", 60)
	if err != nil {
		return nil, err
	}
	if cfg.PublicRateLimitRPM <= 0 {
		return nil, fmt.Errorf("SD_PUBLIC_RATE_LIMIT_RPM must be positive (got: %d)", cfg.PublicRateLimitRPM)
	}

	cfg.MaxImportBytes, err = getEnvInt64OrDefault("SD_MAX_IMPORT_BYTES", 1*1024*1024)
	if err != nil {
		return nil, err
	}

	cfg.InviteTTLHours, err = getEnvIntOrDefault("SD_INVITE_TTL_HOURS", 168)
	if err != nil {
		return nil, err
	}
	if cfg.InviteTTLHours <= 0 {
		return nil, fmt.Errorf("SD_INVITE_TTL_HOURS must be positive (got: %d)", cfg.InviteTTLHours)
	}

	cfg.InviteRetentionDays, err = getEnvIntOrDefault("SD_INVITE_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}

	cfg.EmailStatusPerSecond, err = getEnvFloatOrDefault("SD_EMAIL_STATUS_RPS", 2)
	if err != nil {
		return nil, err
	}
	if cfg.EmailStatusPerSecond <= 0 {
		return nil, fmt.Errorf("SD_EMAIL_STATUS_RPS must be positive (got: %v)", cfg.EmailStatusPerSecond)
	}

	cfg.SendGridAPIKey = strings.TrimSpace(os.Getenv("SD_SENDGRID_API_KEY"))
	if cfg.Env == "prod" && cfg.SendGridAPIKey == "" {
		return nil, fmt.Errorf("SD_SENDGRID_API_KEY is required in prod")
	}
	cfg.SendGridHost = strings.TrimRight(getEnvOrDefault("SD_SENDGRID_HOST", "https://api.sendgrid.com"), "/")

	cfg.MailFrom = getEnvOrDefault("SD_MAIL_FROM", "Queen Creek Chamber <onboarding@moilapp.com>")
	if _, err := mail.ParseAddress(cfg.MailFrom); err != nil {
		return nil, fmt.Errorf("SD_MAIL_FROM must be a valid address (got: %q)", cfg.MailFrom)
	}

	cfg.MailTimeoutMS, err = getEnvIntOrDefault("SD_MAIL_TIMEOUT_MS", 10000)
	if err != nil {
		return nil, err
	}
	if cfg.MailTimeoutMS <= 0 || cfg.MailTimeoutMS > 60000 {
		return nil, fmt.Errorf("SD_MAIL_TIMEOUT_MS must be between 1 and 60000 (got: %d)", cfg.MailTimeoutMS)
	}

	cfg.ConsumerAppURL = strings.TrimRight(getEnvOrDefault("SD_CONSUMER_APP_URL", "https://business.moilapp.com"), "/")
	cfg.InviteURL = strings.TrimRight(getEnvOrDefault("SD_INVITE_URL", "https://queencreek.moilapp.com"), "/")

	cfg.PaymentAPIKey = strings.TrimSpace(os.Getenv("SD_PAYMENT_API_KEY"))
	cfg.PartnersFile = strings.TrimSpace(os.Getenv("SD_PARTNERS_FILE"))

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"SD_ENV":                   c.Env,
		"SD_HTTP_ADDR":             c.HTTPAddr,
		"SD_BASE_URL":              c.BaseURL,
		"SD_DB_DSN":                redactDSN(c.DBDSN),
		"SD_JWT_SECRET":            "[REDACTED]",
		"SD_LOG_LEVEL":             c.LogLevel,
		"SD_SESSION_DAYS":          strconv.Itoa(c.SessionDays),
		"SD_PUBLIC_RATE_LIMIT_RPM": strconv.Itoa(c.PublicRateLimitRPM),
		"SD_MAX_IMPORT_BYTES":      strconv.FormatInt(c.MaxImportBytes, 10),
		"SD_INVITE_TTL_HOURS":      strconv.Itoa(c.InviteTTLHours),
		"SD_INVITE_RETENTION_DAYS": strconv.Itoa(c.InviteRetentionDays),
		"SD_EMAIL_STATUS_RPS":      strconv.FormatFloat(c.EmailStatusPerSecond, 'f', -1, 64),
		"SD_SENDGRID_API_KEY":      redactSecret(c.SendGridAPIKey),
		"SD_SENDGRID_HOST":         c.SendGridHost,
		"SD_MAIL_FROM":             c.MailFrom,
		"SD_MAIL_TIMEOUT_MS":       strconv.Itoa(c.MailTimeoutMS),
		"SD_CONSUMER_APP_URL":      c.ConsumerAppURL,
		"SD_INVITE_URL":            c.InviteURL,
		"SD_PAYMENT_API_KEY":       redactSecret(c.PaymentAPIKey),
		"SD_PARTNERS_FILE":         c.PartnersFile,
	}
}

func redactSecret(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}

func getEnvInt64OrDefault(key string, defaultValue int64) (int64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}

func getEnvFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number (got: %q)", key, value)
	}
	return parsed, nil
}
