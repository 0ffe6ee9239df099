package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Env       string
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Billing   BillingConfig
	Email     EmailConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig selects the gorm dialector. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver string
	URL    string
	Debug  bool
}

// RedisConfig holds Redis connection settings. An empty Addr disables the
// Redis-backed notification queue.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// BillingConfig holds plan pricing (minor currency units) and lifecycle timings.
type BillingConfig struct {
	TrialDays       int
	GracePeriodDays int
	InvoiceLeadDays int
	PlanName        string
	MonthlyPrice    int64
	YearlyPrice     int64
	Currency        string
	Schedule        string // cron spec for the billing cycle
	AdminEmails     []string
	Bank            BankDetails
}

// BankDetails are shown to payers next to a pending invoice.
type BankDetails struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
	RoutingNumber string `json:"routing_number"`
	BankName      string `json:"bank_name"`
	Instructions  string `json:"instructions"`
}

type EmailConfig struct {
	FromAddress string
	ProductName string
}

type TelemetryConfig struct {
	ServiceName    string
	OTLPEndpoint   string // empty disables trace export
	AeonisAPIKey   string // empty disables the Aeonis tracer
	AeonisEndpoint string
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8081"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT_SEC", 30),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", "postgres"),
			URL:    getEnv("DATABASE_URL", "host=localhost user=postgres dbname=saascore port=5432 sslmode=disable"),
			Debug:  getEnvBool("DB_DEBUG", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Billing: BillingConfig{
			TrialDays:       getEnvInt("TRIAL_DAYS", 14),
			GracePeriodDays: getEnvInt("GRACE_PERIOD_DAYS", 7),
			InvoiceLeadDays: getEnvInt("INVOICE_LEAD_DAYS", 3),
			PlanName:        getEnv("PLAN_NAME", "Pro Plan"),
			MonthlyPrice:    int64(getEnvInt("PLAN_MONTHLY_PRICE", 2900)),
			YearlyPrice:     int64(getEnvInt("PLAN_YEARLY_PRICE", 29000)),
			Currency:        strings.ToUpper(getEnv("BILLING_CURRENCY", "USD")),
			Schedule:        getEnv("BILLING_CRON", "0 * * * *"),
			AdminEmails:     splitTrim(getEnv("ADMIN_EMAILS", ""), ","),
			Bank: BankDetails{
				AccountName:   getEnv("BANK_ACCOUNT_NAME", "SaaS Core Ltd"),
				AccountNumber: getEnv("BANK_ACCOUNT_NUMBER", "12345678"),
				RoutingNumber: getEnv("BANK_ROUTING_NUMBER", "987654321"),
				BankName:      getEnv("BANK_NAME", "Example Bank"),
				Instructions:  getEnv("BANK_INSTRUCTIONS", "Please include your invoice number in the payment reference"),
			},
		},
		Email: EmailConfig{
			FromAddress: getEnv("SMTP_FROM", "billing@example.com"),
			ProductName: getEnv("PRODUCT_NAME", "SaaS Core"),
		},
		Telemetry: TelemetryConfig{
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "saascore"),
			OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			AeonisAPIKey:   getEnv("AEONIS_API_KEY", ""),
			AeonisEndpoint: getEnv("AEONIS_ENDPOINT", "http://localhost:8000/v1/traces"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the billing engine cannot run with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if c.Billing.TrialDays < 0 || c.Billing.GracePeriodDays < 0 || c.Billing.InvoiceLeadDays < 0 {
		return fmt.Errorf("config: billing day counts must not be negative")
	}
	if c.Billing.MonthlyPrice < 0 || c.Billing.YearlyPrice < 0 {
		return fmt.Errorf("config: plan prices must not be negative")
	}
	if c.Env == "production" && c.JWT.Secret == "change-me-in-production" {
		return fmt.Errorf("config: JWT_SECRET must be set in production")
	}
	return nil
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
