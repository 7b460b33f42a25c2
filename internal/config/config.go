package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	Port                     string
	AppOrigin                string
	StoreDriver              string
	DatabaseURL              string
	Timezone                 string
	RequestTimeout           time.Duration
	Auth0Domain              string
	Auth0Audience            string
	AuthDisabled             bool
	JWKSCacheTTL             time.Duration
	JWKSRequestsPerMinute    int
	RateLimitPerMinute       int
	RateLimitBurst           int
	TenantRateLimitPerMinute int
	TenantRateLimitBurst     int
	OTelEndpoint             string
	OTelInsecure             bool
}

// Load reads .env when present, then the process environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}

	return Config{
		Port:                     readString("PORT", "4000"),
		AppOrigin:                readString("APP_ORIGIN", "http://localhost:3001"),
		StoreDriver:              strings.ToLower(readString("STORE_DRIVER", DriverPostgres)),
		DatabaseURL:              os.Getenv("DB_DSN"),
		Timezone:                 readString("TIMEZONE", "Asia/Jakarta"),
		RequestTimeout:           readDurationSeconds("REQUEST_TIMEOUT_SECONDS", 10),
		Auth0Domain:              strings.TrimSpace(os.Getenv("AUTH0_DOMAIN")),
		Auth0Audience:            strings.TrimSpace(os.Getenv("AUTH0_AUDIENCE")),
		AuthDisabled:             readBool("AUTH_DISABLED", false),
		JWKSCacheTTL:             readDurationSeconds("JWKS_CACHE_TTL_SECONDS", 600),
		JWKSRequestsPerMinute:    readInt("JWKS_REQUESTS_PER_MINUTE", 5),
		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		TenantRateLimitPerMinute: readInt("TENANT_RATE_LIMIT_PER_MIN", 600),
		TenantRateLimitBurst:     readInt("TENANT_RATE_LIMIT_BURST", 120),
		OTelEndpoint:             os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelInsecure:             readBool("OTEL_EXPORTER_OTLP_INSECURE", false),
	}
}

// Validate refuses configurations the service cannot start with.
func (c Config) Validate() error {
	var problems []string
	if !c.AuthDisabled {
		if c.Auth0Domain == "" || c.Auth0Domain == "YOUR_DOMAIN" {
			problems = append(problems, "AUTH0_DOMAIN must be set")
		}
		if c.Auth0Audience == "" || c.Auth0Audience == "YOUR_API_IDENTIFIER" {
			problems = append(problems, "AUTH0_AUDIENCE must be set")
		}
	}
	switch c.StoreDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DB_DSN is required for the postgres store")
		}
		if c.AuthDisabled {
			problems = append(problems, "AUTH_DISABLED is only allowed with STORE_DRIVER=memory")
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, fmt.Sprintf("invalid TIMEZONE %q", c.Timezone))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

func readString(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func readBool(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
