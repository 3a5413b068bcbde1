// pkg/config/config.go
package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Redis & Postgres
	RedisURL       string
	DatabaseURL    string
	TenantSeedFile string
	// Users, employees and stores for the in-memory directory (dev only)
	AccountSeedFile string

	// System default LINE channel (backfills tenant channel fields)
	LineChannelID     string
	LineChannelSecret string
	LineRedirectURI   string
	DefaultTenantID   string

	// Provider endpoints (overridable for staging / tests)
	LineAuthorizeURL string
	LineTokenURL     string
	LineVerifyURL    string
	LineIssuer       string
	ProviderTimeout  time.Duration
	IntrospectAccess bool

	// Session credential
	SessionSigningKey     string
	SessionSigningKeyFile string
	SessionSigningAlg     string
	SessionIssuer         string
	SessionAudience       string
	SessionTTL            time.Duration

	// Home-tenant reassignment policy: overwrite | keep | reject
	TenantMovePolicy   string
	TenantMoveRegoFile string

	AllowedRedirectOrigins []string
	CORSOrigins            []string
	// Honor X-Forwarded-Host only behind a proxy that overwrites it
	TrustForwardedHost bool
	RateLimitPerMinute     int
	StateTTL               time.Duration
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:                    env("AUTH_ENV", "dev"),
		HTTPAddr:               env("AUTH_HTTP_ADDR", ":8080"),
		RedisURL:               env("REDIS_URL", ""),
		DatabaseURL:            env("DATABASE_URL", ""),
		TenantSeedFile:         env("TENANT_SEED_FILE", ""),
		AccountSeedFile:        env("ACCOUNT_SEED_FILE", ""),
		LineChannelID:          env("LINE_CHANNEL_ID", ""),
		LineChannelSecret:      env("LINE_CHANNEL_SECRET", ""),
		LineRedirectURI:        env("LINE_REDIRECT_URI", ""),
		DefaultTenantID:        env("DEFAULT_TENANT_ID", ""),
		LineAuthorizeURL:       env("LINE_AUTHORIZE_URL", "https://access.line.me/oauth2/v2.1/authorize"),
		LineTokenURL:           env("LINE_TOKEN_URL", "https://api.line.me/oauth2/v2.1/token"),
		LineVerifyURL:          env("LINE_VERIFY_URL", "https://api.line.me/oauth2/v2.1/verify"),
		LineIssuer:             env("LINE_ISSUER", "https://access.line.me"),
		ProviderTimeout:        envDur("PROVIDER_TIMEOUT_SEC", 5) * time.Second,
		IntrospectAccess:       envBool("INTROSPECT_ACCESS_TOKEN", true),
		SessionSigningKey:      env("SESSION_SIGNING_KEY", ""),
		SessionSigningKeyFile:  env("SESSION_SIGNING_KEY_FILE", ""),
		SessionSigningAlg:      env("SESSION_SIGNING_ALG", "HS256"),
		SessionIssuer:          env("SESSION_ISSUER", "lineauth"),
		SessionAudience:        env("SESSION_AUDIENCE", "storefront"),
		SessionTTL:             envDur("SESSION_TTL_SEC", 3600) * time.Second,
		TenantMovePolicy:       env("TENANT_MOVE_POLICY", "overwrite"),
		TenantMoveRegoFile:     env("TENANT_MOVE_REGO_FILE", ""),
		AllowedRedirectOrigins: envList("ALLOWED_REDIRECT_ORIGINS"),
		CORSOrigins:            envList("CORS_ORIGINS"),
		TrustForwardedHost:     envBool("TRUST_FORWARDED_HOST", false),
		RateLimitPerMinute:     envInt("RATE_LIMIT_PER_MIN", 60),
		StateTTL:               envDur("STATE_TTL_SEC", 600) * time.Second,
	}
	if cfg.DatabaseURL == "" {
		log.Println("[WARN] DATABASE_URL not set; using in-memory directories for dev")
	}
	if cfg.RedisURL == "" {
		log.Println("[WARN] REDIS_URL not set; OAuth state nonces kept in process memory")
	}
	if cfg.Env == "dev" && len(cfg.AllowedRedirectOrigins) == 0 {
		log.Println("[WARN] ALLOWED_REDIRECT_ORIGINS not set; login accepts any redirect origin (dev only)")
	}
	return cfg
}

// Validate rejects settings that are only tolerated in dev.
func (c Config) Validate() error {
	if c.Env != "dev" && len(c.AllowedRedirectOrigins) == 0 {
		return errors.New("ALLOWED_REDIRECT_ORIGINS must be set outside AUTH_ENV=dev")
	}
	return nil
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			return def
		}
		return i
	}
	return def
}
func envDur(k string, def int) time.Duration {
	return time.Duration(envInt(k, def))
}
func envList(k string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(k), ",") {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
