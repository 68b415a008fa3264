// Package config loads service configuration from the environment and
// optional dotenv files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"lawdesk.org/internal/auth"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	RegistrationKV = "kv"
	RegistrationPG = "pg"

	devVerificationSecret = "lawdesk-dev-secret"
)

// Config holds runtime configuration. Every field maps to one LAWDESK_*
// variable.
type Config struct {
	Env      string
	HTTPAddr string
	GRPCAddr string

	PGDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration

	AMQPURL string

	VerificationSecret string
	VerificationIssuer string
	AdminContact       string
	PolicyFile         string
	RevalidateSessions bool
	RegistrationStore  string

	// BootstrapAdminEmail and BootstrapAdminPassword seed the first
	// administrator who can log in. Both or neither.
	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	RateBurst     int
	RatePerSecond int
	ClientIdle    time.Duration
	CookieSecure  bool
}

// Load reads the given dotenv files, skipping missing ones, then the
// environment. Variables already set in the environment win over file values.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var errs []error
	c := Config{
		Env:                getEnv("LAWDESK_ENV", EnvDevelopment),
		HTTPAddr:           getEnv("LAWDESK_HTTP_ADDR", ":8080"),
		GRPCAddr:           getEnv("LAWDESK_GRPC_ADDR", ":9090"),
		PGDSN:              os.Getenv("LAWDESK_PG_DSN"),
		RedisAddr:          os.Getenv("LAWDESK_REDIS_ADDR"),
		RedisPassword:      os.Getenv("LAWDESK_REDIS_PASSWORD"),
		RedisDB:            getInt("LAWDESK_REDIS_DB", 0, &errs),
		SessionTTL:         getDuration("LAWDESK_SESSION_TTL", 0, &errs),
		AMQPURL:            os.Getenv("LAWDESK_AMQP_URL"),
		VerificationSecret: os.Getenv("LAWDESK_VERIFICATION_SECRET"),
		VerificationIssuer: getEnv("LAWDESK_VERIFICATION_ISSUER", "lawdesk-auth"),
		AdminContact:       getEnv("LAWDESK_ADMIN_CONTACT", "admin@lawdesk.local"),
		PolicyFile:         os.Getenv("LAWDESK_POLICY_FILE"),
		RevalidateSessions: getBool("LAWDESK_REVALIDATE_SESSIONS", false, &errs),
		RegistrationStore:  strings.ToLower(getEnv("LAWDESK_REGISTRATION_STORE", RegistrationKV)),
		RateBurst:          getInt("LAWDESK_RATE_BURST", 20, &errs),
		RatePerSecond:      getInt("LAWDESK_RATE_PER_SECOND", 10, &errs),
		ClientIdle:         getDuration("LAWDESK_CLIENT_IDLE", 30*time.Minute, &errs),
		CookieSecure:       getBool("LAWDESK_COOKIE_SECURE", false, &errs),

		BootstrapAdminEmail:    strings.TrimSpace(os.Getenv("LAWDESK_BOOTSTRAP_ADMIN_EMAIL")),
		BootstrapAdminPassword: os.Getenv("LAWDESK_BOOTSTRAP_ADMIN_PASSWORD"),
	}

	if c.VerificationSecret == "" {
		if c.Env == EnvProduction {
			errs = append(errs, errors.New("LAWDESK_VERIFICATION_SECRET is required in production"))
		}
		c.VerificationSecret = devVerificationSecret
	}
	switch c.RegistrationStore {
	case RegistrationKV:
	case RegistrationPG:
		if c.PGDSN == "" {
			errs = append(errs, errors.New("LAWDESK_REGISTRATION_STORE=pg requires LAWDESK_PG_DSN"))
		}
	default:
		errs = append(errs, fmt.Errorf("LAWDESK_REGISTRATION_STORE: unknown value %q", c.RegistrationStore))
	}
	if (c.BootstrapAdminEmail == "") != (c.BootstrapAdminPassword == "") {
		errs = append(errs, errors.New("LAWDESK_BOOTSTRAP_ADMIN_EMAIL and LAWDESK_BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}
	if c.RateBurst <= 0 || c.RatePerSecond <= 0 {
		errs = append(errs, errors.New("rate limit values must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Policy loads the permission catalog and role templates. Without a policy
// file the built-in catalog and templates apply.
func (c Config) Policy() (*auth.Catalog, []auth.RoleTemplate, error) {
	if c.PolicyFile == "" {
		return auth.BuiltinCatalog(), auth.DefaultRoleTemplates(), nil
	}
	data, err := os.ReadFile(c.PolicyFile)
	if err != nil {
		return nil, nil, fmt.Errorf("read policy: %w", err)
	}
	catalog, templates, err := auth.ParsePolicyYAML(data)
	if err != nil {
		return nil, nil, err
	}
	if len(templates) == 0 {
		templates = auth.DefaultRoleTemplates()
	}
	return catalog, templates, nil
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int, errs *[]error) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func getBool(key string, def bool, errs *[]error) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func getDuration(key string, def time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
