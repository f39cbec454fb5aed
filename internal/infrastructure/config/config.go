package config

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// FingerprintKey keys the hashes that stand in for identities in logs,
	// audit records and Redis key names.
	FingerprintKey string `env:"FINGERPRINT_KEY"`

	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS, default=*"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT,     default=10s"`

	// TrustedProxies lists the CIDRs (or bare IPs) of proxies whose
	// X-Forwarded-For entries are believed. Empty means the peer address
	// is the client address.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	Gate       GateConfig
	Token      TokenConfig
	Allowlist  AllowlistConfig
	Captcha    CaptchaConfig
	Classifier ClassifierConfig
	Policy     PolicyConfig
	RateLimit  RateLimitConfig
	Admin      AdminConfig
	Audit      AuditConfig
	Mongo      MongoConfig
	Redis      RedisConfig
}

type GateConfig struct {
	DestinationURL string `env:"GATE_DESTINATION_URL"`
	PublicBaseURL  string `env:"GATE_PUBLIC_BASE_URL, default=http://localhost:8080"`
	RedirectMode   string `env:"GATE_REDIRECT_MODE,   default=fragment"`
	RedirectParam  string `env:"GATE_REDIRECT_PARAM,  default=id"`
	Encoding       string `env:"GATE_ENCODING,        default=base64"`
	EncodingSecret string `env:"GATE_ENCODING_SECRET"`
}

type TokenConfig struct {
	TTL           time.Duration `env:"TOKEN_TTL,            default=5m"`
	SweepInterval time.Duration `env:"TOKEN_SWEEP_INTERVAL, default=30s"`
	Store         string        `env:"TOKEN_STORE,          default=memory"`
}

type AllowlistConfig struct {
	Source          string        `env:"ALLOWLIST_SOURCE,           default=file"`
	File            string        `env:"ALLOWLIST_FILE,             default=emails.txt"`
	Watch           bool          `env:"ALLOWLIST_WATCH,            default=true"`
	RefreshInterval time.Duration `env:"ALLOWLIST_REFRESH_INTERVAL, default=0s"`
}

type CaptchaConfig struct {
	VerifyURL       string        `env:"CAPTCHA_VERIFY_URL,       default=https://challenges.cloudflare.com/turnstile/v0/siteverify"`
	Secret          string        `env:"CAPTCHA_SECRET"`
	Timeout         time.Duration `env:"CAPTCHA_TIMEOUT,          default=5s"`
	MaxRetries      int           `env:"CAPTCHA_MAX_RETRIES,      default=2"`
	BreakerFailures uint32        `env:"CAPTCHA_BREAKER_FAILURES, default=5"`
	BreakerCooldown time.Duration `env:"CAPTCHA_BREAKER_COOLDOWN, default=30s"`
}

type ClassifierConfig struct {
	MinInteraction      time.Duration `env:"CLASSIFIER_MIN_INTERACTION,    default=2s"`
	RequireTimestamp    bool          `env:"CLASSIFIER_REQUIRE_TIMESTAMP,  default=false"`
	BlockEmptyUserAgent bool          `env:"CLASSIFIER_BLOCK_EMPTY_UA,     default=true"`
	BlockedIPs          []string      `env:"CLASSIFIER_BLOCKED_IPS"`
	BlockedRegions      []string      `env:"CLASSIFIER_BLOCKED_REGIONS"`
	RegionHeader        string        `env:"CLASSIFIER_REGION_HEADER,      default=CF-IPCountry"`
	UserAgentTokens     []string      `env:"CLASSIFIER_UA_TOKENS"`
}

type PolicyConfig struct {
	Unauthorized string `env:"POLICY_UNAUTHORIZED, default=disclose"`
	DecoyURL     string `env:"POLICY_DECOY_URL"`
}

type RateLimitConfig struct {
	Requests int           `env:"RATE_LIMIT_REQUESTS, default=10"`
	Window   time.Duration `env:"RATE_LIMIT_WINDOW,   default=1m"`
	Store    string        `env:"RATE_LIMIT_STORE,    default=memory"`
}

type AdminConfig struct {
	// JWTSecret enables the /admin routes when set.
	JWTSecret string        `env:"ADMIN_JWT_SECRET"`
	TokenTTL  time.Duration `env:"ADMIN_TOKEN_TTL,      default=1h"`
	// OperatorStore is memory (seeded from Operators) or mongo.
	OperatorStore string `env:"ADMIN_OPERATOR_STORE, default=memory"`
	// Operators seeds the memory store with username:role:bcrypt-hash entries.
	Operators []string `env:"ADMIN_OPERATORS"`
}

type AuditConfig struct {
	Sink      string        `env:"AUDIT_SINK,      default=log"`
	Workers   int           `env:"AUDIT_WORKERS,   default=4"`
	Retention time.Duration `env:"AUDIT_RETENTION, default=720h"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI,      default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,       default=gate"`
	AppName  string `env:"MONGO_APP_NAME, default=gate-service"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	Username string `env:"REDIS_USERNAME"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,       default=0"`
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, envconfig.OsLookuper())
}

// LoadFrom is Load with an explicit lookuper.
func LoadFrom(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UsesMongo reports whether any component is configured to use MongoDB.
func (c *Config) UsesMongo() bool {
	return c.Allowlist.Source == "mongo" || c.Audit.Sink == "mongo" ||
		(c.Admin.JWTSecret != "" && c.Admin.OperatorStore == "mongo")
}

// UsesRedis reports whether any component is configured to use Redis.
func (c *Config) UsesRedis() bool {
	return c.Token.Store == "redis" || c.RateLimit.Store == "redis"
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("config: "+format, args...))
		}
	}
	oneOf := func(v string, allowed ...string) bool {
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
		return false
	}

	check(isAbsoluteURL(c.Gate.DestinationURL), "GATE_DESTINATION_URL must be an absolute URL, got %q", c.Gate.DestinationURL)
	check(isAbsoluteURL(c.Gate.PublicBaseURL), "GATE_PUBLIC_BASE_URL must be an absolute URL, got %q", c.Gate.PublicBaseURL)
	check(oneOf(c.Gate.RedirectMode, "fragment", "query"), "GATE_REDIRECT_MODE must be fragment or query, got %q", c.Gate.RedirectMode)
	check(c.Gate.RedirectMode != "query" || c.Gate.RedirectParam != "", "GATE_REDIRECT_PARAM is required in query mode")
	check(oneOf(c.Gate.Encoding, "base64", "jwt"), "GATE_ENCODING must be base64 or jwt, got %q", c.Gate.Encoding)
	check(c.Gate.Encoding != "jwt" || c.Gate.EncodingSecret != "", "GATE_ENCODING_SECRET is required for jwt encoding")

	check(c.Token.TTL > 0, "TOKEN_TTL must be positive")
	check(c.Token.SweepInterval > 0, "TOKEN_SWEEP_INTERVAL must be positive")
	check(oneOf(c.Token.Store, "memory", "redis"), "TOKEN_STORE must be memory or redis, got %q", c.Token.Store)

	check(oneOf(c.Allowlist.Source, "file", "mongo"), "ALLOWLIST_SOURCE must be file or mongo, got %q", c.Allowlist.Source)
	check(c.Allowlist.Source != "file" || c.Allowlist.File != "", "ALLOWLIST_FILE is required for the file source")
	check(c.Allowlist.RefreshInterval >= 0, "ALLOWLIST_REFRESH_INTERVAL must not be negative")

	check(c.Captcha.Secret != "", "CAPTCHA_SECRET is required")
	check(isAbsoluteURL(c.Captcha.VerifyURL), "CAPTCHA_VERIFY_URL must be an absolute URL")
	check(c.Captcha.Timeout > 0, "CAPTCHA_TIMEOUT must be positive")
	check(c.Captcha.MaxRetries >= 0, "CAPTCHA_MAX_RETRIES must not be negative")

	check(c.Classifier.MinInteraction >= 0, "CLASSIFIER_MIN_INTERACTION must not be negative")

	check(oneOf(c.Policy.Unauthorized, "disclose", "cloak"), "POLICY_UNAUTHORIZED must be disclose or cloak, got %q", c.Policy.Unauthorized)
	check(c.Policy.DecoyURL == "" || isAbsoluteURL(c.Policy.DecoyURL), "POLICY_DECOY_URL must be an absolute URL")

	check(c.RateLimit.Requests > 0, "RATE_LIMIT_REQUESTS must be positive")
	check(c.RateLimit.Window > 0, "RATE_LIMIT_WINDOW must be positive")
	check(oneOf(c.RateLimit.Store, "memory", "redis"), "RATE_LIMIT_STORE must be memory or redis, got %q", c.RateLimit.Store)

	check(c.Admin.JWTSecret == "" || len(c.Admin.JWTSecret) >= 32, "ADMIN_JWT_SECRET must be at least 32 characters")
	check(c.Admin.TokenTTL > 0, "ADMIN_TOKEN_TTL must be positive")
	check(oneOf(c.Admin.OperatorStore, "memory", "mongo"), "ADMIN_OPERATOR_STORE must be memory or mongo, got %q", c.Admin.OperatorStore)

	check(oneOf(c.Audit.Sink, "log", "mongo"), "AUDIT_SINK must be log or mongo, got %q", c.Audit.Sink)

	if _, err := c.TrustedProxyRanges(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// TrustedProxyRanges parses TrustedProxies. A bare IP becomes a single-host
// range.
func (c *Config) TrustedProxyRanges() ([]*net.IPNet, error) {
	ranges := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			ranges = append(ranges, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, ipNet, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("config: TRUSTED_PROXIES entry %q is not an IP or CIDR", raw)
		}
		ranges = append(ranges, ipNet)
	}
	return ranges, nil
}

func isAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
