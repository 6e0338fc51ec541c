package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	authapi "sessiond/cmd/internal/auth/api"
	"sessiond/cmd/internal/auth/session"
	"sessiond/cmd/security/password"
	"sessiond/cmd/security/token"

	"github.com/spf13/viper"
)

// envPrefix namespaces every key: http_addr is read from SESSIOND_HTTP_ADDR.
const envPrefix = "SESSIOND"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `mapstructure:"http_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	ReadHeaderTimeout time.Duration `mapstructure:"http_read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"http_read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"http_write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"http_idle_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"http_shutdown_timeout"`
	MaxHeaderBytes    int           `mapstructure:"http_max_header_bytes"`

	// DatabaseURL empty means in-memory mode: nothing survives a restart.
	DatabaseURL string `mapstructure:"database_url"`
	DBMaxConns  int32  `mapstructure:"db_max_conns"`
	DBMinConns  int32  `mapstructure:"db_min_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool `mapstructure:"readiness_require_db"`

	// RedisURL enables the account guard cache. GuardCacheTTL <= 0 disables it.
	RedisURL      string        `mapstructure:"redis_url"`
	GuardCacheTTL time.Duration `mapstructure:"guard_cache_ttl"`

	RotationEnabled      bool          `mapstructure:"rotation_enabled"`
	RotationGraceSeconds int           `mapstructure:"rotation_grace_seconds"`
	RefreshTTLPersistent time.Duration `mapstructure:"refresh_ttl_persistent"`
	RefreshTTLSession    time.Duration `mapstructure:"refresh_ttl_session"`
	AccessTTL            time.Duration `mapstructure:"access_ttl"`

	TokenFormat          string        `mapstructure:"token_format"`
	TokenIssuer          string        `mapstructure:"token_issuer"`
	TokenClockSkew       time.Duration `mapstructure:"token_clock_skew"`
	TokenHMACSecret      string        `mapstructure:"token_hmac_secret"`
	TokenPasetoSecretKey string        `mapstructure:"token_paseto_secret_key"`

	TrustProxy     bool   `mapstructure:"trust_proxy"`
	CountryHeader  string `mapstructure:"country_header"`
	MaxBodyBytes   int64  `mapstructure:"max_body_bytes"`
	CookieName     string `mapstructure:"cookie_name"`
	CookiePath     string `mapstructure:"cookie_path"`
	CookieDomain   string `mapstructure:"cookie_domain"`
	CookieSecure   bool   `mapstructure:"cookie_secure"`
	CookieSameSite string `mapstructure:"cookie_samesite"`

	LoginIPMax    int           `mapstructure:"login_ip_max"`
	LoginIPWindow time.Duration `mapstructure:"login_ip_window"`

	// Argon2id cost and password policy. Zero means the password package default;
	// Argon2Parallelism 0 follows the CPU count.
	PasswordMinLen         int    `mapstructure:"password_min_len"`
	PasswordMaxLen         int    `mapstructure:"password_max_len"`
	PasswordRejectVeryWeak bool   `mapstructure:"password_reject_very_weak"`
	Argon2MemoryKiB        uint32 `mapstructure:"argon2_memory_kib"`
	Argon2Iterations       uint32 `mapstructure:"argon2_iterations"`
	Argon2Parallelism      uint8  `mapstructure:"argon2_parallelism"`
	Argon2SaltLen          uint32 `mapstructure:"argon2_salt_len"`
	Argon2KeyLen           uint32 `mapstructure:"argon2_key_len"`

	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
	CORSMaxAgeSeconds    int      `mapstructure:"cors_max_age_seconds"`

	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// DevUser/DevPassword seed one account in in-memory mode.
	DevUser     string `mapstructure:"dev_user"`
	DevPassword string `mapstructure:"dev_password"`
}

var defaults = map[string]any{
	"http_addr":  "0.0.0.0:8080",
	"log_level":  "info",
	"log_format": "json",

	"http_read_header_timeout": 5 * time.Second,
	"http_read_timeout":        15 * time.Second,
	"http_write_timeout":       15 * time.Second,
	"http_idle_timeout":        60 * time.Second,
	"http_shutdown_timeout":    10 * time.Second,
	"http_max_header_bytes":    1 << 20,

	"database_url":         "",
	"db_max_conns":         10,
	"db_min_conns":         0,
	"auto_migrate":         false,
	"readiness_require_db": false,

	"redis_url":       "",
	"guard_cache_ttl": 5 * time.Second,

	"rotation_enabled":       true,
	"rotation_grace_seconds": 30,
	"refresh_ttl_persistent": 720 * time.Hour,
	"refresh_ttl_session":    24 * time.Hour,
	"access_ttl":             15 * time.Minute,

	"token_format":            string(token.FormatJWT),
	"token_issuer":            "sessiond",
	"token_clock_skew":        30 * time.Second,
	"token_hmac_secret":       "",
	"token_paseto_secret_key": "",

	"trust_proxy":     false,
	"country_header":  "CF-IPCountry",
	"max_body_bytes":  1 << 20,
	"cookie_name":     "sessiond_refresh",
	"cookie_path":     "/",
	"cookie_domain":   "",
	"cookie_secure":   true,
	"cookie_samesite": "lax",

	"login_ip_max":    20,
	"login_ip_window": 5 * time.Minute,

	"password_min_len":          12,
	"password_max_len":          256,
	"password_reject_very_weak": false,
	"argon2_memory_kib":         64 * 1024,
	"argon2_iterations":         3,
	"argon2_parallelism":        0,
	"argon2_salt_len":           16,
	"argon2_key_len":            32,

	"cors_allowed_origins":   []string{},
	"cors_allow_credentials": true,
	"cors_max_age_seconds":   600,

	"metrics_enabled": true,

	"dev_user":     "",
	"dev_password": "",
}

// LoadConfig builds Config from SESSIOND_* environment variables over the defaults
// and validates it.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	for k, def := range defaults {
		v.SetDefault(k, def)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.CORSAllowedOrigins = splitList(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate fails fast on values that would otherwise surface as odd runtime behavior.
func (c Config) Validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return errors.New("config: SESSIOND_HTTP_ADDR must be set")
	}
	if c.RotationGraceSeconds < 0 {
		return errors.New("config: SESSIOND_ROTATION_GRACE_SECONDS must be >= 0")
	}
	if err := c.SessionConfig().Validate(); err != nil {
		return fmt.Errorf("config: refresh lifetimes: %w", err)
	}
	if c.AccessTTL <= 0 {
		return errors.New("config: SESSIOND_ACCESS_TTL must be > 0")
	}
	if c.DBMinConns < 0 || (c.DBMaxConns > 0 && c.DBMinConns > c.DBMaxConns) {
		return errors.New("config: SESSIOND_DB_MIN_CONNS must be between 0 and SESSIOND_DB_MAX_CONNS")
	}
	if c.AutoMigrate && strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("config: SESSIOND_AUTO_MIGRATE requires SESSIOND_DATABASE_URL")
	}
	if err := c.PasswordConfig().ValidateParams(); err != nil {
		return fmt.Errorf("config: password: %w", err)
	}
	return ValidateSecurityConfig(c)
}

// SessionConfig derives the rotation policy.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		RotationEnabled:      c.RotationEnabled,
		RotationGrace:        time.Duration(c.RotationGraceSeconds) * time.Second,
		RefreshTTLPersistent: c.RefreshTTLPersistent,
		RefreshTTLSession:    c.RefreshTTLSession,
	}
}

// TokenConfig derives the codec settings.
func (c Config) TokenConfig() token.Config {
	return token.Config{
		Format:             token.Format(strings.ToLower(strings.TrimSpace(c.TokenFormat))),
		Issuer:             c.TokenIssuer,
		AccessTTL:          c.AccessTTL,
		ClockSkew:          c.TokenClockSkew,
		HMACSecret:         c.TokenHMACSecret,
		PasetoSecretKeyHex: strings.TrimSpace(c.TokenPasetoSecretKey),
	}
}

// PasswordConfig derives Argon2id cost and the password policy.
func (c Config) PasswordConfig() password.Config {
	pc := password.DefaultConfig()
	setIfPositive(&pc.Policy.MinLength, c.PasswordMinLen)
	setIfPositive(&pc.Policy.MaxLength, c.PasswordMaxLen)
	pc.Policy.RejectVeryWeak = c.PasswordRejectVeryWeak
	setIfPositive(&pc.Params.MemoryKiB, c.Argon2MemoryKiB)
	setIfPositive(&pc.Params.Iterations, c.Argon2Iterations)
	setIfPositive(&pc.Params.Parallelism, c.Argon2Parallelism)
	setIfPositive(&pc.Params.SaltLength, c.Argon2SaltLen)
	setIfPositive(&pc.Params.KeyLength, c.Argon2KeyLen)
	return pc
}

func setIfPositive[T int | uint8 | uint32](dst *T, v T) {
	if v > 0 {
		*dst = v
	}
}

// APIConfig derives the HTTP transport settings of the session endpoints.
func (c Config) APIConfig() authapi.Config {
	return authapi.Config{
		TrustProxy:        c.TrustProxy,
		CountryHeader:     c.CountryHeader,
		MaxBodyBytes:      c.MaxBodyBytes,
		RefreshCookieName: c.CookieName,
		CookiePath:        c.CookiePath,
		CookieDomain:      c.CookieDomain,
		CookieSecure:      c.CookieSecure,
		CookieSameSite:    authapi.ParseSameSite(c.CookieSameSite),
		LoginIPMax:        c.LoginIPMax,
		LoginIPWindow:     c.LoginIPWindow,
	}.Normalize()
}

// splitList flattens comma-separated entries and drops blanks.
func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
