package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "STOREFRONT"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabasePath    = "storefront.db"
	defaultLogLevel        = "info"
	defaultLogEncoding     = "json"
	defaultSessionIssuer   = "tauth"
	defaultCookieName      = "app_session"
	defaultShippingCents   = 5000
	defaultGeneralRPS      = 10.0
	defaultGeneralBurst    = 20
	defaultStrictRPS       = 2.0
	defaultStrictBurst     = 5
	allowedEncodingJSON    = "json"
	allowedEncodingConsole = "console"
)

// RateLimit describes one token bucket tier.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabasePath       string
	LogLevel           string
	LogEncoding        string
	SessionSigningKey  string
	SessionIssuer      string
	SessionAudience    string
	SessionCookieName  string
	CORSAllowedOrigins []string
	ShippingCents      int64
	GeneralRateLimit   RateLimit
	StrictRateLimit    RateLimit
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.encoding", defaultLogEncoding)
	configViper.SetDefault("auth.issuer", defaultSessionIssuer)
	configViper.SetDefault("auth.audience", "")
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("cors.allowed_origins", []string{})
	configViper.SetDefault("checkout.shipping_cents", defaultShippingCents)
	configViper.SetDefault("ratelimit.general_rps", defaultGeneralRPS)
	configViper.SetDefault("ratelimit.general_burst", defaultGeneralBurst)
	configViper.SetDefault("ratelimit.strict_rps", defaultStrictRPS)
	configViper.SetDefault("ratelimit.strict_burst", defaultStrictBurst)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabasePath:       configViper.GetString("database.path"),
		LogLevel:           configViper.GetString("log.level"),
		LogEncoding:        strings.ToLower(strings.TrimSpace(configViper.GetString("log.encoding"))),
		SessionSigningKey:  configViper.GetString("auth.signing_secret"),
		SessionIssuer:      configViper.GetString("auth.issuer"),
		SessionAudience:    strings.TrimSpace(configViper.GetString("auth.audience")),
		SessionCookieName:  configViper.GetString("auth.cookie_name"),
		CORSAllowedOrigins: normalizeOrigins(configViper.GetStringSlice("cors.allowed_origins")),
		ShippingCents:      configViper.GetInt64("checkout.shipping_cents"),
		GeneralRateLimit: RateLimit{
			RequestsPerSecond: configViper.GetFloat64("ratelimit.general_rps"),
			Burst:             configViper.GetInt("ratelimit.general_burst"),
		},
		StrictRateLimit: RateLimit{
			RequestsPerSecond: configViper.GetFloat64("ratelimit.strict_rps"),
			Burst:             configViper.GetInt("ratelimit.strict_burst"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SessionSigningKey) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if strings.TrimSpace(c.SessionIssuer) == "" {
		return fmt.Errorf("auth.issuer is required")
	}
	if c.LogEncoding != allowedEncodingJSON && c.LogEncoding != allowedEncodingConsole {
		return fmt.Errorf("log.encoding must be %q or %q", allowedEncodingJSON, allowedEncodingConsole)
	}
	if c.ShippingCents < 0 {
		return fmt.Errorf("checkout.shipping_cents must not be negative")
	}
	for name, limit := range map[string]RateLimit{"general": c.GeneralRateLimit, "strict": c.StrictRateLimit} {
		if limit.RequestsPerSecond <= 0 || limit.Burst <= 0 {
			return fmt.Errorf("ratelimit.%s must have positive rate and burst", name)
		}
	}
	return nil
}

func normalizeOrigins(raw []string) []string {
	origins := make([]string, 0, len(raw))
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
	}
	return origins
}

// DefaultRateLimits returns the general and strict tiers applied when no
// configuration is supplied.
func DefaultRateLimits() (general RateLimit, strict RateLimit) {
	return RateLimit{RequestsPerSecond: defaultGeneralRPS, Burst: defaultGeneralBurst},
		RateLimit{RequestsPerSecond: defaultStrictRPS, Burst: defaultStrictBurst}
}
