package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env string `yaml:"env"`
	} `yaml:"app"`

	Server struct {
		Addr               string   `yaml:"addr"`
		BaseURL            string   `yaml:"base_url"`
		CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
	} `yaml:"server"`

	// IdP holds the OAuth2/OIDC client configuration for the bank's
	// identity provider. Validate in the idp package fails fast on missing
	// values so a broken deployment never builds a half-formed
	// authorization URL.
	IdP struct {
		AuthorizationEndpoint string `yaml:"authorization_endpoint"`
		TokenEndpoint         string `yaml:"token_endpoint"`
		UserInfoEndpoint      string `yaml:"userinfo_endpoint"`
		ClientID              string `yaml:"client_id"`
		RedirectURI           string `yaml:"redirect_uri"`
		Scope                 string `yaml:"scope"`
		Timeout               string `yaml:"timeout"`
	} `yaml:"idp"`

	Profile struct {
		BaseURL             string `yaml:"base_url"`
		DirectoryURL        string `yaml:"directory_url"`
		Timeout             string `yaml:"timeout"`
		DirectorConcurrency int    `yaml:"director_concurrency"`
	} `yaml:"profile"`

	OTP struct {
		URL         string `yaml:"url"`
		CountryCode string `yaml:"country_code"`
		// Certificate is forwarded verbatim to the mobile-auth gateway.
		// It is an opaque credential here; no PKI handling happens in
		// this service.
		Certificate    string `yaml:"certificate"`
		Timeout        string `yaml:"timeout"`
		ResendCooldown string `yaml:"resend_cooldown"`
	} `yaml:"otp"`

	Session struct {
		CookieName string `yaml:"cookie_name"`
		Domain     string `yaml:"domain"`
		SameSite   string `yaml:"samesite"`
		Secure     bool   `yaml:"secure"`
		TTL        string `yaml:"ttl"`
	} `yaml:"session"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	Rate struct {
		Enabled bool `yaml:"enabled"`
		OTPSend struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"otp_send"`
		OTPValidate struct {
			Limit  int    `yaml:"limit"`
			Window string `yaml:"window"`
		} `yaml:"otp_validate"`
	} `yaml:"rate"`

	Admin struct {
		// APIKey guards the /v1/admin surface. Empty disables admin routes.
		APIKey string `yaml:"api_key"`
	} `yaml:"admin"`

	Audit struct {
		Driver string `yaml:"driver"` // log | postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"audit"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads the YAML config at path and applies environment overrides.
// Path may be empty, in which case only env and defaults apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(c *Config) {
	setStr(&c.App.Env, "APP_ENV")
	setStr(&c.Server.Addr, "SERVER_ADDR")
	setStr(&c.Server.BaseURL, "SERVER_BASE_URL")

	setStr(&c.IdP.AuthorizationEndpoint, "IDP_AUTHORIZATION_ENDPOINT")
	setStr(&c.IdP.TokenEndpoint, "IDP_TOKEN_ENDPOINT")
	setStr(&c.IdP.UserInfoEndpoint, "IDP_USERINFO_ENDPOINT")
	setStr(&c.IdP.ClientID, "IDP_CLIENT_ID")
	setStr(&c.IdP.RedirectURI, "IDP_REDIRECT_URI")
	setStr(&c.IdP.Scope, "IDP_SCOPE")

	setStr(&c.Profile.BaseURL, "PROFILE_BASE_URL")
	setStr(&c.Profile.DirectoryURL, "PROFILE_DIRECTORY_URL")

	setStr(&c.OTP.URL, "OTP_URL")
	setStr(&c.OTP.CountryCode, "OTP_COUNTRY_CODE")
	setStr(&c.OTP.Certificate, "OTP_CERTIFICATE")

	setStr(&c.Cache.Kind, "CACHE_KIND")
	setStr(&c.Cache.Redis.Addr, "REDIS_ADDR")
	if v := strings.TrimSpace(os.Getenv("REDIS_DB")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.Redis.DB = n
		}
	}

	setStr(&c.Admin.APIKey, "ADMIN_API_KEY")
	setStr(&c.Audit.Driver, "AUDIT_DRIVER")
	setStr(&c.Audit.DSN, "AUDIT_DSN")
	setStr(&c.Log.Level, "LOG_LEVEL")
}

func applyDefaults(c *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.IdP.Scope == "" {
		c.IdP.Scope = "openid email profile"
	}
	if c.Profile.DirectorConcurrency <= 0 {
		c.Profile.DirectorConcurrency = 4
	}
	if c.OTP.CountryCode == "" {
		c.OTP.CountryCode = "27"
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "mb_signin"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "signin:"
	}
	if c.Audit.Driver == "" {
		c.Audit.Driver = "log"
	}
}

func setStr(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

// Duration accessors: YAML carries durations as strings so operators can
// write "30s" / "5m"; each accessor has its own fallback.

func (c *Config) IdPTimeout() time.Duration     { return parseDur(c.IdP.Timeout, 10*time.Second) }
func (c *Config) ProfileTimeout() time.Duration { return parseDur(c.Profile.Timeout, 10*time.Second) }
func (c *Config) OTPTimeout() time.Duration     { return parseDur(c.OTP.Timeout, 15*time.Second) }
func (c *Config) SessionTTL() time.Duration     { return parseDur(c.Session.TTL, 30*time.Minute) }
func (c *Config) ResendCooldown() time.Duration {
	return parseDur(c.OTP.ResendCooldown, 30*time.Second)
}
func (c *Config) MemoryDefaultTTL() time.Duration {
	return parseDur(c.Cache.Memory.DefaultTTL, 30*time.Minute)
}
func (c *Config) RateOTPSendWindow() time.Duration {
	return parseDur(c.Rate.OTPSend.Window, time.Minute)
}
func (c *Config) RateOTPValidateWindow() time.Duration {
	return parseDur(c.Rate.OTPValidate.Window, time.Minute)
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
