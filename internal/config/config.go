package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DispatchInline = "inline" // goroutine per event, drained on shutdown
	DispatchQueue  = "queue"  // asynq task per event

	SignatureEnforce  = "enforce"
	SignatureDisabled = "disabled" // local development only
)

type Config struct {
	// App
	AppEnv    string // development | production | staging
	HTTPAddr  string // e.g. :3000
	LogLevel  string // debug | info | warn | error
	LogFormat string // json | text

	// Instagram / Meta
	IGAppID            string
	IGAppSecret        string // key for X-Hub-Signature-256 and OAuth client secret
	WebhookVerifyToken string // hub.verify_token for the GET handshake
	IGRedirectURI      string
	FrontendURL        string
	GraphAPIBase       string // e.g. https://graph.facebook.com
	GraphAPIVersion    string // e.g. v18.0

	// Dev seed for the credential store (prod: OAuth flow)
	IGPageAccessToken string
	IGAccountID       string

	// Webhook pipeline
	SignatureMode   string
	DispatchMode    string
	ReplyDelay      time.Duration
	TypingIndicator bool
	SendTimeout     time.Duration
	DispatchGrace   time.Duration

	// Redis (OAuth state). Empty means in-memory.
	RedisAddr     string
	RedisPassword string

	// Asynq (DISPATCH_MODE=queue)
	AsynqRedisAddr     string
	AsynqRedisPassword string
	AsynqRedisDB       int
	AsynqConcurrency   int
}

func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("GRAPH_API_BASE", "https://graph.facebook.com")
	v.SetDefault("GRAPH_API_VERSION", "v18.0")
	v.SetDefault("SIGNATURE_MODE", SignatureEnforce)
	v.SetDefault("DISPATCH_MODE", DispatchInline)
	v.SetDefault("REPLY_DELAY", "2s")
	v.SetDefault("TYPING_INDICATOR", true)
	v.SetDefault("SEND_TIMEOUT", "10s")
	v.SetDefault("DISPATCH_GRACE", "10s")
	v.SetDefault("ASYNQ_REDIS_DB", 1)
	v.SetDefault("ASYNQ_CONCURRENCY", 10)

	cfg := &Config{
		AppEnv:    v.GetString("APP_ENV"),
		HTTPAddr:  httpAddr(v),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),

		IGAppID:            v.GetString("IG_APP_ID"),
		IGAppSecret:        strings.TrimSpace(v.GetString("IG_APP_SECRET")),
		WebhookVerifyToken: v.GetString("WEBHOOK_VERIFY_TOKEN"),
		IGRedirectURI:      v.GetString("IG_REDIRECT_URI"),
		FrontendURL:        v.GetString("FRONTEND_URL"),
		GraphAPIBase:       strings.TrimRight(v.GetString("GRAPH_API_BASE"), "/"),
		GraphAPIVersion:    v.GetString("GRAPH_API_VERSION"),

		IGPageAccessToken: v.GetString("IG_PAGE_ACCESS_TOKEN"),
		IGAccountID:       v.GetString("IG_ACCOUNT_ID"),

		SignatureMode:   v.GetString("SIGNATURE_MODE"),
		DispatchMode:    v.GetString("DISPATCH_MODE"),
		ReplyDelay:      v.GetDuration("REPLY_DELAY"),
		TypingIndicator: v.GetBool("TYPING_INDICATOR"),
		SendTimeout:     v.GetDuration("SEND_TIMEOUT"),
		DispatchGrace:   v.GetDuration("DISPATCH_GRACE"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),

		AsynqRedisAddr:     getFallback(v, "ASYNQ_REDIS_ADDR", "REDIS_ADDR"),
		AsynqRedisPassword: getFallback(v, "ASYNQ_REDIS_PASSWORD", "REDIS_PASSWORD"),
		AsynqRedisDB:       v.GetInt("ASYNQ_REDIS_DB"),
		AsynqConcurrency:   v.GetInt("ASYNQ_CONCURRENCY"),
	}

	// Normalise
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.SignatureMode = strings.ToLower(strings.TrimSpace(cfg.SignatureMode))
	cfg.DispatchMode = strings.ToLower(strings.TrimSpace(cfg.DispatchMode))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var missing []string

	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	if c.DispatchMode == DispatchQueue && c.AsynqRedisAddr == "" {
		missing = append(missing, "ASYNQ_REDIS_ADDR")
	}
	if c.IsProd() {
		if c.IGAppSecret == "" {
			missing = append(missing, "IG_APP_SECRET")
		}
		if c.WebhookVerifyToken == "" {
			missing = append(missing, "WEBHOOK_VERIFY_TOKEN")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env: %s", strings.Join(missing, ", "))
	}

	switch c.SignatureMode {
	case SignatureEnforce:
	case SignatureDisabled:
		if c.IsProd() {
			return fmt.Errorf("SIGNATURE_MODE=%s is not allowed in production", SignatureDisabled)
		}
	default:
		return fmt.Errorf("invalid SIGNATURE_MODE %q", c.SignatureMode)
	}

	if c.DispatchMode != DispatchInline && c.DispatchMode != DispatchQueue {
		return fmt.Errorf("invalid DISPATCH_MODE %q", c.DispatchMode)
	}
	if c.ReplyDelay < 0 {
		return fmt.Errorf("REPLY_DELAY must not be negative")
	}
	return nil
}

func (c *Config) IsProd() bool {
	return c.AppEnv == "production"
}

// MissingRecommended lists unset variables the OAuth flow and webhook need.
func (c *Config) MissingRecommended() []string {
	var out []string
	if c.IGAppID == "" {
		out = append(out, "IG_APP_ID")
	}
	if c.IGAppSecret == "" {
		out = append(out, "IG_APP_SECRET")
	}
	if c.WebhookVerifyToken == "" {
		out = append(out, "WEBHOOK_VERIFY_TOKEN")
	}
	return out
}

// --- helpers ---

// httpAddr prefers HTTP_ADDR, then a numeric PORT, then :3000.
func httpAddr(v *viper.Viper) string {
	if addr := v.GetString("HTTP_ADDR"); addr != "" {
		return addr
	}
	if p := v.GetString("PORT"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			return ":" + strconv.Itoa(n)
		}
	}
	return ":3000"
}

func getFallback(v *viper.Viper, primary, fallback string) string {
	if s := v.GetString(primary); s != "" {
		return s
	}
	return v.GetString(fallback)
}
