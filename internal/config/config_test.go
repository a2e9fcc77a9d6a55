package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, SignatureEnforce, cfg.SignatureMode)
	assert.Equal(t, DispatchInline, cfg.DispatchMode)
	assert.Equal(t, 2*time.Second, cfg.ReplyDelay)
	assert.True(t, cfg.TypingIndicator)
	assert.Equal(t, "https://graph.facebook.com", cfg.GraphAPIBase)
}

func TestLoadTrimsSecretAndUsesPort(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "8081")
	t.Setenv("IG_APP_SECRET", "  s3cret\n")
	t.Setenv("TYPING_INDICATOR", "false")
	t.Setenv("REPLY_DELAY", "250ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "s3cret", cfg.IGAppSecret)
	assert.False(t, cfg.TypingIndicator)
	assert.Equal(t, 250*time.Millisecond, cfg.ReplyDelay)
}

func TestLoadIgnoresNonNumericPort(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("PORT", "abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":3000", cfg.HTTPAddr)
}

func TestAsynqAddrFallsBackToRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("ASYNQ_REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "redis:6379", cfg.AsynqRedisAddr)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			AppEnv:        "development",
			HTTPAddr:      ":3000",
			SignatureMode: SignatureEnforce,
			DispatchMode:  DispatchInline,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "ok", mutate: func(c *Config) {}},
		{
			name:    "prod requires secrets",
			mutate:  func(c *Config) { c.AppEnv = "production" },
			wantErr: "IG_APP_SECRET, WEBHOOK_VERIFY_TOKEN",
		},
		{
			name: "disabled signature rejected in prod",
			mutate: func(c *Config) {
				c.AppEnv = "production"
				c.IGAppSecret = "x"
				c.WebhookVerifyToken = "y"
				c.SignatureMode = SignatureDisabled
			},
			wantErr: "not allowed in production",
		},
		{
			name:   "disabled signature allowed in dev",
			mutate: func(c *Config) { c.SignatureMode = SignatureDisabled },
		},
		{
			name:    "queue mode needs asynq redis",
			mutate:  func(c *Config) { c.DispatchMode = DispatchQueue },
			wantErr: "ASYNQ_REDIS_ADDR",
		},
		{
			name:    "unknown dispatch mode",
			mutate:  func(c *Config) { c.DispatchMode = "kafka" },
			wantErr: "invalid DISPATCH_MODE",
		},
		{
			name:    "unknown signature mode",
			mutate:  func(c *Config) { c.SignatureMode = "maybe" },
			wantErr: "invalid SIGNATURE_MODE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMissingRecommended(t *testing.T) {
	c := &Config{IGAppID: "app"}
	assert.Equal(t, []string{"IG_APP_SECRET", "WEBHOOK_VERIFY_TOKEN"}, c.MissingRecommended())
}
