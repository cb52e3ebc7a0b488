package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
messenger:
  token: page-token
  verify_token: verify
forms:
  source_url: https://forms.example/api/forms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, TransportMessenger, cfg.Transport)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, ":5000", cfg.Server.Addr())
	assert.Equal(t, DefaultSubmitTimeout, cfg.Forms.SubmitTimeout)
	assert.Equal(t, DefaultGraphURL, cfg.Messenger.GraphURL)
	assert.Equal(t, "/webhook", cfg.Messenger.WebhookPath)
	assert.False(t, cfg.Forms.SelectUniform)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
messenger:
  token: from-file
  verify_token: verify
  graph_url: https://graph.example/v1/
forms:
  source_url: https://forms.example/api/forms
server:
  port: 8080
`)
	t.Setenv("FB_TOKEN", "from-env")
	t.Setenv("PORT", "9090")
	t.Setenv("FORMS_SUBMIT_TIMEOUT", "2s")
	t.Setenv("FORMS_SELECT_UNIFORM", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Messenger.Token)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Forms.SubmitTimeout)
	assert.True(t, cfg.Forms.SelectUniform)
	assert.Equal(t, "https://graph.example/v1", cfg.Messenger.GraphURL)
}

func TestLoadEnvOnly(t *testing.T) {
	t.Setenv("FB_TOKEN", "page-token")
	t.Setenv("FB_VERIFY_TOKEN", "verify")
	t.Setenv("FB_SECRET", "secret")
	t.Setenv("FORMS_URL", "https://forms.example/api/forms")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Messenger.AppSecret)
	assert.Equal(t, "https://forms.example/api/forms", cfg.Forms.SourceURL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestNormalizeRejects(t *testing.T) {
	base := func() Config {
		return Config{
			Messenger: MessengerConfig{Token: "t", VerifyToken: "v"},
			Forms:     FormsConfig{SourceURL: "https://forms.example/"},
		}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "missing source", mutate: func(c *Config) { c.Forms.SourceURL = "" }, want: "SourceURL"},
		{name: "bad source", mutate: func(c *Config) { c.Forms.SourceURL = "not a url" }, want: "SourceURL"},
		{name: "port range", mutate: func(c *Config) { c.Server.Port = 70000 }, want: "Port"},
		{name: "messenger token", mutate: func(c *Config) { c.Messenger.Token = "" }, want: "messenger.token"},
		{name: "verify token", mutate: func(c *Config) { c.Messenger.VerifyToken = "" }, want: "verify_token"},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "sms" }, want: "invalid transport"},
		{name: "telegram token", mutate: func(c *Config) { c.Transport = TransportTelegram }, want: "telegram token"},
		{name: "telegram run mode", mutate: func(c *Config) {
			c.Transport = TransportTelegram
			c.Telegram = TelegramConfig{Token: "x", RunMode: "push"}
		}, want: "run_mode"},
		{name: "telegram webhook url", mutate: func(c *Config) {
			c.Transport = TransportTelegram
			c.Telegram = TelegramConfig{Token: "x", RunMode: RunModeWebhook}
		}, want: "webhook.url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := Normalize(&cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.Error(t, Normalize(nil))
}

func TestNormalizeTelegramModes(t *testing.T) {
	cfg := Config{
		Transport: " Telegram ",
		Telegram:  TelegramConfig{Token: "x", RunMode: "polling"},
		Forms:     FormsConfig{SourceURL: "https://forms.example/"},
	}
	require.NoError(t, Normalize(&cfg))
	assert.Equal(t, TransportTelegram, cfg.Transport)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)

	cfg.Telegram.RunMode = "WEBHOOK"
	cfg.Webhook = WebhookConfig{URL: "https://bot.example/hook", Port: 8443}
	require.NoError(t, Normalize(&cfg))
	assert.Equal(t, RunModeWebhook, cfg.Telegram.RunMode)
}
