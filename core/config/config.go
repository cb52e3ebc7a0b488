package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// TransportMessenger serves the Messenger Platform webhook.
	TransportMessenger = "messenger"
	// TransportTelegram runs a Telegram bot instead of the Messenger webhook.
	TransportTelegram = "telegram"
)

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// DefaultPort is used when neither the file nor PORT set a listening port.
	DefaultPort = 5000
	// DefaultSubmitTimeout bounds the answers POST.
	DefaultSubmitTimeout = 5 * time.Second
	// DefaultGraphURL is the Messenger Send API base.
	DefaultGraphURL = "https://graph.facebook.com/v19.0"
)

// MessengerConfig holds Messenger Platform credentials.
type MessengerConfig struct {
	Token       string `yaml:"token" envconfig:"FB_TOKEN"`
	VerifyToken string `yaml:"verify_token" envconfig:"FB_VERIFY_TOKEN"`
	AppSecret   string `yaml:"app_secret" envconfig:"FB_SECRET"`
	GraphURL    string `yaml:"graph_url" envconfig:"FB_GRAPH_URL" validate:"omitempty,url"`
	// WebhookPath is the route the platform posts events to.
	WebhookPath string `yaml:"webhook_path" envconfig:"FB_WEBHOOK_PATH"`
}

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies Telegram webhook settings.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// ServerConfig configures the HTTP listener hosting the webhook and metrics.
type ServerConfig struct {
	Listen string `yaml:"listen" envconfig:"LISTEN"`
	Port   int    `yaml:"port" envconfig:"PORT" validate:"gte=0,lte=65535"`
}

// FormsConfig points at the form source and controls submissions.
type FormsConfig struct {
	SourceURL     string        `yaml:"source_url" envconfig:"FORMS_URL" validate:"required,url"`
	SubmitTimeout time.Duration `yaml:"submit_timeout" envconfig:"FORMS_SUBMIT_TIMEOUT"`
	// SelectUniform lets the last catalog entry be picked as well.
	SelectUniform bool `yaml:"select_uniform" envconfig:"FORMS_SELECT_UNIFORM"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	File        string `yaml:"file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// Config aggregates the relay configuration.
type Config struct {
	Transport string          `yaml:"transport" envconfig:"FORMRELAY_TRANSPORT"`
	Messenger MessengerConfig `yaml:"messenger"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Server    ServerConfig    `yaml:"server"`
	Forms     FormsConfig     `yaml:"forms"`
	Logging   LoggingConfig   `yaml:"logging"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from an optional YAML file and environment variables.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize fills defaults and validates required fields for the selected transport.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Forms.SubmitTimeout <= 0 {
		cfg.Forms.SubmitTimeout = DefaultSubmitTimeout
	}
	if strings.TrimSpace(cfg.Messenger.GraphURL) == "" {
		cfg.Messenger.GraphURL = DefaultGraphURL
	}
	cfg.Messenger.GraphURL = strings.TrimRight(cfg.Messenger.GraphURL, "/")
	if strings.TrimSpace(cfg.Messenger.WebhookPath) == "" {
		cfg.Messenger.WebhookPath = "/webhook"
	}

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config field %s: failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	tr := strings.ToLower(strings.TrimSpace(cfg.Transport))
	if tr == "" {
		tr = TransportMessenger
	}
	switch tr {
	case TransportMessenger:
		if cfg.Messenger.Token == "" {
			return fmt.Errorf("messenger.token is required when transport is 'messenger'")
		}
		if cfg.Messenger.VerifyToken == "" {
			return fmt.Errorf("messenger.verify_token is required when transport is 'messenger'")
		}
	case TransportTelegram:
		if err := normalizeTelegram(cfg); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid transport %q; allowed: messenger, telegram", cfg.Transport)
	}
	cfg.Transport = tr
	return nil
}

func normalizeTelegram(cfg *Config) error {
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required when transport is 'telegram'")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" || rm == "polling" {
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm
	return nil
}

// Addr returns the host:port the HTTP server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Listen, s.Port)
}
