package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	dispatch "fincas-control/internal/dispatch/domain"
)

// TelegramConfig holds the bot mirror settings.
type TelegramConfig struct {
	BotToken      string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID        string `env:"TELEGRAM_CHAT_ID"`
	APIBase       string `env:"TELEGRAM_API_BASE" envDefault:"https://api.telegram.org"`
	TopicDataLoss string `env:"TELEGRAM_TOPIC_DATA_LOSS"`
	TopicManager  string `env:"TELEGRAM_TOPIC_MANAGER"`
	TopicReboots  string `env:"TELEGRAM_TOPIC_REBOOTS"`
}

// IsConfigured reports whether both token and chat are present.
func (c TelegramConfig) IsConfigured() bool {
	return c.BotToken != "" && c.ChatID != ""
}

// Threads maps topics to their configured thread ids.
func (c TelegramConfig) Threads() map[dispatch.Topic]string {
	threads := make(map[dispatch.Topic]string, 3)
	for topic, id := range map[dispatch.Topic]string{
		dispatch.TopicDataLoss: c.TopicDataLoss,
		dispatch.TopicManager:  c.TopicManager,
		dispatch.TopicReboots:  c.TopicReboots,
	} {
		if id != "" {
			threads[topic] = id
		}
	}
	return threads
}

// DiscordConfig holds the Discord mirror settings.
type DiscordConfig struct {
	BotToken  string `env:"DISCORD_BOT_TOKEN"`
	ChannelID string `env:"DISCORD_CHANNEL_ID"`
}

// IsConfigured reports whether both token and channel are present.
func (c DiscordConfig) IsConfigured() bool {
	return c.BotToken != "" && c.ChannelID != ""
}

// Config is the process configuration shared by the server and the CLI.
type Config struct {
	NodeRedURL          string        `env:"NODE_RED_URL"`
	DispatchTimeout     time.Duration `env:"DISPATCH_TIMEOUT" envDefault:"10s"`
	DispatchConcurrency int           `env:"DISPATCH_CONCURRENCY" envDefault:"1"`
	EchoResponses       bool          `env:"ECHO_RESPONSES" envDefault:"false"`

	Telegram        TelegramConfig
	Discord         DiscordConfig
	SlackWebhookURL string        `env:"SLACK_WEBHOOK_URL"`
	NotifyTemplate  string        `env:"NOTIFY_TEMPLATE"`
	NotifyTimeout   time.Duration `env:"NOTIFY_TIMEOUT" envDefault:"5s"`

	HTTPAddr           string   `env:"HTTP_ADDR" envDefault:":8080"`
	JWTSecret          string   `env:"AUTH_JWT_SECRET"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	DatabaseURL        string   `env:"DATABASE_URL"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`

	CatalogPath string `env:"FINCAS_CONFIG"`

	Catalog *dispatch.Catalog `env:"-"`
}

// MirrorEnabled reports whether any notification channel is configured.
func (c Config) MirrorEnabled() bool {
	return c.Telegram.IsConfigured() || c.Discord.IsConfigured() || c.SlackWebhookURL != ""
}

// Load reads an optional .env file, then the process environment and the
// optional catalog file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	return Parse(nil)
}

// Parse builds a Config from environ, or from the process environment when
// environ is nil.
func Parse(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.NodeRedURL = strings.TrimSpace(cfg.NodeRedURL)
	cfg.CORSAllowedOrigins = compact(cfg.CORSAllowedOrigins)

	file, err := LoadCatalogFile(cfg.CatalogPath)
	if err != nil {
		return cfg, err
	}
	catalog, err := file.Catalog()
	if err != nil {
		return cfg, err
	}
	cfg.Catalog = catalog
	file.applyTopics(&cfg.Telegram)
	return cfg, nil
}

// Validate checks the settings every entry point needs.
func (c Config) Validate() error {
	if c.NodeRedURL == "" {
		return errors.New("config: NODE_RED_URL is required")
	}
	parsed, err := url.Parse(c.NodeRedURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("config: NODE_RED_URL must be an http(s) url, got %q", c.NodeRedURL)
	}
	if c.DispatchConcurrency < 1 {
		return fmt.Errorf("config: DISPATCH_CONCURRENCY must be at least 1, got %d", c.DispatchConcurrency)
	}
	if c.DispatchTimeout <= 0 {
		return errors.New("config: DISPATCH_TIMEOUT must be positive")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return errors.New("config: TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if (c.Discord.BotToken == "") != (c.Discord.ChannelID == "") {
		return errors.New("config: DISCORD_BOT_TOKEN and DISCORD_CHANNEL_ID must be set together")
	}
	if c.Catalog == nil {
		return errors.New("config: catalog not loaded")
	}
	return nil
}

// ValidateServer adds the checks only the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return errors.New("config: AUTH_JWT_SECRET is required")
	}
	return nil
}

// CatalogFile is the optional YAML file named by FINCAS_CONFIG.
type CatalogFile struct {
	Sites      []string `yaml:"sites"`
	Parameters []string `yaml:"parameters"`
	Telegram   struct {
		Topics map[string]string `yaml:"topics"`
	} `yaml:"telegram"`
}

// LoadCatalogFile reads path. An empty path returns an empty file, which
// resolves to the built-in catalog.
func LoadCatalogFile(path string) (CatalogFile, error) {
	var file CatalogFile
	if strings.TrimSpace(path) == "" {
		return file, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return file, fmt.Errorf("config: read catalog: %w", err)
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return file, fmt.Errorf("config: parse catalog: %w", err)
	}
	for key := range file.Telegram.Topics {
		if _, err := dispatch.ParseTopic(key); err != nil {
			return file, fmt.Errorf("config: catalog: %w", err)
		}
	}
	return file, nil
}

// Catalog builds the dispatch catalog, falling back to the built-in lists.
func (f CatalogFile) Catalog() (*dispatch.Catalog, error) {
	sites := dispatch.DefaultSites
	if len(f.Sites) > 0 {
		sites = make([]dispatch.Site, 0, len(f.Sites))
		for _, site := range f.Sites {
			sites = append(sites, dispatch.Site(site))
		}
	}
	params := dispatch.DefaultParameters
	if len(f.Parameters) > 0 {
		params = f.Parameters
	}
	catalog, err := dispatch.NewCatalog(sites, params)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return catalog, nil
}

// Environment values win over the file.
func (f CatalogFile) applyTopics(tg *TelegramConfig) {
	set := func(dst *string, topic dispatch.Topic) {
		if *dst == "" {
			*dst = strings.TrimSpace(f.Telegram.Topics[string(topic)])
		}
	}
	set(&tg.TopicDataLoss, dispatch.TopicDataLoss)
	set(&tg.TopicManager, dispatch.TopicManager)
	set(&tg.TopicReboots, dispatch.TopicReboots)
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
