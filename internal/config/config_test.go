package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dispatch "fincas-control/internal/dispatch/domain"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(map[string]string{"NODE_RED_URL": " http://nodered:1880/fincas "})
	require.NoError(t, err)

	assert.Equal(t, "http://nodered:1880/fincas", cfg.NodeRedURL)
	assert.Equal(t, 10*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, 5*time.Second, cfg.NotifyTimeout)
	assert.Equal(t, 1, cfg.DispatchConcurrency)
	assert.False(t, cfg.EchoResponses)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIBase)
	assert.False(t, cfg.MirrorEnabled())
	require.NotNil(t, cfg.Catalog)
	assert.Equal(t, dispatch.DefaultSites, cfg.Catalog.Sites())
	assert.NoError(t, cfg.Validate())
	assert.Error(t, cfg.ValidateServer())
}

func TestParseFullEnvironment(t *testing.T) {
	cfg, err := Parse(map[string]string{
		"NODE_RED_URL":             "https://nodered.example/fincas",
		"DISPATCH_TIMEOUT":         "3s",
		"DISPATCH_CONCURRENCY":     "4",
		"ECHO_RESPONSES":           "true",
		"TELEGRAM_BOT_TOKEN":       "123:abc",
		"TELEGRAM_CHAT_ID":         "-100",
		"TELEGRAM_TOPIC_REBOOTS":   "9",
		"TELEGRAM_TOPIC_DATA_LOSS": "7",
		"CORS_ALLOWED_ORIGINS":     "https://panel.example, ,http://localhost:5173",
		"AUTH_JWT_SECRET":          "s3cret",
	})
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.DispatchTimeout)
	assert.Equal(t, 4, cfg.DispatchConcurrency)
	assert.True(t, cfg.EchoResponses)
	assert.True(t, cfg.Telegram.IsConfigured())
	assert.True(t, cfg.MirrorEnabled())
	assert.Equal(t, map[dispatch.Topic]string{
		dispatch.TopicReboots:  "9",
		dispatch.TopicDataLoss: "7",
	}, cfg.Telegram.Threads())
	assert.Equal(t, []string{"https://panel.example", "http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.NoError(t, cfg.ValidateServer())
}

func TestParseRejectsMalformedValues(t *testing.T) {
	_, err := Parse(map[string]string{"DISPATCH_CONCURRENCY": "many"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse env")
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg, err := Parse(map[string]string{"NODE_RED_URL": "http://localhost:1880/fincas"})
		require.NoError(t, err)
		return cfg
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.NodeRedURL = "" }},
		{"non http url", func(c *Config) { c.NodeRedURL = "ftp://host/x" }},
		{"zero concurrency", func(c *Config) { c.DispatchConcurrency = 0 }},
		{"telegram token only", func(c *Config) { c.Telegram.BotToken = "tok" }},
		{"discord channel only", func(c *Config) { c.Discord.ChannelID = "42" }},
		{"no catalog", func(c *Config) { c.Catalog = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCatalogFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fincas.yaml")
	content := `
sites: [la_luz, torretas]
parameters: [min_battery]
telegram:
  topics:
    manager: "11"
    reboots: "22"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Parse(map[string]string{
		"NODE_RED_URL":           "http://localhost:1880/fincas",
		"FINCAS_CONFIG":          path,
		"TELEGRAM_TOPIC_REBOOTS": "99",
	})
	require.NoError(t, err)
	assert.Equal(t, []dispatch.Site{"la_luz", "torretas"}, cfg.Catalog.Sites())
	assert.Equal(t, []string{"min_battery"}, cfg.Catalog.Parameters())
	assert.Equal(t, "11", cfg.Telegram.TopicManager)
	assert.Equal(t, "99", cfg.Telegram.TopicReboots)
}

func TestCatalogFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCatalogFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	badTopic := filepath.Join(dir, "topic.yaml")
	require.NoError(t, os.WriteFile(badTopic, []byte("telegram:\n  topics:\n    general: \"1\"\n"), 0o600))
	_, err = LoadCatalogFile(badTopic)
	assert.ErrorIs(t, err, dispatch.ErrUnknownTopic)

	dupSites := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(dupSites, []byte("sites: [la_luz, la_luz]\n"), 0o600))
	file, err := LoadCatalogFile(dupSites)
	require.NoError(t, err)
	_, err = file.Catalog()
	assert.Error(t, err)
}
