package wiring

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fincas-control/internal/audit"
	"fincas-control/internal/config"
	"fincas-control/internal/dispatch/application"
)

func TestBuildMirrorChannels(t *testing.T) {
	cfg, err := config.Parse(map[string]string{"NODE_RED_URL": "http://localhost:1880/fincas"})
	require.NoError(t, err)

	mirror, err := BuildMirror(cfg)
	require.NoError(t, err)
	assert.Nil(t, mirror)

	cfg.Telegram.BotToken = "123:abc"
	cfg.Telegram.ChatID = "-100"
	cfg.SlackWebhookURL = "https://hooks.slack.test/x"
	cfg.Discord.BotToken = "discord-token"
	cfg.Discord.ChannelID = "42"
	mirror, err = BuildMirror(cfg)
	require.NoError(t, err)
	require.NotNil(t, mirror)
	assert.Equal(t, []string{"telegram", "slack", "discord"}, mirror.Channels())

	cfg.NotifyTemplate = "{{.Broken"
	_, err = BuildMirror(cfg)
	assert.Error(t, err)
}

func TestBuildServiceEndToEnd(t *testing.T) {
	var telegramText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nodered":
			w.WriteHeader(http.StatusOK)
		case "/bottok/sendMessage":
			_ = r.ParseForm()
			telegramText = r.PostForm.Get("text")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg, err := config.Parse(map[string]string{
		"NODE_RED_URL":       server.URL + "/nodered",
		"TELEGRAM_BOT_TOKEN": "tok",
		"TELEGRAM_CHAT_ID":   "1",
		"TELEGRAM_API_BASE":  server.URL,
	})
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	svc, mirror, err := BuildService(cfg, log.New(io.Discard, "", 0))
	require.NoError(t, err)
	require.NotNil(t, mirror)

	batch, err := svc.Run(context.Background(), application.Request{Verb: "reboot", Sites: []string{"la_luz"}})
	require.NoError(t, err)
	require.Len(t, batch.Results, 1)
	assert.True(t, batch.Results[0].Delivered)
	assert.True(t, batch.Results[0].Notified.OrEmpty())
	assert.Equal(t, "📡 Comando enviado desde el panel de fincas:\n\n/reboot la_luz", telegramText)
}

func TestOpenAuditSQLite(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{}
	db, repo, err := OpenAudit(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, db)
	assert.Nil(t, repo)

	cfg.DatabaseURL = "sqlite:" + filepath.Join(t.TempDir(), "audit.db")
	db, repo, err = OpenAudit(ctx, cfg)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, repo.Log(ctx, audit.Entry{Site: "la_luz", Command: "/get la_luz", Action: audit.ActionDispatch}))
	entries, err := repo.List(ctx, audit.Filter{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
