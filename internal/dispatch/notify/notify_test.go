package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"

	dispatch "fincas-control/internal/dispatch/domain"
)

type telegramCall struct {
	path        string
	contentType string
	form        url.Values
}

func newTelegramServer(t *testing.T, status int) (*httptest.Server, chan telegramCall) {
	t.Helper()
	calls := make(chan telegramCall, 8)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		calls <- telegramCall{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), form: r.PostForm}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	t.Cleanup(server.Close)
	return server, calls
}

func TestTelegramChannelFormFields(t *testing.T) {
	server, calls := newTelegramServer(t, http.StatusOK)

	channel, err := NewTelegramChannel("123:abc", "-100200",
		WithTelegramAPI(server.URL),
		WithTopicThread(dispatch.TopicReboots, "77"),
	)
	if err != nil {
		t.Fatalf("new telegram channel: %v", err)
	}

	if err := channel.Send(context.Background(), Message{Text: "hola", Topic: dispatch.TopicReboots}); err != nil {
		t.Fatalf("send: %v", err)
	}
	call := <-calls
	if call.path != "/bot123:abc/sendMessage" {
		t.Fatalf("unexpected path %s", call.path)
	}
	if call.contentType != "application/x-www-form-urlencoded" {
		t.Fatalf("unexpected content type %s", call.contentType)
	}
	if call.form.Get("chat_id") != "-100200" || call.form.Get("text") != "hola" {
		t.Fatalf("unexpected form %v", call.form)
	}
	if call.form.Get("message_thread_id") != "77" {
		t.Fatalf("expected thread 77, got %q", call.form.Get("message_thread_id"))
	}

	if err := channel.Send(context.Background(), Message{Text: "sin hilo", Topic: dispatch.TopicManager}); err != nil {
		t.Fatalf("send: %v", err)
	}
	call = <-calls
	if _, ok := call.form["message_thread_id"]; ok {
		t.Fatalf("expected no thread for unmapped topic, got %v", call.form)
	}
}

func TestTelegramChannelNon200(t *testing.T) {
	server, _ := newTelegramServer(t, http.StatusBadRequest)
	channel, err := NewTelegramChannel("tok", "1", WithTelegramAPI(server.URL))
	if err != nil {
		t.Fatalf("new telegram channel: %v", err)
	}
	err = channel.Send(context.Background(), Message{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("expected http 400 error, got %v", err)
	}
}

func TestTelegramChannelHidesTokenOnTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := server.URL
	server.Close()

	channel, err := NewTelegramChannel("secret-token", "1", WithTelegramAPI(base))
	if err != nil {
		t.Fatalf("new telegram channel: %v", err)
	}
	err = channel.Send(context.Background(), Message{Text: "x"})
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "secret-token") {
		t.Fatalf("error leaks token: %v", err)
	}
}

func TestNewTelegramChannelRequiresCredentials(t *testing.T) {
	if _, err := NewTelegramChannel("", "1"); err == nil {
		t.Fatal("expected error for empty token")
	}
	if _, err := NewTelegramChannel("tok", ""); err == nil {
		t.Fatal("expected error for empty chat id")
	}
}

func TestSlackChannelPostsWebhook(t *testing.T) {
	payloadCh := make(chan map[string]any, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(body, &payload)
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewSlackChannel(server.URL, server.Client())
	if err != nil {
		t.Fatalf("new slack channel: %v", err)
	}
	if err := channel.Send(context.Background(), Message{Text: "/get la_luz", Topic: dispatch.TopicManager}); err != nil {
		t.Fatalf("send: %v", err)
	}
	payload := <-payloadCh
	if payload["text"] != "[manager] /get la_luz" {
		t.Fatalf("unexpected slack payload %v", payload)
	}
}

type fakeDiscord struct {
	mu       sync.Mutex
	channel  string
	contents []string
	err      error
}

func (f *fakeDiscord) ChannelMessageSend(channelID string, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channel = channelID
	f.contents = append(f.contents, content)
	if f.err != nil {
		return nil, f.err
	}
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func TestDiscordChannel(t *testing.T) {
	sender := &fakeDiscord{}
	channel, err := NewDiscordChannel(sender, "chan-1")
	if err != nil {
		t.Fatalf("new discord channel: %v", err)
	}
	if err := channel.Send(context.Background(), Message{Text: "/reboot torretas", Topic: dispatch.TopicReboots}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sender.channel != "chan-1" {
		t.Fatalf("unexpected channel %s", sender.channel)
	}
	if sender.contents[0] != "**reboots**\n/reboot torretas" {
		t.Fatalf("unexpected content %q", sender.contents[0])
	}
}

type recordingChannel struct {
	name string
	err  error
	mu   sync.Mutex
	msgs []Message
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
	return r.err
}

func TestMirrorRendersAndRoutes(t *testing.T) {
	channel := &recordingChannel{name: "rec"}
	mirror, err := NewMirror(nil, channel)
	if err != nil {
		t.Fatalf("new mirror: %v", err)
	}
	cmd := dispatch.Command{Verb: dispatch.VerbReboot, Site: "la_luz"}
	if err := mirror.Notify(context.Background(), cmd, ""); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(channel.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(channel.msgs))
	}
	msg := channel.msgs[0]
	if msg.Topic != dispatch.TopicReboots {
		t.Fatalf("expected reboots topic, got %s", msg.Topic)
	}
	if !strings.HasSuffix(msg.Text, "\n\n/reboot la_luz") {
		t.Fatalf("unexpected text %q", msg.Text)
	}

	if err := mirror.Notify(context.Background(), cmd, dispatch.TopicDataLoss); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if channel.msgs[1].Topic != dispatch.TopicDataLoss {
		t.Fatalf("expected explicit topic to win, got %s", channel.msgs[1].Topic)
	}
}

func TestMirrorAttemptsEveryChannel(t *testing.T) {
	failing := &recordingChannel{name: "down", err: errors.New("boom")}
	healthy := &recordingChannel{name: "up"}
	mirror, err := NewMirror(nil, failing, healthy)
	if err != nil {
		t.Fatalf("new mirror: %v", err)
	}
	err = mirror.Notify(context.Background(), dispatch.Command{Verb: dispatch.VerbGet, Site: "majuelos"}, "")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(healthy.msgs) != 1 {
		t.Fatalf("healthy channel should still receive the message")
	}
}

func TestMirrorRequiresChannel(t *testing.T) {
	if _, err := NewMirror(nil); err == nil {
		t.Fatal("expected error without channels")
	}
}

func TestCustomTemplate(t *testing.T) {
	tpl, err := NewTemplate("{{.Site}} <- {{.Verb}} {{.Extra}} ({{.Topic}})")
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	out, err := tpl.Render(TemplateData{Site: "la_luz", Verb: "sleep", Extra: "120", Topic: "manager"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "la_luz <- sleep 120 (manager)" {
		t.Fatalf("unexpected render %q", out)
	}
	if _, err := NewTemplate("{{.Broken"); err == nil {
		t.Fatal("expected parse error")
	}
}
