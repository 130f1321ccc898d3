package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
)

type options struct {
	Addr        string  `env:"FAKE_NODERED_ADDR" envDefault:":11880"`
	LatencyMS   int     `env:"FAKE_NODERED_LATENCY_MS" envDefault:"0"`
	FailRate    float64 `env:"FAKE_NODERED_FAIL_RATE" envDefault:"0"`
	ForceStatus int     `env:"FAKE_NODERED_STATUS" envDefault:"0"`
}

type fakeNodeRED struct {
	start       time.Time
	latency     time.Duration
	failRate    float64
	forceStatus int
	rand        func() float64

	mu         sync.Mutex
	bySite     map[string]int64
	byStatus   map[int]int64
	messages   []telegramMessage
	totalCalls int64
}

type telegramMessage struct {
	Token    string `json:"token"`
	ChatID   string `json:"chat_id"`
	ThreadID string `json:"message_thread_id,omitempty"`
	Text     string `json:"text"`
}

func main() {
	var opts options
	if err := env.Parse(&opts); err != nil {
		log.Fatalf("fake nodered config: %v", err)
	}

	srv := newFakeNodeRED(opts)
	log.Printf("fake Node-RED listening on %s (POST /nodered, POST /bot<token>/sendMessage)", opts.Addr)
	if err := http.ListenAndServe(opts.Addr, srv.routes()); err != nil {
		log.Fatal(err)
	}
}

func newFakeNodeRED(opts options) *fakeNodeRED {
	return &fakeNodeRED{
		start:       time.Now().UTC(),
		latency:     time.Duration(opts.LatencyMS) * time.Millisecond,
		failRate:    opts.FailRate,
		forceStatus: opts.ForceStatus,
		rand:        rand.Float64,
		bySite:      make(map[string]int64),
		byStatus:    make(map[int]int64),
	}
}

func (s *fakeNodeRED) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/nodered", s.handleCommand)
	mux.HandleFunc("/", s.handleTelegram)
	return mux
}

func (s *fakeNodeRED) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *fakeNodeRED) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus := make(map[string]int64, len(s.byStatus))
	for status, count := range s.byStatus {
		byStatus[http.StatusText(status)] = count
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"started_at": s.start.Format(time.RFC3339),
		"total":      atomic.LoadInt64(&s.totalCalls),
		"by_site":    s.bySite,
		"by_status":  byStatus,
		"telegram":   len(s.messages),
	})
}

func (s *fakeNodeRED) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Content == "" {
		s.recordCall("", http.StatusBadRequest)
		http.Error(w, "content required", http.StatusBadRequest)
		return
	}
	if s.latency > 0 {
		time.Sleep(s.latency)
	}

	fields := strings.Fields(payload.Content)
	site := ""
	if len(fields) > 1 {
		site = fields[1]
	}
	status := s.pickStatus()
	s.recordCall(site, status)

	if status != http.StatusOK {
		http.Error(w, "fake flow failed", status)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok: " + payload.Content))
}

func (s *fakeNodeRED) handleTelegram(w http.ResponseWriter, r *http.Request) {
	rest, ok := strings.CutPrefix(r.URL.Path, "/bot")
	if !ok || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	token, method, ok := strings.Cut(rest, "/")
	if !ok || token == "" || method != "sendMessage" {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	msg := telegramMessage{
		Token:    token,
		ChatID:   r.PostForm.Get("chat_id"),
		ThreadID: r.PostForm.Get("message_thread_id"),
		Text:     r.PostForm.Get("text"),
	}
	if msg.ChatID == "" || msg.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "description": "chat_id and text required"})
		return
	}
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	id := len(s.messages)
	s.mu.Unlock()
	log.Printf("telegram chat=%s thread=%s: %q", msg.ChatID, msg.ThreadID, msg.Text)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": map[string]any{"message_id": id}})
}

func (s *fakeNodeRED) pickStatus() int {
	if s.forceStatus != 0 {
		return s.forceStatus
	}
	if s.failRate > 0 && s.rand() < s.failRate {
		return http.StatusInternalServerError
	}
	return http.StatusOK
}

func (s *fakeNodeRED) recordCall(site string, status int) {
	atomic.AddInt64(&s.totalCalls, 1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if site != "" {
		s.bySite[site]++
	}
	s.byStatus[status]++
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
