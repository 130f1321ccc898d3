package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fincas-control/internal/observability/metrics"
)

const (
	defaultWindow = 7 * 24 * time.Hour
	maxListLimit  = 1000
)

// ClientIP extracts client ip from common headers or RemoteAddr.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// Lister reads stored entries.
type Lister interface {
	List(ctx context.Context, filter Filter) ([]Entry, error)
}

// Handler serves /api/v1/audit and /api/v1/audit/export.{csv,xlsx,pdf}.
type Handler struct {
	store  Lister
	logger *log.Logger
	now    func() time.Time
}

// NewHandler constructs an audit handler.
func NewHandler(store Lister, logger *log.Logger) (*Handler, error) {
	if store == nil {
		return nil, errors.New("audit handler: nil store")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{store: store, logger: logger, now: time.Now}, nil
}

// ServeHTTP handles audit routes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/audit":
		h.handleList(w, r)
	case "/api/v1/audit/export.csv":
		h.handleExport(w, r, "csv")
	case "/api/v1/audit/export.xlsx":
		h.handleExport(w, r, "xlsx")
	case "/api/v1/audit/export.pdf":
		h.handleExport(w, r, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}
	if filter.Limit == 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	entries, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Printf("audit list error: %v", err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"from":    filter.From,
		"to":      filter.To,
		"entries": entries,
	})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveAuditExport(format, result, time.Since(start))
	}()

	filter, err := h.parseFilter(r)
	if err != nil {
		result = metrics.ResultError
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := h.store.List(r.Context(), filter)
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("audit export query error: %v", err)
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}

	var (
		data        []byte
		contentType string
	)
	switch format {
	case "csv":
		data, err = BuildCSV(entries)
		contentType = "text/csv; charset=utf-8"
	case "xlsx":
		data, err = BuildXLSX(entries, filter.From, filter.To)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, err = BuildPDF(entries, filter.From, filter.To)
		contentType = "application/pdf"
	}
	if err != nil {
		result = metrics.ResultError
		h.logger.Printf("audit export %s error: %v", format, err)
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="fincas-audit.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// parseFilter defaults to the last seven days.
func (h *Handler) parseFilter(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	filter := Filter{Site: strings.TrimSpace(q.Get("site"))}

	to, err := parseTimeParam(q.Get("to"), "to")
	if err != nil {
		return filter, err
	}
	if to.IsZero() {
		to = h.now().UTC()
	}
	from, err := parseTimeParam(q.Get("from"), "from")
	if err != nil {
		return filter, err
	}
	if from.IsZero() {
		from = to.Add(-defaultWindow)
	}
	if !from.Before(to) {
		return filter, errors.New("from must be before to")
	}
	filter.From, filter.To = from, to
	return filter, nil
}

// parseTimeParam accepts RFC3339 or a plain date.
func parseTimeParam(value, key string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed.UTC(), nil
	}
	return time.Time{}, errors.New(key + " must be RFC3339 or YYYY-MM-DD")
}
