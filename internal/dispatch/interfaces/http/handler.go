package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"fincas-control/internal/audit"
	"fincas-control/internal/dispatch/application"
	dispatch "fincas-control/internal/dispatch/domain"
)

const maxRequestBytes = 64 << 10

// Handler serves the catalog, dispatch and probe endpoints.
type Handler struct {
	service *application.Service
	echo    bool
	mirror  []string
	logger  *log.Logger
}

// NewHandler constructs a handler. echo exposes endpoint response bodies;
// mirror names the configured notification channels for the catalog view.
func NewHandler(service *application.Service, echo bool, mirror []string, logger *log.Logger) (*Handler, error) {
	if service == nil {
		return nil, errors.New("dispatch handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{service: service, echo: echo, mirror: mirror, logger: logger}, nil
}

// ServeHTTP routes /api/v1/fincas, /api/v1/dispatch and /api/v1/probe.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v1/fincas":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleCatalog(w)
	case "/api/v1/dispatch":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.handleDispatch(w, r)
	case "/api/v1/probe":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.service.Probe(r.Context()))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleCatalog(w http.ResponseWriter) {
	catalog := h.service.Catalog()
	resp := CatalogDTO{
		Sleep: SleepRange{
			Min:     dispatch.MinSleepSeconds,
			Max:     dispatch.MaxSleepSeconds,
			Default: dispatch.DefaultSleepSeconds,
		},
		Parameters: catalog.Parameters(),
		Mirror:     append([]string{}, h.mirror...),
		Echo:       h.echo,
	}
	for _, site := range catalog.Sites() {
		resp.Sites = append(resp.Sites, string(site))
	}
	for _, verb := range dispatch.Verbs() {
		resp.Verbs = append(resp.Verbs, string(verb))
	}
	for _, topic := range dispatch.Topics() {
		resp.Topics = append(resp.Topics, string(topic))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDispatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body error"})
		return
	}

	var req application.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	if dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run")); dryRun {
		plan, err := h.service.Plan(req)
		if err != nil {
			h.respondRejection(w, err)
			return
		}
		commands := make([]string, 0, len(plan.Commands))
		for _, cmd := range plan.Commands {
			commands = append(commands, cmd.Text())
		}
		writeJSON(w, http.StatusOK, map[string]any{"verb": plan.Verb, "commands": commands})
		return
	}

	ctx := audit.WithRequestInfo(r.Context(), audit.RequestInfo{
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	batch, err := h.service.Run(ctx, req)
	if err != nil {
		h.respondRejection(w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewBatchDTO(batch, h.echo))
}

func (h *Handler) respondRejection(w http.ResponseWriter, err error) {
	if dispatch.IsWarning(err) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"warning": err.Error()})
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
