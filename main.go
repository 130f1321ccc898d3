package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"fincas-control/internal/audit"
	"fincas-control/internal/auth"
	"fincas-control/internal/config"
	"fincas-control/internal/dispatch/application"
	dispatchhttp "fincas-control/internal/dispatch/interfaces/http"
	"fincas-control/internal/observability/metrics"
	"fincas-control/internal/observability/tracing"
	"fincas-control/internal/wiring"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		logger.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, "fincas-control", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		logger.Fatalf("tracing setup error: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	db, auditRepo, err := wiring.OpenAudit(ctx, cfg)
	if err != nil {
		logger.Fatalf("audit store error: %v", err)
	}
	if db != nil {
		defer db.Close()
	}
	metrics.Init(db, logger)

	broker := dispatchhttp.NewSSEBroker(cfg.EchoResponses)
	sinks := []application.ResultSink{broker}
	if auditRepo != nil {
		recorder, err := audit.NewRecorder(auditRepo, logger, "")
		if err != nil {
			logger.Fatalf("audit recorder error: %v", err)
		}
		sinks = append(sinks, recorder)
	}

	service, mirror, err := wiring.BuildService(cfg, logger, sinks...)
	if err != nil {
		logger.Fatalf("dispatch service error: %v", err)
	}
	var mirrorChannels []string
	if mirror != nil {
		mirrorChannels = mirror.Channels()
	}
	logger.Printf("dispatch: endpoint=%s concurrency=%d echo=%t mirror=%v audit=%t",
		cfg.NodeRedURL, cfg.DispatchConcurrency, cfg.EchoResponses, mirrorChannels, auditRepo != nil)

	probeCtx, cancelProbe := context.WithTimeout(ctx, cfg.DispatchTimeout)
	probe := service.Probe(probeCtx)
	cancelProbe()
	if probe.Reachable {
		logger.Printf("nodered probe ok: status=%d", probe.StatusCode)
	} else {
		logger.Printf("nodered probe failed: %s", probe.Error)
	}

	dispatchHandler, err := dispatchhttp.NewHandler(service, cfg.EchoResponses, mirrorChannels, logger)
	if err != nil {
		logger.Fatalf("dispatch handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/fincas", dispatchHandler)
	mux.Handle("/api/v1/dispatch", dispatchHandler)
	mux.Handle("/api/v1/probe", dispatchHandler)
	mux.Handle("/api/v1/dispatch/stream", dispatchhttp.NewStreamHandler(broker))
	if auditRepo != nil {
		auditHandler, err := audit.NewHandler(auditRepo, logger)
		if err != nil {
			logger.Fatalf("audit handler error: %v", err)
		}
		mux.Handle("/api/v1/audit", auditHandler)
		mux.Handle("/api/v1/audit/", auditHandler)
	}
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(corsMiddleware.Handler(authMiddleware.Wrap(mux)), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal(err)
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps the dispatch stream working through the logging wrapper.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
