package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/samber/mo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dispatch "fincas-control/internal/dispatch/domain"
	"fincas-control/internal/ids"
	"fincas-control/internal/nodered"
	"fincas-control/internal/observability/metrics"
)

// Sender delivers command text to the primary endpoint.
type Sender interface {
	Endpoint() string
	Send(ctx context.Context, text string) (nodered.Response, error)
	Probe(ctx context.Context) (int, error)
}

// Notifier mirrors a dispatched command to human channels.
type Notifier interface {
	Notify(ctx context.Context, cmd dispatch.Command, topic dispatch.Topic) error
}

// ResultSink observes every per-site result as soon as it is known.
type ResultSink interface {
	HandleResult(ctx context.Context, batchID string, result dispatch.Result)
}

// Clock provides time for result stamps.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service validates operator requests and sends one command per selected site.
type Service struct {
	catalog       *dispatch.Catalog
	sender        Sender
	notifier      Notifier
	sinks         []ResultSink
	concurrency   int
	notifyTimeout time.Duration
	clock         Clock
	logger        *log.Logger
	tracer        trace.Tracer
}

// Option configures the service.
type Option func(*Service)

// WithNotifier enables mirroring of every attempted command.
func WithNotifier(notifier Notifier) Option {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithSinks registers result sinks.
func WithSinks(sinks ...ResultSink) Option {
	return func(s *Service) {
		for _, sink := range sinks {
			if sink != nil {
				s.sinks = append(s.sinks, sink)
			}
		}
	}
}

// WithConcurrency bounds how many sites are contacted at once. Values below 2
// keep dispatch sequential.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithNotifyTimeout limits each mirror call.
func WithNotifyTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.notifyTimeout = timeout
		}
	}
}

// WithClock overrides the clock.
func WithClock(clock Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *log.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracer overrides the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a dispatch service.
func NewService(catalog *dispatch.Catalog, sender Sender, opts ...Option) (*Service, error) {
	if catalog == nil {
		return nil, errors.New("dispatch: nil catalog")
	}
	if sender == nil {
		return nil, errors.New("dispatch: nil sender")
	}
	s := &Service{
		catalog:     catalog,
		sender:      sender,
		concurrency: 1,
		clock:       systemClock{},
		logger:      log.Default(),
		tracer:      otel.Tracer("fincas-control/dispatch"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Catalog returns the site and parameter catalog.
func (s *Service) Catalog() *dispatch.Catalog {
	return s.catalog
}

// Plan validates req without sending anything.
func (s *Service) Plan(req Request) (Plan, error) {
	return BuildPlan(s.catalog, req)
}

// Run validates req and dispatches one command per selected site. Validation
// errors and warnings are returned before any call is made. Per-site failures
// are reported in the batch, never as an error; no site is retried.
func (s *Service) Run(ctx context.Context, req Request) (dispatch.Batch, error) {
	plan, err := s.Plan(req)
	if err != nil {
		metrics.IncBatchRejected(rejectionReason(err))
		return dispatch.Batch{}, err
	}
	return s.Execute(ctx, plan), nil
}

// Execute sends an already validated plan.
func (s *Service) Execute(ctx context.Context, plan Plan) dispatch.Batch {
	batch := dispatch.Batch{
		ID:      ids.New("batch"),
		Verb:    plan.Verb,
		Results: make([]dispatch.Result, len(plan.Commands)),
	}
	ctx, span := s.tracer.Start(ctx, "dispatch.batch", trace.WithAttributes(
		attribute.String("fincas.batch_id", batch.ID),
		attribute.String("fincas.verb", string(plan.Verb)),
		attribute.Int("fincas.sites", len(plan.Commands)),
	))
	defer span.End()
	metrics.IncBatch(string(plan.Verb))

	workers := s.concurrency
	if workers > len(plan.Commands) {
		workers = len(plan.Commands)
	}
	if workers <= 1 {
		for i, cmd := range plan.Commands {
			batch.Results[i] = s.process(ctx, batch.ID, cmd, plan.Topic)
		}
	} else {
		pool := workerpool.New(workers)
		for i, cmd := range plan.Commands {
			i, cmd := i, cmd
			pool.Submit(func() {
				batch.Results[i] = s.process(ctx, batch.ID, cmd, plan.Topic)
			})
		}
		pool.StopWait()
	}

	s.logger.Printf("dispatch batch %s: verb=%s sites=%d delivered=%d failed=%d",
		batch.ID, plan.Verb, len(batch.Results), batch.Delivered(), batch.Failed())
	span.SetAttributes(attribute.Int("fincas.failed", batch.Failed()))
	return batch
}

func (s *Service) process(ctx context.Context, batchID string, cmd dispatch.Command, topic dispatch.Topic) dispatch.Result {
	result := s.Dispatch(ctx, cmd)
	if s.notifier != nil {
		notifyCtx := ctx
		if s.notifyTimeout > 0 {
			var cancel context.CancelFunc
			notifyCtx, cancel = context.WithTimeout(ctx, s.notifyTimeout)
			defer cancel()
		}
		if err := s.notifier.Notify(notifyCtx, cmd, topic); err != nil {
			result.Notified = mo.Some(false)
			result.NotifyError = mo.Some(err.Error())
			s.logger.Printf("dispatch mirror failed: %s: %v", cmd.Text(), err)
		} else {
			result.Notified = mo.Some(true)
		}
	}
	for _, sink := range s.sinks {
		sink.HandleResult(ctx, batchID, result)
	}
	return result
}

// Dispatch sends one command and classifies the outcome. Only HTTP 200 counts
// as delivered.
func (s *Service) Dispatch(ctx context.Context, cmd dispatch.Command) dispatch.Result {
	ctx, span := s.tracer.Start(ctx, "dispatch.send", trace.WithAttributes(
		attribute.String("fincas.verb", string(cmd.Verb)),
		attribute.String("fincas.site", string(cmd.Site)),
	))
	defer span.End()

	start := s.clock.Now()
	resp, err := s.sender.Send(ctx, cmd.Text())
	result := dispatch.Result{
		ID:         ids.New("dsp"),
		Command:    cmd,
		StatusCode: resp.StatusCode,
		StartedAt:  start,
		Duration:   s.clock.Now().Sub(start),
	}

	var statusErr *nodered.StatusError
	outcome := metrics.DispatchDelivered
	switch {
	case err == nil:
		result.Delivered = true
		result.ResponseBody = mo.Some(resp.Body)
	case errors.As(err, &statusErr):
		outcome = metrics.DispatchRejected
		result.StatusCode = statusErr.StatusCode
		result.FailureKind = mo.Some(dispatch.FailureRejected)
		diagnostic := fmt.Sprintf("error %d", statusErr.StatusCode)
		if statusErr.Body != "" {
			diagnostic += ": " + statusErr.Body
		}
		result.Error = mo.Some(diagnostic)
	default:
		outcome = metrics.DispatchTransport
		result.FailureKind = mo.Some(dispatch.FailureTransport)
		result.Error = mo.Some("connection error: " + err.Error())
	}

	span.SetAttributes(attribute.Int("http.status_code", result.StatusCode))
	if !result.Delivered {
		span.SetStatus(codes.Error, result.Error.OrEmpty())
		s.logger.Printf("dispatch %s failed: %s", cmd.Text(), result.Error.OrEmpty())
	}
	metrics.ObserveDispatch(string(cmd.Verb), outcome, result.Duration)
	return result
}

// ProbeResult is the outcome of a reachability check.
type ProbeResult struct {
	Endpoint   string    `json:"endpoint"`
	Reachable  bool      `json:"reachable"`
	StatusCode int       `json:"status_code,omitempty"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

// Probe checks that the primary endpoint answers. Any HTTP status counts as reachable.
func (s *Service) Probe(ctx context.Context) ProbeResult {
	out := ProbeResult{Endpoint: s.sender.Endpoint(), CheckedAt: s.clock.Now()}
	status, err := s.sender.Probe(ctx)
	if err != nil {
		out.Error = err.Error()
		s.logger.Printf("nodered probe %s failed: %v", out.Endpoint, err)
		return out
	}
	out.Reachable = true
	out.StatusCode = status
	return out
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, dispatch.ErrNoSites):
		return "no_sites"
	case errors.Is(err, dispatch.ErrNoParameters):
		return "no_parameters"
	case errors.Is(err, dispatch.ErrUnknownVerb):
		return "unknown_verb"
	case errors.Is(err, dispatch.ErrUnknownSite), errors.Is(err, dispatch.ErrDuplicateSite):
		return "invalid_site"
	case errors.Is(err, dispatch.ErrSleepRange):
		return "sleep_range"
	case errors.Is(err, dispatch.ErrUnknownParameter),
		errors.Is(err, dispatch.ErrDuplicateParameter),
		errors.Is(err, dispatch.ErrNegativeValue):
		return "invalid_parameter"
	default:
		return "invalid_request"
	}
}
