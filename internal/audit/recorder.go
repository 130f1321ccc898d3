package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"fincas-control/internal/auth"
	dispatch "fincas-control/internal/dispatch/domain"
	"fincas-control/internal/observability/metrics"
)

// Recorder turns dispatch results into audit entries.
type Recorder struct {
	logger       Logger
	log          *log.Logger
	defaultActor string
}

// NewRecorder constructs a Recorder. defaultActor is used when the context
// carries no authenticated subject (e.g. terminal runs).
func NewRecorder(logger Logger, out *log.Logger, defaultActor string) (*Recorder, error) {
	if logger == nil {
		return nil, errors.New("audit recorder: nil logger")
	}
	if out == nil {
		out = log.Default()
	}
	return &Recorder{logger: logger, log: out, defaultActor: defaultActor}, nil
}

type resultMetadata struct {
	FailureKind  string `json:"failure_kind,omitempty"`
	Notified     *bool  `json:"notified,omitempty"`
	NotifyError  string `json:"notify_error,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
	ResultID     string `json:"result_id"`
	ResponseSize int    `json:"response_size,omitempty"`
}

// HandleResult stores one result. Failures are logged and counted only.
func (r *Recorder) HandleResult(ctx context.Context, batchID string, result dispatch.Result) {
	entry := EntryFromResult(ctx, batchID, result)
	if entry.Actor == "" {
		entry.Actor = r.defaultActor
	}
	// The request may already be cancelled; the entry still has to be written.
	if err := r.logger.Log(context.WithoutCancel(ctx), entry); err != nil {
		metrics.IncAuditWriteError()
		r.log.Printf("audit write failed: batch=%s site=%s: %v", batchID, result.Command.Site, err)
	}
}

// EntryFromResult builds the audit entry for result.
func EntryFromResult(ctx context.Context, batchID string, result dispatch.Result) Entry {
	meta := resultMetadata{
		FailureKind:  string(result.FailureKind.OrEmpty()),
		NotifyError:  result.NotifyError.OrEmpty(),
		DurationMS:   result.Duration.Milliseconds(),
		ResultID:     result.ID,
		ResponseSize: len(result.ResponseBody.OrEmpty()),
	}
	if notified, ok := result.Notified.Get(); ok {
		meta.Notified = &notified
	}
	metadata, _ := json.Marshal(meta)
	info := RequestInfoFromContext(ctx)

	return Entry{
		ID:         NewID(),
		BatchID:    batchID,
		Actor:      auth.SubjectFromContext(ctx),
		Role:       string(auth.RoleFromContext(ctx)),
		Action:     ActionDispatch,
		Site:       string(result.Command.Site),
		Verb:       string(result.Command.Verb),
		Command:    result.Command.Text(),
		Delivered:  result.Delivered,
		StatusCode: result.StatusCode,
		Error:      result.Error.OrEmpty(),
		Metadata:   metadata,
		IP:         info.IP,
		UserAgent:  info.UserAgent,
		CreatedAt:  result.StartedAt.UTC(),
	}
}
