package http

import (
	"time"

	dispatch "fincas-control/internal/dispatch/domain"
)

// ResultDTO is the wire form of one per-site result.
type ResultDTO struct {
	ID           string    `json:"id"`
	Site         string    `json:"site"`
	Verb         string    `json:"verb"`
	Command      string    `json:"command"`
	Delivered    bool      `json:"delivered"`
	StatusCode   int       `json:"status_code,omitempty"`
	ResponseBody *string   `json:"response_body,omitempty"`
	Error        *string   `json:"error,omitempty"`
	FailureKind  *string   `json:"failure_kind,omitempty"`
	Notified     *bool     `json:"notified,omitempty"`
	NotifyError  *string   `json:"notify_error,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
}

// BatchDTO is the response of POST /api/v1/dispatch.
type BatchDTO struct {
	BatchID   string      `json:"batch_id"`
	Verb      string      `json:"verb"`
	Delivered int         `json:"delivered"`
	Failed    int         `json:"failed"`
	Results   []ResultDTO `json:"results"`
}

// StreamEvent is pushed to stream clients for every result.
type StreamEvent struct {
	BatchID string    `json:"batch_id"`
	Result  ResultDTO `json:"result"`
}

// NewResultDTO converts a result. Response bodies are only exposed in echo mode.
func NewResultDTO(result dispatch.Result, echo bool) ResultDTO {
	dto := ResultDTO{
		ID:         result.ID,
		Site:       string(result.Command.Site),
		Verb:       string(result.Command.Verb),
		Command:    result.Command.Text(),
		Delivered:  result.Delivered,
		StatusCode: result.StatusCode,
		StartedAt:  result.StartedAt,
		DurationMS: result.Duration.Milliseconds(),
	}
	if body, ok := result.ResponseBody.Get(); ok && echo {
		dto.ResponseBody = &body
	}
	if msg, ok := result.Error.Get(); ok {
		dto.Error = &msg
	}
	if kind, ok := result.FailureKind.Get(); ok {
		value := string(kind)
		dto.FailureKind = &value
	}
	if notified, ok := result.Notified.Get(); ok {
		dto.Notified = &notified
	}
	if msg, ok := result.NotifyError.Get(); ok {
		dto.NotifyError = &msg
	}
	return dto
}

// NewBatchDTO converts a batch, keeping selection order.
func NewBatchDTO(batch dispatch.Batch, echo bool) BatchDTO {
	out := BatchDTO{
		BatchID:   batch.ID,
		Verb:      string(batch.Verb),
		Delivered: batch.Delivered(),
		Failed:    batch.Failed(),
		Results:   make([]ResultDTO, 0, len(batch.Results)),
	}
	for _, result := range batch.Results {
		out.Results = append(out.Results, NewResultDTO(result, echo))
	}
	return out
}

// CatalogDTO describes what the panel can offer.
type CatalogDTO struct {
	Sites      []string   `json:"sites"`
	Parameters []string   `json:"parameters"`
	Verbs      []string   `json:"verbs"`
	Topics     []string   `json:"topics"`
	Sleep      SleepRange `json:"sleep"`
	Mirror     []string   `json:"mirror_channels"`
	Echo       bool       `json:"echo"`
}

// SleepRange bounds the sleep verb argument.
type SleepRange struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}
