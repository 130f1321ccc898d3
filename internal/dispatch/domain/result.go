package dispatch

import (
	"time"

	"github.com/samber/mo"
)

// FailureKind classifies why a dispatch was not delivered.
type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureRejected  FailureKind = "rejected"
)

// Result is the outcome of sending one command to the primary endpoint.
type Result struct {
	ID           string
	Command      Command
	Delivered    bool
	StatusCode   int
	ResponseBody mo.Option[string]
	Error        mo.Option[string]
	FailureKind  mo.Option[FailureKind]
	Notified     mo.Option[bool]
	NotifyError  mo.Option[string]
	StartedAt    time.Time
	Duration     time.Duration
}

// Batch groups the per-site results of one request, in selection order.
type Batch struct {
	ID      string
	Verb    Verb
	Results []Result
}

// Delivered counts delivered results.
func (b Batch) Delivered() int {
	count := 0
	for _, r := range b.Results {
		if r.Delivered {
			count++
		}
	}
	return count
}

// Failed counts results that were not delivered.
func (b Batch) Failed() int {
	return len(b.Results) - b.Delivered()
}
