package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/johnohhh1/opscoord/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrWriteFailure indicates that a durable write could not be completed.
	// RecordEvent wraps backend errors with this sentinel so callers can
	// log-and-continue without inspecting driver-specific failures.
	ErrWriteFailure = errors.New("durable write failed")
)

// DefaultResolveLookback bounds how far back bulk text resolution reaches.
// Matching only recent records keeps a correction like "the Pedro issue is
// handled" from resurrecting month-old threads that merely mention Pedro.
const DefaultResolveLookback = 7 * 24 * time.Hour

// NewRecord carries the write-once fields for RecordEvent.
type NewRecord struct {
	Producer   types.Producer
	EventKind  types.EventKind
	Summary    string
	Context    types.Document
	Findings   types.Document
	EntityRefs types.EntityRefs

	// Provenance
	Model      string
	Confidence int // 0-100
	TokensUsed int
}

// Validate checks the write-once fields before they hit the store.
func (n *NewRecord) Validate() error {
	if !types.IsValidProducer(n.Producer) {
		return ErrInvalidInput
	}
	if !types.IsValidEventKind(n.EventKind) {
		return ErrInvalidInput
	}
	if strings.TrimSpace(n.Summary) == "" {
		return ErrInvalidInput
	}
	if n.Confidence < 0 || n.Confidence > 100 {
		return ErrInvalidInput
	}
	return nil
}

// RecentOptions filters windowed reads. The window applies to created_at,
// which is the sole basis for all windowed queries.
type RecentOptions struct {
	// Producer restricts results to one producer. Empty means all producers.
	Producer types.Producer

	// Window is how far back from now to look. Zero means the default 24h.
	Window time.Duration

	// Limit caps the result set. Zero means the default of 50, capped at 200.
	Limit int
}

// Normalize applies defaults and caps to RecentOptions.
func (o *RecentOptions) Normalize() {
	if o.Window <= 0 {
		o.Window = 24 * time.Hour
	}
	if o.Limit < 1 {
		o.Limit = 50
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
}

// SearchOptions filters keyword search over record summaries.
type SearchOptions struct {
	// Query is matched as a case-insensitive substring of summary.
	// Empty or whitespace-only queries yield an empty result, not an error.
	Query string

	// Producer restricts results to one producer. Empty means all producers.
	Producer types.Producer

	// Limit caps the result set. Zero means the default of 20, capped at 100.
	Limit int
}

// Normalize applies defaults and caps to SearchOptions.
func (o *SearchOptions) Normalize() {
	o.Query = strings.TrimSpace(o.Query)
	if o.Limit < 1 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
}

// ResolveOptions configures a bulk resolution sweep. The zero value is
// usable: lookback defaults to DefaultResolveLookback and the sweep matches
// summaries only.
type ResolveOptions struct {
	// Note is the audit annotation (e.g. the verbatim user message).
	Note string

	// Actor records who or what resolved the records (user, rule name).
	Actor string

	// Reason is stored as the record's resolution_reason.
	Reason string

	// Lookback bounds matching to records created within the window.
	// Zero means DefaultResolveLookback. Negative means unbounded, which
	// pattern-based auto-resolution uses.
	Lookback time.Duration

	// MatchContext extends the topic match to the serialized context
	// payload in addition to the summary.
	MatchContext bool

	// ContextFilter, when set, additionally requires this text to appear in
	// the serialized context payload. Reduces false positives versus a bare
	// topic match.
	ContextFilter string
}

// Normalize applies defaults to ResolveOptions.
func (o *ResolveOptions) Normalize() {
	if o.Lookback == 0 {
		o.Lookback = DefaultResolveLookback
	}
	if o.Actor == "" {
		o.Actor = "user"
	}
}

// NewRun carries the fields to open a CoordinationRun.
type NewRun struct {
	Producer types.Producer
	RunKind  string
	Model    string
}

// RunResult closes out a CoordinationRun. A non-empty ErrorDetail marks the
// run failed; otherwise it completes.
type RunResult struct {
	ItemsProcessed int
	OutcomeSummary string
	Findings       types.Document
	TotalTokens    int
	ErrorDetail    string
}
