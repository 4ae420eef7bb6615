package types

import "time"

// CoordinationRun groups a batch of records produced by one multi-item job,
// like "triage 20 emails". Records link back to their run through
// EntityRefs.RunID.
type CoordinationRun struct {
	ID       string   `json:"id"`
	Producer Producer `json:"producer"`

	// RunKind names the batch job (e.g. "inbox_triage", "morning_digest").
	RunKind string `json:"run_kind"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	ItemsProcessed int      `json:"items_processed"`
	OutcomeSummary string   `json:"outcome_summary,omitempty"`
	Findings       Document `json:"findings,omitempty"`
	TotalTokens    int      `json:"total_tokens,omitempty"`

	Status      RunStatus `json:"status"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// IsTerminal reports whether the run has finished (completed or failed).
func (r *CoordinationRun) IsTerminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}
