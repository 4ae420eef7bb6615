package types

import "time"

// RefKind names the kind of external domain object an entity ref points at.
type RefKind string

// Entity ref kind constants.
const (
	RefEmailThread RefKind = "email_thread_id"
	RefTask        RefKind = "task_id"
	RefDelegation  RefKind = "delegation_id"
	RefRun         RefKind = "run_id"
)

// EntityRef is a foreign-key-like pointer from a MemoryRecord to an external
// domain object (email thread, task, delegation, coordination run).
type EntityRef struct {
	Kind RefKind `json:"kind"`
	ID   string  `json:"id"`
}

// EntityRefs holds the zero-or-more external references a record concerns.
// Each kind appears at most once. Membership is exact-match only.
type EntityRefs struct {
	EmailThreadID string `json:"email_thread_id,omitempty"`
	TaskID        string `json:"task_id,omitempty"`
	DelegationID  string `json:"delegation_id,omitempty"`
	RunID         string `json:"run_id,omitempty"`
}

// Contains reports whether ref is a member of the set (exact match).
func (r EntityRefs) Contains(ref EntityRef) bool {
	if ref.ID == "" {
		return false
	}
	switch ref.Kind {
	case RefEmailThread:
		return r.EmailThreadID == ref.ID
	case RefTask:
		return r.TaskID == ref.ID
	case RefDelegation:
		return r.DelegationID == ref.ID
	case RefRun:
		return r.RunID == ref.ID
	}
	return false
}

// IsEmpty reports whether the set holds no references.
func (r EntityRefs) IsEmpty() bool {
	return r.EmailThreadID == "" && r.TaskID == "" && r.DelegationID == "" && r.RunID == ""
}

// Annotation is one append-only audit note on a record, written when a human
// or a maintenance rule resolves or corrects it.
type Annotation struct {
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
	Actor     string    `json:"actor"`
}

// MemoryRecord is one fact recorded by a producer. Records are created by
// RecordEvent, mutated only by resolution (state flip plus annotation
// append), and destroyed only by retention maintenance.
type MemoryRecord struct {
	// Core identification (immutable post-creation)
	ID        string    `json:"id"`
	Producer  Producer  `json:"producer"`
	EventKind EventKind `json:"event_kind"`
	CreatedAt time.Time `json:"created_at"`

	// Summary is short human-readable text. Once resolved it carries the
	// literal ResolvedPrefix marker, kept redundantly for prompt stability;
	// ResolutionState remains the single source of truth for filtering.
	Summary string `json:"summary"`

	// Context captures the inputs/outputs that produced this record.
	// Mutable only insofar as annotations are appended alongside it.
	Context Document `json:"context,omitempty"`

	// Findings holds extracted highlights (urgent items, deadline lists).
	// Write-once at creation.
	Findings Document `json:"findings,omitempty"`

	// EntityRefs are the external domain objects this record concerns.
	EntityRefs EntityRefs `json:"entity_refs"`

	// Provenance metadata, write-once.
	ProducedByModel string `json:"produced_by_model,omitempty"`
	Confidence      int    `json:"confidence,omitempty"` // 0-100
	TokensUsed      int    `json:"tokens_used,omitempty"`

	// Resolution lifecycle.
	ResolutionState  ResolutionState `json:"resolution_state"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
	ResolutionReason string          `json:"resolution_reason,omitempty"`

	// Annotations is the append-only ordered audit trail.
	Annotations []Annotation `json:"annotations,omitempty"`
}

// IsResolved reports whether the record has been marked no-longer-actionable.
func (m *MemoryRecord) IsResolved() bool {
	return m.ResolutionState == StateResolved
}

// IsUrgent reports whether the record's findings flag it urgent/actionable.
func (m *MemoryRecord) IsUrgent() bool {
	if m.Findings.Has("urgent_items") {
		return true
	}
	return m.Findings.String("priority") == "urgent"
}

// LatestAnnotation returns the most recent annotation, or nil when none exist.
func (m *MemoryRecord) LatestAnnotation() *Annotation {
	if len(m.Annotations) == 0 {
		return nil
	}
	return &m.Annotations[len(m.Annotations)-1]
}
