// Package types defines the core data structures for the opscoord agent
// coordination memory. These types represent memory records, coordination
// runs, and their metadata shared by the triage, digest, and chat workers.
package types

// Producer identifies the worker/role that wrote a MemoryRecord.
type Producer string

// EventKind classifies what a MemoryRecord describes.
type EventKind string

// ResolutionState tracks whether a record is still actionable.
type ResolutionState string

// RunStatus tracks the lifecycle of a CoordinationRun.
type RunStatus string

// Producer constants name the known workers. Unknown producers are
// rejected by Validate.
const (
	// ProducerTriage is the email-triage worker.
	ProducerTriage Producer = "triage"

	// ProducerDailyBrief is the daily-digest generator.
	ProducerDailyBrief Producer = "daily_brief"

	// ProducerOperationsChat is the interactive chat handler.
	ProducerOperationsChat Producer = "operations_chat"

	// ProducerDelegationAdvisor is the delegation suggestion worker.
	ProducerDelegationAdvisor Producer = "delegation_advisor"
)

// EventKind constants.
const (
	EventEmailAnalyzed       EventKind = "email_analyzed"
	EventTaskCreated         EventKind = "task_created"
	EventDelegationSuggested EventKind = "delegation_suggested"
	EventQuestionAnswered    EventKind = "question_answered"
	EventDigestGenerated     EventKind = "digest_generated"
	EventDeadlineIdentified  EventKind = "deadline_identified"
	EventUrgentItemFlagged   EventKind = "urgent_item_flagged"
)

// Resolution state constants.
const (
	// StateActive indicates a record is still actionable.
	StateActive ResolutionState = "active"

	// StateResolved indicates a record has been marked no-longer-actionable.
	// The transition is one-way: resolved records never return to active.
	StateResolved ResolutionState = "resolved"
)

// Run status constants.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ResolvedPrefix is the literal marker prepended to a record's summary when
// it is resolved. It exists for prompt-format stability only; all filtering
// logic uses ResolutionState, never this prefix.
const ResolvedPrefix = "[RESOLVED] "

// ValidProducers is a slice of all valid producers for validation.
var ValidProducers = []Producer{
	ProducerTriage,
	ProducerDailyBrief,
	ProducerOperationsChat,
	ProducerDelegationAdvisor,
}

// ValidEventKinds is a slice of all valid event kinds for validation.
var ValidEventKinds = []EventKind{
	EventEmailAnalyzed,
	EventTaskCreated,
	EventDelegationSuggested,
	EventQuestionAnswered,
	EventDigestGenerated,
	EventDeadlineIdentified,
	EventUrgentItemFlagged,
}

// IsValidProducer checks if the given producer is valid.
func IsValidProducer(p Producer) bool {
	for _, valid := range ValidProducers {
		if valid == p {
			return true
		}
	}
	return false
}

// IsValidEventKind checks if the given event kind is valid.
func IsValidEventKind(k EventKind) bool {
	for _, valid := range ValidEventKinds {
		if valid == k {
			return true
		}
	}
	return false
}
