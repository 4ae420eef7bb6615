package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/johnohhh1/opscoord/internal/storage"
	"github.com/johnohhh1/opscoord/pkg/types"
)

// ErrResolveRateLimited is returned when bulk resolutions are arriving
// faster than the chat path allows.
var ErrResolveRateLimited = errors.New("engine: resolution rate limit exceeded")

// IntentClassifier decides whether a chat message announces that an issue
// has been dealt with. Pluggable so a model-backed classifier can replace
// the keyword default.
type IntentClassifier interface {
	ResolutionIntent(message string) bool
}

// resolutionTriggers are the phrases the default classifier treats as a
// resolution announcement.
var resolutionTriggers = []string{
	"resolved",
	"handled",
	"taken care of",
	"no longer needed",
	"covered",
	"done",
	"fixed",
	"completed",
}

// KeywordClassifier is the default IntentClassifier: a case-insensitive
// substring match against a fixed trigger list.
type KeywordClassifier struct {
	triggers []string
}

// NewKeywordClassifier returns a classifier with the default trigger list.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{triggers: resolutionTriggers}
}

// NewKeywordClassifierWithTriggers returns a classifier with a custom
// trigger list. An empty list falls back to the defaults.
func NewKeywordClassifierWithTriggers(triggers []string) *KeywordClassifier {
	if len(triggers) == 0 {
		triggers = resolutionTriggers
	}
	return &KeywordClassifier{triggers: triggers}
}

// ResolutionIntent reports whether message contains any trigger phrase.
func (c *KeywordClassifier) ResolutionIntent(message string) bool {
	lower := strings.ToLower(message)
	for _, trigger := range c.triggers {
		if strings.Contains(lower, trigger) {
			return true
		}
	}
	return false
}

// ChatResolver is the interactive resolution path: when a user tells the
// chat that something is handled, the resolver sweeps matching Active
// records and annotates them with the user's own words.
//
// Bulk sweeps are rate limited so a chatty session cannot hammer the store
// with table-wide UPDATEs.
type ChatResolver struct {
	store      storage.MemoryStore
	classifier IntentClassifier
	limiter    *rate.Limiter
}

// NewChatResolver returns a resolver over store. A nil classifier gets the
// keyword default.
func NewChatResolver(store storage.MemoryStore, classifier IntentClassifier) *ChatResolver {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	return &ChatResolver{
		store:      store,
		classifier: classifier,
		// One sweep per 2 seconds sustained, bursts of 5.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 5),
	}
}

// HandleMessage checks message for resolution intent and, when found,
// resolves Active records matching topic. The verbatim message becomes the
// audit annotation. Returns the number of records resolved; 0 with a nil
// error when the message carries no resolution intent.
func (r *ChatResolver) HandleMessage(ctx context.Context, message, topic string) (int, error) {
	if !r.classifier.ResolutionIntent(message) {
		return 0, nil
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return 0, nil
	}

	if !r.limiter.Allow() {
		return 0, ErrResolveRateLimited
	}

	n, err := r.store.ResolveByText(ctx, topic, storage.ResolveOptions{
		Note:         message,
		Actor:        string(types.ProducerOperationsChat),
		MatchContext: true,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: chat resolve %q: %w", topic, err)
	}

	if n > 0 {
		log.Printf("engine: marked %d records resolved for %q", n, topic)
	}

	return n, nil
}

// ResolveEntity resolves every Active record referencing ref, annotated
// with the user's message. Used when the chat knows the concrete entity
// (e.g. an email thread) rather than a free-text topic.
func (r *ChatResolver) ResolveEntity(ctx context.Context, ref types.EntityRef, message string) (int, error) {
	if !r.limiter.Allow() {
		return 0, ErrResolveRateLimited
	}

	n, err := r.store.ResolveByEntity(ctx, ref, storage.ResolveOptions{
		Note:  message,
		Actor: string(types.ProducerOperationsChat),
	})
	if err != nil {
		return 0, fmt.Errorf("engine: chat resolve entity %s=%s: %w", ref.Kind, ref.ID, err)
	}

	return n, nil
}

// RecordOutcome writes a record and logs-and-continues on failure: memory
// is an aid, not a dependency, so a failed write must never abort the
// caller's primary workflow. Returns nil when the write failed.
func RecordOutcome(ctx context.Context, store storage.MemoryStore, rec storage.NewRecord) *types.MemoryRecord {
	created, err := store.RecordEvent(ctx, rec)
	if err != nil {
		log.Printf("engine: failed to record %s event (continuing): %v", rec.EventKind, err)
		return nil
	}
	return created
}
