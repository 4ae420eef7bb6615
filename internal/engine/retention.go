package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/johnohhh1/opscoord/internal/storage"
	"github.com/johnohhh1/opscoord/pkg/types"
)

const (
	// defaultMaxAge applies to active records of kinds without an explicit
	// retention entry.
	defaultMaxAge = 14 * 24 * time.Hour

	// defaultResolvedGrace is how long resolved records stay auditable
	// before cleanup deletes them.
	defaultResolvedGrace = 3 * 24 * time.Hour

	// defaultDedupWindow bounds how close in time two identical summaries
	// must be to count as duplicates.
	defaultDedupWindow = time.Hour

	// maxActiveIssues caps the active-issues report.
	maxActiveIssues = 20

	// activeIssueWindow is how far back the active-issues report looks. An
	// unresolved item older than this has already been expired or abandoned.
	activeIssueWindow = 30 * 24 * time.Hour
)

// RetentionPolicy maps an event kind to the maximum age an Active record of
// that kind may reach before the expiry sweep deletes it.
type RetentionPolicy map[types.EventKind]time.Duration

// DefaultRetentionPolicy returns the stock kind-age policy. Kinds not
// listed fall back to defaultMaxAge.
func DefaultRetentionPolicy() RetentionPolicy {
	return RetentionPolicy{
		types.EventQuestionAnswered: 7 * 24 * time.Hour,
		types.EventEmailAnalyzed:    14 * 24 * time.Hour,
		types.EventDigestGenerated:  30 * 24 * time.Hour,
	}
}

// RetentionConfig tunes the retention manager. Zero values take defaults.
type RetentionConfig struct {
	Policy        RetentionPolicy
	ResolvedGrace time.Duration
	DedupWindow   time.Duration
}

// RetentionManager runs the lifecycle sweeps that keep the store relevant:
// pattern-based auto-resolution, stale-active expiry, resolved cleanup, and
// deduplication. All destructive sweeps support dry-run.
type RetentionManager struct {
	store  storage.Store
	policy RetentionPolicy
	grace  time.Duration
	window time.Duration
}

// NewRetentionManager returns a manager over store with the given config.
func NewRetentionManager(store storage.Store, cfg RetentionConfig) *RetentionManager {
	if cfg.Policy == nil {
		cfg.Policy = DefaultRetentionPolicy()
	}
	if cfg.ResolvedGrace <= 0 {
		cfg.ResolvedGrace = defaultResolvedGrace
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = defaultDedupWindow
	}
	return &RetentionManager{
		store:  store,
		policy: cfg.Policy,
		grace:  cfg.ResolvedGrace,
		window: cfg.DedupWindow,
	}
}

// autoResolvePatterns are summary/context phrases that indicate an item was
// already dealt with, paired with the synthetic resolution reason.
var autoResolvePatterns = []struct {
	pattern string
	reason  string
}{
	{"covered", "Coverage has been arranged"},
	{"resolved", "Issue marked as resolved"},
	{"completed", "Task has been completed"},
	{"handled", "Situation has been handled"},
	{"done", "Action has been completed"},
	{"fixed", "Problem has been fixed"},
}

// AutoResolveByPatterns sweeps Active records whose summary or context
// mentions a completion phrase and resolves them with a synthetic reason.
// Returns the total number of records resolved.
func (m *RetentionManager) AutoResolveByPatterns(ctx context.Context) (int, error) {
	total := 0
	for _, p := range autoResolvePatterns {
		n, err := m.store.ResolveByText(ctx, p.pattern, storage.ResolveOptions{
			Note:         p.reason,
			Reason:       p.reason,
			Actor:        "auto_resolver",
			MatchContext: true,
			Lookback:     -1,
		})
		if err != nil {
			return total, fmt.Errorf("engine: auto-resolve pattern %q: %w", p.pattern, err)
		}
		total += n
	}
	return total, nil
}

// SmartResolve resolves every Active record mentioning topic, optionally
// narrowed to records whose context also mentions contextFilter.
func (m *RetentionManager) SmartResolve(ctx context.Context, topic, contextFilter string) (int, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return 0, nil
	}

	reason := fmt.Sprintf("Resolved: %s", topic)
	n, err := m.store.ResolveByText(ctx, topic, storage.ResolveOptions{
		Note:          reason,
		Reason:        reason,
		Actor:         "maintenance",
		MatchContext:  true,
		ContextFilter: contextFilter,
		Lookback:      -1,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: smart resolve %q: %w", topic, err)
	}
	return n, nil
}

// ExpiryStats reports the outcome of a stale-active expiry sweep.
type ExpiryStats struct {
	Expired int
	ByKind  map[types.EventKind]int
}

// ExpireStaleActive deletes Active records older than their kind's retention
// policy. This track intentionally deletes records that were never resolved:
// an abandoned Active item outliving its policy window is noise, and an
// urgent record that aged past the window is removed with the rest.
func (m *RetentionManager) ExpireStaleActive(ctx context.Context, dryRun bool) (*ExpiryStats, error) {
	stats := &ExpiryStats{ByKind: make(map[types.EventKind]int)}
	now := time.Now().UTC()

	for _, kind := range types.ValidEventKinds {
		maxAge, ok := m.policy[kind]
		if !ok {
			maxAge = defaultMaxAge
		}

		n, err := m.store.DeleteStaleActive(ctx, kind, now.Add(-maxAge), dryRun)
		if err != nil {
			return stats, fmt.Errorf("engine: expire %s: %w", kind, err)
		}
		if n > 0 {
			stats.ByKind[kind] = n
			stats.Expired += n
		}
	}

	return stats, nil
}

// CleanupStats reports the outcome of a resolved cleanup sweep.
type CleanupStats struct {
	Deleted int
	Kept    int
}

// CleanupResolved deletes Resolved records whose resolution is older than
// the grace period. Active records are never touched.
func (m *RetentionManager) CleanupResolved(ctx context.Context, dryRun bool) (*CleanupStats, error) {
	deleted, kept, err := m.store.DeleteResolvedBefore(ctx, time.Now().UTC().Add(-m.grace), dryRun)
	if err != nil {
		return nil, fmt.Errorf("engine: cleanup resolved: %w", err)
	}
	return &CleanupStats{Deleted: deleted, Kept: kept}, nil
}

// DedupStats reports the outcome of a deduplication sweep.
type DedupStats struct {
	Removed int
	Kept    int
}

// Deduplicate removes records sharing an identical summary with a newer
// record created inside the dedup window. The newest copy always survives.
func (m *RetentionManager) Deduplicate(ctx context.Context, dryRun bool) (*DedupStats, error) {
	removed, kept, err := m.store.DeleteDuplicates(ctx, m.window, dryRun)
	if err != nil {
		return nil, fmt.Errorf("engine: deduplicate: %w", err)
	}
	return &DedupStats{Removed: removed, Kept: kept}, nil
}

// ActiveIssue is one entry in the active-issues report.
type ActiveIssue struct {
	ID       string
	Summary  string
	Kind     types.EventKind
	Producer types.Producer
	Created  time.Time
	AgeDays  int
	Urgent   bool
	Details  []string
}

// ActiveIssues reports currently actionable items: unresolved records that
// are analyzed emails, created tasks, or flagged urgent. Newest first,
// capped at 20.
func (m *RetentionManager) ActiveIssues(ctx context.Context) ([]ActiveIssue, error) {
	records, err := m.store.Recent(ctx, storage.RecentOptions{
		Window: activeIssueWindow,
		Limit:  200,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: active issues: %w", err)
	}

	now := time.Now().UTC()
	var issues []ActiveIssue
	for _, rec := range records {
		if rec.IsResolved() {
			continue
		}
		if rec.EventKind != types.EventEmailAnalyzed &&
			rec.EventKind != types.EventTaskCreated &&
			!rec.IsUrgent() {
			continue
		}

		issues = append(issues, ActiveIssue{
			ID:       rec.ID,
			Summary:  rec.Summary,
			Kind:     rec.EventKind,
			Producer: rec.Producer,
			Created:  rec.CreatedAt,
			AgeDays:  int(now.Sub(rec.CreatedAt).Hours() / 24),
			Urgent:   rec.IsUrgent(),
			Details:  rec.Findings.StringSlice("urgent_items"),
		})
		if len(issues) == maxActiveIssues {
			break
		}
	}

	return issues, nil
}
