// Package engine provides the coordination layer between agent workers and
// the memory store: context assembly for prompts, retention sweeps, and the
// chat resolution path.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/johnohhh1/opscoord/internal/storage"
	"github.com/johnohhh1/opscoord/pkg/types"
)

const (
	// defaultContextWindow is how far back context assembly looks.
	defaultContextWindow = 24 * time.Hour

	// defaultPerProducer caps items per producer section in the text digest.
	defaultPerProducer = 10

	// contextFetchLimit bounds the underlying query regardless of caps.
	contextFetchLimit = 100

	// maxUrgentItems is how many urgent items a digest line shows.
	maxUrgentItems = 2
)

// timeFormat renders record timestamps in digest lines. The rendered line
// format is a stability contract: prompts built on it are tuned to these
// exact strings.
const timeFormat = "Jan 02, 03:04 PM"

// ContextAssembler builds prompt-ready digests of recent agent activity.
// Every build reads the store directly; a resolution committed by another
// worker is reflected in the very next digest.
type ContextAssembler struct {
	store storage.MemoryStore
}

// NewContextAssembler returns an assembler reading from store.
func NewContextAssembler(store storage.MemoryStore) *ContextAssembler {
	return &ContextAssembler{store: store}
}

// ContextOptions controls digest assembly.
type ContextOptions struct {
	// Window is how far back to look. Zero means 24 hours.
	Window time.Duration

	// Producer restricts the digest to one producer when set.
	Producer types.Producer

	// IncludeResolved keeps resolved records in the digest. Default is
	// active items only.
	IncludeResolved bool

	// PerProducer caps items per producer section. Zero means 10.
	PerProducer int
}

// Digest is an assembled view of recent agent activity.
type Digest struct {
	Window time.Duration

	// Records holds the filtered record set, newest first.
	Records []*types.MemoryRecord

	// Sections groups Records by producer in order of first appearance,
	// each section capped at the per-producer budget.
	Sections []Section
}

// Section is one producer's slice of the digest.
type Section struct {
	Producer types.Producer
	Records  []*types.MemoryRecord
}

// BuildContext assembles a digest of recent activity.
func (a *ContextAssembler) BuildContext(ctx context.Context, opts ContextOptions) (*Digest, error) {
	if opts.Window <= 0 {
		opts.Window = defaultContextWindow
	}
	if opts.PerProducer <= 0 {
		opts.PerProducer = defaultPerProducer
	}

	records, err := a.store.Recent(ctx, storage.RecentOptions{
		Window:   opts.Window,
		Producer: opts.Producer,
		Limit:    contextFetchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: failed to load recent records: %w", err)
	}

	digest := &Digest{Window: opts.Window}

	for _, rec := range records {
		if !opts.IncludeResolved && rec.IsResolved() {
			continue
		}
		digest.Records = append(digest.Records, rec)
	}

	// Group by producer in order of first appearance, so the busiest recent
	// producer leads.
	index := make(map[types.Producer]int)
	for _, rec := range digest.Records {
		i, ok := index[rec.Producer]
		if !ok {
			index[rec.Producer] = len(digest.Sections)
			digest.Sections = append(digest.Sections, Section{Producer: rec.Producer})
			i = index[rec.Producer]
		}
		if len(digest.Sections[i].Records) < opts.PerProducer {
			digest.Sections[i].Records = append(digest.Sections[i].Records, rec)
		}
	}

	return digest, nil
}

// RenderText renders the digest as the text block injected into agent
// system prompts.
func (d *Digest) RenderText() string {
	lines := []string{fmt.Sprintf("AGENT MEMORY (Last %dh - Active items only):\n", int(d.Window.Hours()))}

	for _, sec := range d.Sections {
		lines = append(lines, fmt.Sprintf("\n%s Agent:", strings.ToUpper(string(sec.Producer))))

		for _, rec := range sec.Records {
			note := ""
			if ann := rec.LatestAnnotation(); ann != nil {
				note = fmt.Sprintf(" (User note: %s)", ann.Note)
			}
			lines = append(lines, fmt.Sprintf("  - [%s] %s%s",
				rec.CreatedAt.Format(timeFormat), rec.Summary, note))

			if urgent := rec.Findings.StringSlice("urgent_items"); len(urgent) > 0 {
				if len(urgent) > maxUrgentItems {
					urgent = urgent[:maxUrgentItems]
				}
				lines = append(lines, "    🚨 Urgent: "+strings.Join(urgent, ", "))
			}
			if n := rec.Findings.Len("deadlines"); n > 0 {
				lines = append(lines, fmt.Sprintf("    📅 Deadlines: %d identified", n))
			}
		}
	}

	return strings.Join(lines, "\n")
}

// digestItem is the JSON shape for one digest entry.
type digestItem struct {
	Agent    types.Producer  `json:"agent"`
	Event    types.EventKind `json:"event"`
	Summary  string          `json:"summary"`
	Time     string          `json:"time"`
	Findings types.Document  `json:"findings"`
	Resolved bool            `json:"resolved"`
}

// RenderJSON renders the digest as indented JSON for structured consumers.
func (d *Digest) RenderJSON() (string, error) {
	items := make([]digestItem, 0, len(d.Records))
	for _, rec := range d.Records {
		items = append(items, digestItem{
			Agent:    rec.Producer,
			Event:    rec.EventKind,
			Summary:  rec.Summary,
			Time:     rec.CreatedAt.Format(time.RFC3339),
			Findings: rec.Findings,
			Resolved: rec.IsResolved(),
		})
	}

	out, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("engine: failed to render digest JSON: %w", err)
	}
	return string(out), nil
}

// DigestContext is the daily-brief generator's view of recent activity:
// a triage roll-up plus the questions operations chat already answered, so
// the brief neither re-raises handled items nor re-answers questions.
type DigestContext struct {
	TriageRecords     []*types.MemoryRecord
	UrgentCount       int
	DeadlineCount     int
	AnsweredQuestions []*types.MemoryRecord
}

// BuildDigestContext assembles the daily-brief input from active triage
// findings and recent chat answers inside the window.
func (a *ContextAssembler) BuildDigestContext(ctx context.Context, window time.Duration) (*DigestContext, error) {
	if window <= 0 {
		window = defaultContextWindow
	}

	triage, err := a.store.Recent(ctx, storage.RecentOptions{
		Window:   window,
		Producer: types.ProducerTriage,
		Limit:    contextFetchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: failed to load triage records: %w", err)
	}

	dc := &DigestContext{}
	for _, rec := range triage {
		if rec.IsResolved() {
			continue
		}
		dc.TriageRecords = append(dc.TriageRecords, rec)
		if rec.IsUrgent() {
			dc.UrgentCount++
		}
		dc.DeadlineCount += rec.Findings.Len("deadlines")
	}

	chat, err := a.store.Recent(ctx, storage.RecentOptions{
		Window:   window,
		Producer: types.ProducerOperationsChat,
		Limit:    contextFetchLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: failed to load chat records: %w", err)
	}
	for _, rec := range chat {
		if rec.EventKind == types.EventQuestionAnswered {
			dc.AnsweredQuestions = append(dc.AnsweredQuestions, rec)
		}
	}

	return dc, nil
}
