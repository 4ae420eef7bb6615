// Command opscoord-maintenance runs the memory lifecycle sweeps: status
// reporting, topic resolution, pattern auto-resolution, resolved cleanup,
// stale-active expiry, and deduplication.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/johnohhh1/opscoord/internal/config"
	"github.com/johnohhh1/opscoord/internal/engine"
	"github.com/johnohhh1/opscoord/internal/storage"
	"github.com/johnohhh1/opscoord/internal/storage/postgres"
	"github.com/johnohhh1/opscoord/internal/storage/sqlite"
)

var (
	statusCmd     = flag.Bool("status", false, "Show active issues")
	resolveTopic  = flag.String("resolve", "", "Resolve records about a topic (e.g. \"pedro\")")
	resolveFilter = flag.String("context", "", "Extra context filter for --resolve")
	autoResolve   = flag.Bool("auto-resolve", false, "Apply pattern-based auto-resolution")
	cleanup       = flag.Bool("cleanup", false, "Delete resolved records past the grace period")
	expire        = flag.Bool("expire", false, "Delete stale active records per retention policy")
	dedupe        = flag.Bool("dedupe", false, "Remove duplicate records")
	runAll        = flag.Bool("all", false, "Run every maintenance task")
	dryRun        = flag.Bool("dry-run", false, "Report what would change without changing it")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	retentionCfg := engine.RetentionConfig{
		ResolvedGrace: cfg.Retention.ResolvedGrace(),
		DedupWindow:   cfg.Retention.DedupWindow(),
	}
	if policy, err := cfg.LoadRetentionPolicy(); err != nil {
		log.Fatalf("Failed to load retention policy: %v", err)
	} else if policy != nil {
		retentionCfg.Policy = policy.MaxAge
		retentionCfg.ResolvedGrace = policy.ResolvedGrace
		retentionCfg.DedupWindow = policy.DedupWindow
	}

	mgr := engine.NewRetentionManager(store, retentionCfg)
	ctx := context.Background()

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("AGENT MEMORY MAINTENANCE")
	fmt.Printf("Time: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Println(strings.Repeat("=", 60))

	// With no action selected, show status.
	if !*statusCmd && *resolveTopic == "" && !*autoResolve && !*cleanup && !*expire && !*dedupe && !*runAll {
		*statusCmd = true
	}

	if *statusCmd || *runAll {
		printStatus(ctx, mgr)
	}

	if *resolveTopic != "" {
		section(fmt.Sprintf("RESOLVING %q", *resolveTopic))
		n, err := mgr.SmartResolve(ctx, *resolveTopic, *resolveFilter)
		if err != nil {
			fail("smart resolve", err)
		}
		fmt.Printf("Resolved %d records about %q\n", n, *resolveTopic)
	}

	if *autoResolve || *runAll {
		section("AUTO-RESOLUTION")
		n, err := mgr.AutoResolveByPatterns(ctx)
		if err != nil {
			fail("auto-resolve", err)
		}
		fmt.Printf("Auto-resolved %d records based on patterns\n", n)
	}

	if *cleanup || *runAll {
		section("CLEANUP RESOLVED")
		stats, err := mgr.CleanupResolved(ctx, *dryRun)
		if err != nil {
			fail("cleanup", err)
		}
		fmt.Printf("Deleted: %d old resolved records\n", stats.Deleted)
		fmt.Printf("Kept: %d recent resolved records\n", stats.Kept)
	}

	if *expire || *runAll {
		section("EXPIRE STALE RECORDS")
		stats, err := mgr.ExpireStaleActive(ctx, *dryRun)
		if err != nil {
			fail("expire", err)
		}
		fmt.Printf("Expired: %d stale records\n", stats.Expired)
		if len(stats.ByKind) > 0 {
			fmt.Println("By kind:")
			for kind, n := range stats.ByKind {
				fmt.Printf("  - %s: %d\n", kind, n)
			}
		}
	}

	if *dedupe || *runAll {
		section("DEDUPLICATE")
		stats, err := mgr.Deduplicate(ctx, *dryRun)
		if err != nil {
			fail("dedupe", err)
		}
		fmt.Printf("Removed: %d duplicate records\n", stats.Removed)
		fmt.Printf("Kept: %d duplicate groups\n", stats.Kept)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	if *dryRun {
		fmt.Println("DRY RUN COMPLETE - No changes were made")
	} else {
		fmt.Println("MAINTENANCE COMPLETE")
	}
}

// openStore builds the configured backend.
func openStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Engine {
	case "sqlite", "":
		store, err := sqlite.NewStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		if dir := cfg.Storage.MigrationsDir; dir != "" {
			if err := store.RunMigrations(dir); err != nil {
				store.Close()
				return nil, err
			}
		}
		return storage.NewBreakerStore(store), nil
	case "postgres":
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return storage.NewBreakerStore(store), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

func printStatus(ctx context.Context, mgr *engine.RetentionManager) {
	section("ACTIVE ISSUES")

	issues, err := mgr.ActiveIssues(ctx)
	if err != nil {
		fail("status", err)
	}
	if len(issues) == 0 {
		fmt.Println("[OK] No active issues found!")
		return
	}

	shown := issues
	if len(shown) > 10 {
		shown = shown[:10]
	}
	for _, issue := range shown {
		urgency := "[Normal]"
		if issue.Urgent {
			urgency = "[URGENT]"
		}
		age := "Today"
		if issue.AgeDays > 0 {
			age = fmt.Sprintf("%dd ago", issue.AgeDays)
		}
		fmt.Printf("%s [%s] %s\n", urgency, age, truncate(issue.Summary, 60))
	}
	if len(issues) > 10 {
		fmt.Printf("... and %d more active issues\n", len(issues)-10)
	}
}

func section(title string) {
	fmt.Printf("\n%s:\n", title)
	fmt.Println(strings.Repeat("-", 40))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func fail(op string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s failed: %v\n", op, err)
	os.Exit(1)
}
