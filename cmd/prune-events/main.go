// Command prune-events deletes detection events older than a retention
// window. Snapshot blobs dominate database growth, so cabinets on small
// SD cards run this from cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/cabinet.report/internal/db"
)

func main() {
	var dbPath string
	var keep time.Duration
	var dryRun bool

	flag.StringVar(&dbPath, "db", "cabinet.db", "path to sqlite db")
	flag.DurationVar(&keep, "keep", 90*24*time.Hour, "retention window, events older than this are deleted")
	flag.BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	flag.Parse()

	if keep <= 0 {
		log.Fatalf("keep must be positive, got %s", keep)
	}
	cutoff := time.Now().Add(-keep).UTC()

	database, err := db.NewDB(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	if dryRun {
		events, err := database.ListEvents(context.Background(), db.EventFilter{Until: cutoff, Limit: 1000})
		if err != nil {
			log.Fatalf("count events: %v", err)
		}
		suffix := ""
		if len(events) == 1000 {
			suffix = " (or more)"
		}
		fmt.Printf("would delete %d events%s older than %s\n", len(events), suffix, cutoff.Format(time.RFC3339))
		return
	}

	deleted, err := database.PruneEvents(context.Background(), cutoff)
	if err != nil {
		log.Fatalf("prune failed: %v", err)
	}
	fmt.Printf("deleted %d events older than %s\n", deleted, cutoff.Format(time.RFC3339))
}
