package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"proof-host/internal/config"
	"proof-host/internal/db"
	"proof-host/internal/models"
	"proof-host/internal/repository"
	"proof-host/internal/types"
)

// batch-cancel marks live attempts cancelled directly in the database. An
// attempt that finished or was replaced after listing is left alone, and a
// running host ignores late results for the ones it cancels.
func main() {
	var (
		status     = flag.String("status", "work_in_progress", "Comma-separated statuses to cancel (registered, work_in_progress)")
		proofType  = flag.String("proof-type", "", "Only cancel this proof type")
		taskKeys   = flag.String("keys", "", "Comma-separated task keys to cancel")
		olderThan  = flag.Duration("older-than", 0, "Only cancel attempts not updated for this long")
		dryRun     = flag.Bool("dry-run", false, "Only show what would be cancelled, don't actually cancel")
		configPath = flag.String("config", "", "Path to config file")
	)
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	gdb, err := db.Open(config.AppConfig.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	ctx := context.Background()
	repo := repository.NewTaskRepository(gdb)

	var statuses []types.TaskStatus
	for _, s := range strings.Split(*status, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		st := types.TaskStatus(s)
		if st.IsTerminal() {
			log.Fatalf("cannot cancel terminal status %q", s)
		}
		statuses = append(statuses, st)
	}

	tasks, err := repo.ListByStatus(ctx, statuses...)
	if err != nil {
		log.Fatalf("Failed to list tasks: %v", err)
	}

	wanted := make(map[string]bool)
	for _, key := range strings.Split(*taskKeys, ",") {
		if key = strings.TrimSpace(key); key != "" {
			wanted[key] = true
		}
	}
	cutoff := time.Now().Add(-*olderThan)

	var selected []*models.ProofTask
	for _, task := range tasks {
		if len(wanted) > 0 && !wanted[task.TaskKey] {
			continue
		}
		if *proofType != "" && task.ProofType != *proofType {
			continue
		}
		if *olderThan > 0 && task.UpdatedAt.After(cutoff) {
			continue
		}
		selected = append(selected, task)
	}

	fmt.Printf("📋 Found %d attempt(s) to cancel\n", len(selected))
	for _, task := range selected {
		fmt.Printf("   - %s #%d %s block=%d type=%s\n", task.TaskKey, task.Attempt, task.Status, task.BlockNumber, task.ProofType)
	}
	if *dryRun || len(selected) == 0 {
		return
	}

	var cancelled, skipped, failed int
	for _, task := range selected {
		_, err := repo.UpdateAttempt(ctx, task.Descriptor(), task.ID, types.Cancelled())
		if errors.Is(err, types.ErrStaleAttempt) {
			// finished or re-attempted since it was listed
			log.Printf("⏭️  %s #%d no longer live, skipped", task.TaskKey, task.Attempt)
			skipped++
			continue
		}
		if err != nil {
			log.Printf("❌ %s: %v", task.TaskKey, err)
			failed++
			continue
		}
		cancelled++
	}
	fmt.Printf("✅ Cancelled %d, skipped %d, failed %d\n", cancelled, skipped, failed)
}
