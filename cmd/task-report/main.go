package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"proof-host/internal/config"

	_ "github.com/lib/pq"
)

// task-report prints task counts per status and proof type, and the oldest
// live attempts, straight from the proof_tasks table.
func main() {
	configPath := flag.String("config", "", "Path to config file")
	staleAfter := flag.Duration("stale", time.Hour, "Report live attempts older than this")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	dsn := config.AppConfig.Database.DSN
	if dsn == "" {
		log.Fatal("database.dsn is required (the memory driver has nothing to report)")
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	fmt.Println("🔍 Proof task report")
	fmt.Println(strings.Repeat("=", 60))

	// 1. Current record per task key
	rows, err := sqlDB.Query(`
		SELECT status, proof_type, COUNT(*)
		FROM proof_tasks t
		WHERE attempt = (SELECT MAX(attempt) FROM proof_tasks WHERE task_key = t.task_key)
		GROUP BY status, proof_type
		ORDER BY status, proof_type
	`)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}
	fmt.Printf("\n📋 %-18s %-8s %8s\n", "STATUS", "TYPE", "TASKS")
	var total int
	for rows.Next() {
		var status, proofType string
		var count int
		if err := rows.Scan(&status, &proofType, &count); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		total += count
		fmt.Printf("   %-18s %-8s %8d\n", status, proofType, count)
	}
	rows.Close()
	fmt.Printf("   %-27s %8d\n", "total", total)

	// 2. Stale live attempts
	cutoff := time.Now().Add(-*staleAfter)
	rows, err = sqlDB.Query(`
		SELECT task_key, attempt, status, block_number, proof_type, updated_at
		FROM proof_tasks
		WHERE status IN ('registered', 'work_in_progress') AND updated_at < $1
		ORDER BY updated_at
		LIMIT 50
	`, cutoff)
	if err != nil {
		log.Fatalf("Failed to query stale attempts: %v", err)
	}
	defer rows.Close()

	var stale int
	for rows.Next() {
		var taskKey, status, proofType string
		var attempt int
		var blockNumber uint64
		var updatedAt time.Time
		if err := rows.Scan(&taskKey, &attempt, &status, &blockNumber, &proofType, &updatedAt); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		if stale == 0 {
			fmt.Printf("\n⚠️ Live attempts not updated for %s:\n", *staleAfter)
		}
		stale++
		fmt.Printf("   %s #%d %s block=%d type=%s since %s\n", taskKey, attempt, status, blockNumber, proofType, updatedAt.Format(time.RFC3339))
	}
	if stale == 0 {
		fmt.Println("\n✅ No stale live attempts")
		return
	}
	rows.Close()
	sqlDB.Close()
	os.Exit(2)
}
