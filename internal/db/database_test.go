package db

import (
	"testing"
	"time"

	"proof-host/internal/models"
	"proof-host/internal/types"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := gdb.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return gdb
}

func TestMigrateFailsUndispatchableAttempts(t *testing.T) {
	gdb := openSQLite(t)
	if err := gdb.AutoMigrate(&models.ProofTask{}); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	rows := []models.ProofTask{
		{ID: "a", TaskKey: "k1", Attempt: 1, BlockHash: "0x01", ProofType: "native", Prover: "0xabc", Status: types.TaskStatusWorkInProgress, CreatedAt: now, UpdatedAt: now},
		{ID: "b", TaskKey: "k2", Attempt: 1, BlockHash: "0x02", ProofType: "native", Prover: "0xabc", Status: types.TaskStatusRegistered, RequestData: `{"block_number":2}`, CreatedAt: now, UpdatedAt: now},
		{ID: "c", TaskKey: "k3", Attempt: 1, BlockHash: "0x03", ProofType: "native", Prover: "0xabc", Status: types.TaskStatusSuccess, RequestData: `{}`, CreatedAt: now, UpdatedAt: now},
	}
	if err := gdb.Create(&rows).Error; err != nil {
		t.Fatal(err)
	}

	if err := Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var got models.ProofTask
	gdb.First(&got, "id = ?", "a")
	if got.Status != types.TaskStatusFailed || got.LastError == "" || got.CompletedAt == nil {
		t.Fatalf("orphaned attempt not failed: %+v", got)
	}
	gdb.First(&got, "id = ?", "b")
	if got.Status != types.TaskStatusRegistered {
		t.Fatalf("dispatchable attempt changed to %s", got.Status)
	}
	gdb.First(&got, "id = ?", "c")
	if got.CompletedAt == nil {
		t.Fatal("completed_at not backfilled")
	}

	// second run is a no-op
	if err := Migrate(gdb); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	var applied int64
	gdb.Model(&dataMigrationRecord{}).Count(&applied)
	if applied != int64(len(GetDataMigrations())) {
		t.Fatalf("want %d recorded migrations, got %d", len(GetDataMigrations()), applied)
	}
}
