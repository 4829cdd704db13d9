package db

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// DataMigration represents a data migration
type DataMigration struct {
	Version     string
	Description string
	Up          func(*gorm.DB) error
}

// GetDataMigrations return all data migrations, in order
func GetDataMigrations() []DataMigration {
	return []DataMigration{
		{
			Version:     "data_001",
			Description: "Fail live attempts that carry no request payload",
			Up:          failUndispatchableAttempts,
		},
		{
			Version:     "data_002",
			Description: "Close completion timestamps of terminal attempts",
			Up:          backfillCompletedAt,
		},
	}
}

// failUndispatchableAttempts rows written before request_data existed cannot
// be re-dispatched on restart; they would otherwise stay live forever.
func failUndispatchableAttempts(tx *gorm.DB) error {
	result := tx.Exec(`
		UPDATE proof_tasks
		SET status = 'failed',
		    last_error = 'request payload missing, resubmit to retry',
		    completed_at = CURRENT_TIMESTAMP
		WHERE status IN ('registered', 'work_in_progress')
		  AND (request_data IS NULL OR request_data = '')
	`)
	if result.Error != nil {
		return result.Error
	}
	log.Printf("✅ Failed %d undispatchable attempts", result.RowsAffected)
	return nil
}

func backfillCompletedAt(tx *gorm.DB) error {
	result := tx.Exec(`
		UPDATE proof_tasks
		SET completed_at = updated_at
		WHERE status IN ('success', 'failed', 'cancelled')
		  AND completed_at IS NULL
	`)
	if result.Error != nil {
		return result.Error
	}
	log.Printf("✅ Backfilled completed_at on %d attempts", result.RowsAffected)
	return nil
}

// dataMigrationRecord marks an applied data migration
type dataMigrationRecord struct {
	Version     string    `gorm:"primaryKey;type:varchar(32)"`
	Description string    `gorm:"type:text"`
	AppliedAt   time.Time `gorm:"autoCreateTime"`
}

func (dataMigrationRecord) TableName() string {
	return "data_migrations"
}

// RunDataMigrations applies every migration not yet recorded in data_migrations
func RunDataMigrations(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(&dataMigrationRecord{}); err != nil {
		return fmt.Errorf("failed to create data_migrations table: %w", err)
	}

	for _, migration := range GetDataMigrations() {
		var count int64
		if err := gdb.Model(&dataMigrationRecord{}).Where("version = ?", migration.Version).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		log.Printf("🔄 Running data migration %s: %s", migration.Version, migration.Description)
		err := gdb.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Create(&dataMigrationRecord{Version: migration.Version, Description: migration.Description}).Error
		})
		if err != nil {
			return fmt.Errorf("%s: %w", migration.Version, err)
		}
	}
	return nil
}
