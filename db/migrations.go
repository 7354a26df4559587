package db

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Migration represents a single database migration
type Migration struct {
	ID   int
	Name string
	Up   func(*gorm.DB) error
}

// allMigrations is applied in order before AutoMigrate.
var allMigrations = []Migration{
	{
		ID:   1,
		Name: "0001_rename_account_email_to_account_label",
		Up:   migration0001RenameAccountEmailToAccountLabel,
	},
	{
		ID:   2,
		Name: "0002_add_history_positions",
		Up:   migration0002AddHistoryPositions,
	},
}

// AllModels returns all the models that need to be migrated
func AllModels() []any {
	return []any{
		&MigrationModel{},
		&ConnectionModel{},
		&TokenModel{},
		&HistoryRecordModel{},
	}
}

// AutoMigrateAll runs manual migrations, then AutoMigrate for every model.
func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(&MigrationModel{}); err != nil {
		return err
	}

	if err := RunMigrations(db, len(allMigrations)); err != nil {
		return err
	}

	return db.AutoMigrate(AllModels()...)
}

// RunMigrations runs all migrations up to and including the specified ID
// If targetID is 0 or negative, all migrations are run
func RunMigrations(db *gorm.DB, targetID int) error {
	if targetID <= 0 {
		targetID = len(allMigrations)
	}

	for _, migration := range allMigrations {
		if migration.ID > targetID {
			break
		}

		applied, err := migrationApplied(db, migration.Name)
		if err != nil {
			return fmt.Errorf("failed to check migration %s: %w", migration.Name, err)
		}
		if applied {
			continue
		}

		err = db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
			}
			if err := recordMigration(tx, migration.Name); err != nil {
				return fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

func migrationApplied(db *gorm.DB, name string) (bool, error) {
	var count int64
	err := db.Model(&MigrationModel{}).Where("name = ?", name).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func recordMigration(db *gorm.DB, name string) error {
	return db.Create(&MigrationModel{Name: name, AppliedAt: time.Now()}).Error
}

// CreateSchemaAtMigration creates the database schema as it existed at a specific migration version.
// migrationID 0 is the first released schema.
func CreateSchemaAtMigration(db *gorm.DB, migrationID int) error {
	if err := db.AutoMigrate(&MigrationModel{}); err != nil {
		return err
	}

	if err := createInitialSchema(db); err != nil {
		return err
	}

	if migrationID > 0 {
		return RunMigrations(db, migrationID)
	}

	return nil
}

func createInitialSchema(db *gorm.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS connections (
			provider_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			account_email TEXT NOT NULL DEFAULT '',
			token_ref TEXT NOT NULL DEFAULT '',
			last_error_kind TEXT,
			last_error_message TEXT,
			connected_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE IF NOT EXISTS history_records (
			id TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			date TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// migration0001RenameAccountEmailToAccountLabel: not every provider reports an email.
func migration0001RenameAccountEmailToAccountLabel(db *gorm.DB) error {
	if !db.Migrator().HasColumn(&ConnectionModel{}, "account_email") {
		return nil
	}
	return db.Exec("ALTER TABLE connections RENAME COLUMN account_email TO account_label").Error
}

// migration0002AddHistoryPositions rebuilds history_records with the position
// column and its constraints, numbering existing rows in insertion order.
// The table is recreated so the later AutoMigrate finds nothing to change.
func migration0002AddHistoryPositions(db *gorm.DB) error {
	m := db.Migrator()
	if !m.HasTable(&HistoryRecordModel{}) || m.HasColumn(&HistoryRecordModel{}, "position") {
		return nil
	}

	if err := db.Exec("ALTER TABLE history_records RENAME TO history_records_v1").Error; err != nil {
		return err
	}
	if err := m.CreateTable(&HistoryRecordModel{}); err != nil {
		return err
	}
	err := db.Exec(`
		INSERT INTO history_records (id, created_at, updated_at, position, url, date, status)
		SELECT id, created_at, updated_at,
			(SELECT COUNT(*) FROM history_records_v1 AS older WHERE older.rowid <= v1.rowid),
			url, date, status
		FROM history_records_v1 AS v1
	`).Error
	if err != nil {
		return err
	}
	return db.Exec("DROP TABLE history_records_v1").Error
}
