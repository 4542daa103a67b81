package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/malwarebo/mintbridge/models"
)

type Migration struct {
	Version string
	Name    string
	Up      func(*gorm.DB) error
}

// Migrator applies versioned schema migrations exactly once, tracked
// in a schema_migrations table.
type Migrator struct {
	db         *gorm.DB
	migrations []Migration
}

func CreateMigrator(db *gorm.DB) *Migrator {
	m := &Migrator{db: db}
	m.registerDefaults()
	return m
}

func (m *Migrator) AddMigration(version, name string, up func(*gorm.DB) error) {
	m.migrations = append(m.migrations, Migration{Version: version, Name: name, Up: up})
}

func (m *Migrator) registerDefaults() {
	m.AddMigration("001", "base_schema", func(db *gorm.DB) error {
		return db.AutoMigrate(
			&models.Purchase{},
			&models.PurchaseEvent{},
			&models.LedgerTx{},
			&models.ActionRecord{},
			&models.Compensation{},
		)
	})
	m.AddMigration("002", "purchase_lease_index", func(db *gorm.DB) error {
		// AcquireLease filters on (status, locked_at); the partial
		// index keeps the scan off terminal rows.
		return db.Exec(`
			CREATE INDEX IF NOT EXISTS idx_purchases_lease
			ON purchases (status, locked_at)
			WHERE status IN ('funds_confirmed', 'action_required')
		`).Error
	})
}

func (m *Migrator) Up() error {
	if err := m.createMigrationsTable(); err != nil {
		return err
	}

	applied, err := m.getAppliedMigrations()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if applied[migration.Version] {
			continue
		}

		if err := migration.Up(m.db); err != nil {
			return fmt.Errorf("failed to apply migration %s: %v", migration.Version, err)
		}

		if err := m.recordMigration(migration.Version, migration.Name); err != nil {
			return err
		}
	}

	return nil
}

func (m *Migrator) Status() ([]MigrationStatus, error) {
	applied, err := m.getAppliedMigrations()
	if err != nil {
		return nil, err
	}

	var statuses []MigrationStatus
	for _, migration := range m.migrations {
		statuses = append(statuses, MigrationStatus{
			Version: migration.Version,
			Name:    migration.Name,
			Applied: applied[migration.Version],
		})
	}

	return statuses, nil
}

type MigrationStatus struct {
	Version string
	Name    string
	Applied bool
}

func (m *Migrator) createMigrationsTable() error {
	return m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`).Error
}

func (m *Migrator) getAppliedMigrations() (map[string]bool, error) {
	var results []struct {
		Version string
	}

	if err := m.db.Table("schema_migrations").Select("version").Find(&results).Error; err != nil {
		return nil, err
	}

	applied := make(map[string]bool)
	for _, result := range results {
		applied[result.Version] = true
	}

	return applied, nil
}

func (m *Migrator) recordMigration(version, name string) error {
	return m.db.Exec(`
		INSERT INTO schema_migrations (version, name)
		VALUES (?, ?)
		ON CONFLICT (version) DO NOTHING
	`, version, name).Error
}
