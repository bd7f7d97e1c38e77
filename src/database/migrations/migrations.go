// Package migrations runs one-off data migrations that AutoMigrate cannot express.
package migrations

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// DataMigration is one applied entry in the data_migrations table.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

// Migration is a named data change. IDs are applied in slice order and never reused.
type Migration struct {
	ID    string
	Apply func(*gorm.DB) error
}

var all = []Migration{
	{ID: "00001_properties_owner_city_index", Apply: createOwnerCityIndex},
	{ID: "00002_trim_property_cities", Apply: trimCities},
}

// Run applies every pending migration.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	for _, m := range all {
		if err := RunOnce(db, m.ID, m.Apply); err != nil {
			return err
		}
	}
	return nil
}

// RunOnce applies fn inside a transaction unless migrationID is already
// recorded. The record is written in the same transaction.
func RunOnce(db *gorm.DB, migrationID string, fn func(*gorm.DB) error) error {
	switch {
	case db == nil:
		return nil
	case migrationID == "":
		return fmt.Errorf("migration id is empty")
	case fn == nil:
		return fmt.Errorf("migration %q has nil fn", migrationID)
	}

	if err := db.AutoMigrate(&DataMigration{}); err != nil {
		return fmt.Errorf("ensure data migrations table: %w", err)
	}

	applied := false
	err := db.Transaction(func(tx *gorm.DB) error {
		var existing DataMigration
		lookup := tx.First(&existing, "id = ?", migrationID).Error
		if lookup == nil {
			return nil
		}
		if !errors.Is(lookup, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check migration %q: %w", migrationID, lookup)
		}

		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", migrationID, err)
		}
		if err := tx.Create(&DataMigration{ID: migrationID, AppliedAt: time.Now().UTC()}).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", migrationID, err)
		}
		applied = true
		return nil
	})
	if err == nil && applied {
		logrus.WithField("migration", migrationID).Info("[database] data migration applied")
	}
	return err
}

func createOwnerCityIndex(tx *gorm.DB) error {
	return tx.Exec("CREATE INDEX IF NOT EXISTS idx_properties_owner_city ON properties (owner_id, city)").Error
}

// trimCities normalizes rows imported before the handler started trimming input.
func trimCities(tx *gorm.DB) error {
	return tx.Exec("UPDATE properties SET city = TRIM(city) WHERE city <> TRIM(city)").Error
}
