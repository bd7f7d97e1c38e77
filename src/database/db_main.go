package database

import (
	"fmt"
	"time"

	"rentalops/src/database/migrations"
	"rentalops/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to postgres when a DSN is configured and to sqlite otherwise,
// then runs schema and data migrations.
func Open(config Config) (*gorm.DB, error) {
	dialector, driver := dialectorFor(config)
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB from GORM: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	logrus.WithField("driver", driver).Info("[database] connection established")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	logrus.Info("[database] migrations completed")
	return db, nil
}

// Migrate applies the schema for every model and the pending data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Property{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}
	return nil
}

func dialectorFor(config Config) (gorm.Dialector, string) {
	if config.DatabaseURLMain != "" {
		return postgres.Open(config.DatabaseURLMain), "postgres"
	}
	return sqlite.Open(config.SQLiteDSN), "sqlite"
}
