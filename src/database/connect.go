package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Connection is the handle shared by repositories and the database recovery
// strategy.
type Connection struct {
	db *gorm.DB
}

func NewConnection(db *gorm.DB) *Connection {
	return &Connection{db: db}
}

func (c *Connection) DB() *gorm.DB {
	return c.db
}

// Ping round-trips to the server. A successful ping after a connection error
// means the pool has reconnected.
func (c *Connection) Ping(ctx context.Context) error {
	if c == nil || c.db == nil {
		return fmt.Errorf("database is not configured")
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from GORM: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (c *Connection) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
