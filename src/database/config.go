package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	EnableDB bool `envconfig:"ENABLE_DB" default:"false"`
	// DatabaseURLMain is a postgres DSN. When empty the service runs on an
	// in-memory sqlite database.
	DatabaseURLMain string `envconfig:"DATABASE_URL_MAIN" default:""`
	SQLiteDSN       string `envconfig:"SQLITE_DSN" default:"file::memory:?cache=shared"`
	GormLogLevel    int    `envconfig:"GORM_LOG_LEVEL" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
