package server

import (
	"fmt"
	"time"

	"rentalops/src/handler"
	"rentalops/src/logging"
	"rentalops/src/middleware"
	"rentalops/src/notification"
	"rentalops/src/recovery"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port            string        `envconfig:"PORT" default:"9898"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

func GetConfig() *Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return &config
}

// Settings gathers the per-package configs the error pipeline is built from.
type Settings struct {
	Middleware   middleware.Config
	Logging      logging.Config
	Notification notification.Config
	Recovery     recovery.Config
	Handler      handler.Config
}

func LoadSettings() Settings {
	return Settings{
		Middleware:   middleware.GetConfig(),
		Logging:      logging.GetConfig(),
		Notification: notification.GetConfig(),
		Recovery:     recovery.GetConfig(),
		Handler:      handler.GetConfig(),
	}
}
