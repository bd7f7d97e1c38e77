package logging

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	AppName     string `envconfig:"APP_NAME" default:"rentalops"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogDir      string `envconfig:"LOG_DIR" default:"logs"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
