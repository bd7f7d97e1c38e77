package middleware

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment    string `envconfig:"APP_ENV" default:"development"`
	Version        string `envconfig:"APP_VERSION" default:"1.0.0"`
	SupportContact string `envconfig:"SUPPORT_CONTACT" default:"suporte@rentalops.com.br"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
