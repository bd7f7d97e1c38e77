package recovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	MaxBackoff         time.Duration `envconfig:"RECOVERY_MAX_BACKOFF" default:"5s"`
	ExternalHealthURLs string        `envconfig:"EXTERNAL_HEALTH_URLS"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// ParseHealthURLs reads "service=url,service=url". Service names are matched
// case-insensitively.
func ParseHealthURLs(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || name == "" || url == "" {
			continue
		}
		out[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(url)
	}
	return out
}
