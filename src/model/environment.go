package model

import "strings"

// Environment is the deployment mode read from APP_ENV.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTest        Environment = "test"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// IsDevelopment reports development-equivalent modes, where internal error
// detail may be returned to clients and file sinks are skipped.
func (e Environment) IsDevelopment() bool {
	switch strings.ToLower(string(e)) {
	case "development", "dev", "local", "test":
		return true
	}
	return false
}

// IsProduction reports production-equivalent modes, where stack traces are never emitted.
func (e Environment) IsProduction() bool {
	switch strings.ToLower(string(e)) {
	case "production", "prod":
		return true
	}
	return false
}

func (e Environment) String() string {
	if e == "" {
		return string(EnvDevelopment)
	}
	return string(e)
}
