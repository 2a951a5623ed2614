package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_ADDR is the chat listener of a running relay, e.g. localhost:8080
	RelayAddr  string `envconfig:"RELAY_ADDR"`
	HealthAddr string `envconfig:"HEALTH_ADDR"`
	// E2E_DEBUG_JSON allows dumping full gRPC request/response bodies as JSON
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
