package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// NODE_ADDR is the gRPC address of a running quiz-lab node; scenarios skip without it
	NodeAddr string `envconfig:"NODE_ADDR"`
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
