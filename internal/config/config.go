package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Service struct {
	Environment string `envconfig:"SERVICE_ENVIRONMENT" default:"development"`
}

type Export struct {
	BaseURL             string   `envconfig:"EXPORT_BASE_URL" default:"http://localhost:8000"`
	KnownExports        []string `envconfig:"EXPORT_KNOWN_EXPORTS" default:"demo,small,large"`
	DiscoveryTimeoutSec int      `envconfig:"EXPORT_DISCOVERY_TIMEOUT_SEC" default:"30"`
	ReadStallTimeoutSec int      `envconfig:"EXPORT_READ_STALL_TIMEOUT_SEC" default:"60"`
}

type Pipeline struct {
	OnMalformed       string `envconfig:"PIPELINE_ON_MALFORMED" default:"fail"`
	ProgressEveryRows int64  `envconfig:"PIPELINE_PROGRESS_EVERY_ROWS" default:"1000000"`
}

type Mock struct {
	Port        string `envconfig:"MOCK_PORT" default:"8000"`
	CatalogPath string `envconfig:"MOCK_CATALOG_PATH"`
	Gzip        bool   `envconfig:"MOCK_GZIP" default:"true"`
}

type Config struct {
	Service  Service
	Export   Export
	Pipeline Pipeline
	Mock     Mock
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}
