package bootstrap

import (
	"errors"
	"os"

	"labor/internal/config"
	"labor/internal/logger"
	"labor/pkg/logging"
)

// ConfigFileEnv is consulted when no --config flag was given.
const ConfigFileEnv = "CONFIG_FILE"

var ErrNoConfigFile = errors.New("config file is required")

// Setup loads the configuration and builds the process logger. Until the logger exists
// problems are written to stderr.
func Setup(service, configFile string) (*config.Config, logger.Logger, error) {
	early := logging.NewEarlyLog(service)

	if configFile == "" {
		configFile = os.Getenv(ConfigFileEnv)
	}
	if configFile == "" {
		early.Warn("Config file is required. Use --config flag or %s environment variable", ConfigFileEnv)
		return nil, nil, ErrNoConfigFile
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		early.Warn("Failed to load config %s: %v", configFile, err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging, service)
	if err != nil {
		early.Warn("Failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, log, nil
}
