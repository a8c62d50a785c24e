package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mihkeltiks/mpi-hello/logger"
)

const ORCHESTRATOR_PORT = 3490

// Config represents the launcher configuration
type Config struct {
	// NumProcesses is the size of the process group
	NumProcesses int `yaml:"np"`

	// Address is where the rpc server for the nodes listens
	Address string `yaml:"address"`

	// StartupTimeout bounds how long the launcher waits for every rank to register
	StartupTimeout time.Duration `yaml:"startupTimeout"`

	// EventsAddress serves the websocket event stream; empty disables it
	EventsAddress string `yaml:"eventsAddress"`

	// WaitForEventClient holds the job back until a client is connected to the event stream
	WaitForEventClient bool `yaml:"waitForEventClient"`

	// TagOutput prefixes every output line with the job id, rank and stream
	TagOutput bool `yaml:"tagOutput"`

	// ForwardNodeLogs makes nodes send their log rows to the launcher
	ForwardNodeLogs bool `yaml:"forwardNodeLogs"`

	LogLevel string `yaml:"logLevel"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		NumProcesses:       1,
		Address:            fmt.Sprintf("localhost:%d", ORCHESTRATOR_PORT),
		StartupTimeout:     30 * time.Second,
		EventsAddress:      "",
		WaitForEventClient: false,
		TagOutput:          false,
		ForwardNodeLogs:    true,
		LogLevel:           "info",
	}
}

// Load reads a YAML file on top of the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.NumProcesses < 1 {
		errs = append(errs, fmt.Errorf("np must be at least 1, got %d", c.NumProcesses))
	}
	if c.Address == "" {
		errs = append(errs, errors.New("address must not be empty"))
	}
	if c.StartupTimeout <= 0 {
		errs = append(errs, fmt.Errorf("startup timeout must be positive, got %v", c.StartupTimeout))
	}
	if c.WaitForEventClient && c.EventsAddress == "" {
		errs = append(errs, errors.New("waiting for an event client requires an events address"))
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Level is the parsed LogLevel; call Validate first.
func (c *Config) Level() logger.LoggingLevel {
	level, err := logger.ParseLevel(c.LogLevel)
	if err != nil {
		return logger.Levels.Info
	}
	return level
}
