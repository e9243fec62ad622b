// Package config loads runtime settings from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/googleapis/gax-go/v2"
	flowerrors "github.com/maxkimambo/taskflow/internal/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Queue  QueueConfig  `yaml:"queue"`
	Flow   FlowConfig   `yaml:"flow"`
	Worker WorkerConfig `yaml:"worker"`
	Log    LogConfig    `yaml:"log"`
}

// QueueConfig sizes the in-memory broker.
type QueueConfig struct {
	Capacity    int `yaml:"capacity"`
	Concurrency int `yaml:"concurrency"`
}

type FlowConfig struct {
	// StallTimeout rejects a stalled reduction after this long. Zero only logs.
	StallTimeout  time.Duration `yaml:"stall_timeout"`
	SubmitBackoff BackoffConfig `yaml:"submit_backoff"`
}

// BackoffConfig paces resubmission to a full queue.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
}

// Gax converts the settings to a gax backoff.
func (b BackoffConfig) Gax() gax.Backoff {
	return gax.Backoff{Initial: b.Initial, Max: b.Max, Multiplier: b.Multiplier}
}

type WorkerConfig struct {
	// Concurrency bounds the handlers running at once. Zero means unbounded.
	Concurrency int `yaml:"concurrency"`
}

type LogConfig struct {
	Verbose bool `yaml:"verbose"`
	JSON    bool `yaml:"json"`
	Quiet   bool `yaml:"quiet"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Queue: QueueConfig{
			Capacity:    256,
			Concurrency: 8,
		},
		Flow: FlowConfig{
			SubmitBackoff: BackoffConfig{
				Initial:    10 * time.Millisecond,
				Max:        time.Second,
				Multiplier: 2,
			},
		},
	}
}

// Parse decodes YAML on top of Default and validates the result. Unknown
// keys are rejected.
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Load reads and parses the YAML file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the settings for values the runtime cannot work with.
func (c Config) Validate() error {
	invalid := func(field string, value interface{}, msg string) error {
		return flowerrors.NewValidationError(flowerrors.CodeInvalidConfig, msg).
			WithContext("field", field).
			WithContext("value", value)
	}

	switch {
	case c.Queue.Capacity <= 0:
		return invalid("queue.capacity", c.Queue.Capacity, "queue capacity must be positive")
	case c.Queue.Concurrency <= 0:
		return invalid("queue.concurrency", c.Queue.Concurrency, "queue concurrency must be positive")
	case c.Worker.Concurrency < 0:
		return invalid("worker.concurrency", c.Worker.Concurrency, "worker concurrency must not be negative")
	case c.Flow.StallTimeout < 0:
		return invalid("flow.stall_timeout", c.Flow.StallTimeout, "stall timeout must not be negative")
	case c.Flow.SubmitBackoff.Initial <= 0:
		return invalid("flow.submit_backoff.initial", c.Flow.SubmitBackoff.Initial, "backoff initial pause must be positive")
	case c.Flow.SubmitBackoff.Max < c.Flow.SubmitBackoff.Initial:
		return invalid("flow.submit_backoff.max", c.Flow.SubmitBackoff.Max, "backoff max pause must not be below the initial pause")
	case c.Flow.SubmitBackoff.Multiplier < 1:
		return invalid("flow.submit_backoff.multiplier", c.Flow.SubmitBackoff.Multiplier, "backoff multiplier must be at least 1")
	case c.Log.Verbose && c.Log.Quiet:
		return invalid("log", "verbose+quiet", "verbose and quiet logging are mutually exclusive")
	}
	return nil
}
