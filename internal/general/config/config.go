package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	Database struct {
		Host     string
		Port     int
		User     string
		Password string
		Name     string // YAML key: "database"
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	// Intervals holds the periodic-task tuning knobs. Shorter intervals mean
	// lower end-to-end latency at the cost of more load on the store and bus;
	// there is no single correct value, only a trade-off.
	Intervals struct {
		OutboxRelayMS    int // outbox relay tick, per service
		QueueDrainMS     int // admission queue drain tick
		ExpirySweepMS    int // queue expiry sweep tick
		QueueEntryTTLMin int // minutes a queued request stays valid
	}
}

// LoadFromFile loads config from a YAML file to a Config struct, applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := parseYAML(file, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// OutboxRelayInterval returns the relay tick as a duration.
func (c *Config) OutboxRelayInterval() time.Duration {
	return time.Duration(c.Intervals.OutboxRelayMS) * time.Millisecond
}

// QueueDrainInterval returns the drain tick as a duration.
func (c *Config) QueueDrainInterval() time.Duration {
	return time.Duration(c.Intervals.QueueDrainMS) * time.Millisecond
}

// ExpirySweepInterval returns the expiry sweep tick as a duration.
func (c *Config) ExpirySweepInterval() time.Duration {
	return time.Duration(c.Intervals.ExpirySweepMS) * time.Millisecond
}

// QueueEntryTTL returns how long a queued request stays valid.
func (c *Config) QueueEntryTTL() time.Duration {
	return time.Duration(c.Intervals.QueueEntryTTLMin) * time.Minute
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// Intervals
	if cfg.Intervals.OutboxRelayMS == 0 {
		cfg.Intervals.OutboxRelayMS = 5000
	}
	if cfg.Intervals.QueueDrainMS == 0 {
		cfg.Intervals.QueueDrainMS = 3000
	}
	if cfg.Intervals.ExpirySweepMS == 0 {
		cfg.Intervals.ExpirySweepMS = 30000
	}
	if cfg.Intervals.QueueEntryTTLMin == 0 {
		cfg.Intervals.QueueEntryTTLMin = 10
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.name is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Intervals
	if c.Intervals.OutboxRelayMS < 100 {
		problems = append(problems, "intervals.outbox_relay_ms must be >= 100")
	}
	if c.Intervals.QueueDrainMS < 100 {
		problems = append(problems, "intervals.queue_drain_ms must be >= 100")
	}
	if c.Intervals.ExpirySweepMS < 100 {
		problems = append(problems, "intervals.expiry_sweep_ms must be >= 100")
	}
	if c.Intervals.QueueEntryTTLMin < 1 {
		problems = append(problems, "intervals.queue_entry_ttl_min must be >= 1")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
