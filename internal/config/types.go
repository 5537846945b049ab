package config

import "time"

// Config holds all configuration for the thor client engine.
type Config struct {
	Client      ClientConfig      `yaml:"client"`
	Logging     LoggingConfig     `yaml:"logging"`
	Engineering EngineeringConfig `yaml:"engineering"`
}

// ClientConfig mirrors the tunables of client.Client / pool.Pool.
type ClientConfig struct {
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	RetryLimit        int           `yaml:"retry_limit"`
	RetryDelay        time.Duration `yaml:"retry_delay"`
	StreamBufferSize  int           `yaml:"stream_buffer_size"`
	CircuitThreshold  int           `yaml:"circuit_failure_threshold"`
	CircuitResetAfter time.Duration `yaml:"circuit_reset_after"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Theme  string `yaml:"theme"`
}

// EngineeringConfig holds development/debugging configuration.
type EngineeringConfig struct {
	ShowNerdStats bool `yaml:"show_nerdstats"`
	Profile       bool `yaml:"profile"`
}
