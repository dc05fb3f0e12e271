// Package config provides configuration for the treebus server.
package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime options. Values come from defaults, then
// environment variables, then command-line flags.
type Config struct {
	// Server configuration
	Port   string
	Host   string
	WSPath string

	// Broker configuration
	QueueKind        string // "fifo" or "bucket"
	DefaultQueueSize int

	// Bridge configuration
	PullTimeout  time.Duration // WS pump poll interval
	CallTimeout  time.Duration // default request/response wait
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// Observability configuration
	MetricsEnabled bool
	LogLevel       string
	LogDevelopment bool
}

// QueueKindFIFO and QueueKindBucket are the accepted QueueKind values.
const (
	QueueKindFIFO   = "fifo"
	QueueKindBucket = "bucket"
)

// NewConfig creates a configuration from defaults and the environment.
func NewConfig() *Config {
	return &Config{
		Port:             getEnv("PORT", "8080"),
		Host:             getEnv("HOST", "0.0.0.0"),
		WSPath:           getEnv("WS_PATH", "/ws"),
		QueueKind:        getEnv("QUEUE_KIND", QueueKindBucket),
		DefaultQueueSize: getEnvAsInt("DEFAULT_QUEUE_SIZE", 64),
		PullTimeout:      getEnvAsDuration("PULL_TIMEOUT", 250*time.Millisecond),
		CallTimeout:      getEnvAsDuration("CALL_TIMEOUT", 5*time.Second),
		WriteTimeout:     getEnvAsDuration("WRITE_TIMEOUT", 30*time.Second),
		ReadTimeout:      getEnvAsDuration("READ_TIMEOUT", 60*time.Second),
		MetricsEnabled:   getEnvAsBool("METRICS_ENABLED", true),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogDevelopment:   getEnvAsBool("LOG_DEVELOPMENT", false),
	}
}

// ParseFlags parses command-line flags over the current values.
func (c *Config) ParseFlags() {
	flag.StringVar(&c.Port, "port", c.Port, "HTTP server port")
	flag.StringVar(&c.Host, "host", c.Host, "HTTP server host")
	flag.StringVar(&c.WSPath, "ws-path", c.WSPath, "WebSocket endpoint path")
	flag.StringVar(&c.QueueKind, "queue-kind", c.QueueKind, "Subscriber queue variant (fifo, bucket)")
	flag.IntVar(&c.DefaultQueueSize, "queue-size", c.DefaultQueueSize, "Default subscriber queue capacity")
	flag.DurationVar(&c.PullTimeout, "pull-timeout", c.PullTimeout, "WebSocket pump poll interval")
	flag.DurationVar(&c.CallTimeout, "call-timeout", c.CallTimeout, "Default call timeout")
	flag.DurationVar(&c.WriteTimeout, "write-timeout", c.WriteTimeout, "WebSocket write timeout")
	flag.DurationVar(&c.ReadTimeout, "read-timeout", c.ReadTimeout, "WebSocket read timeout")
	flag.BoolVar(&c.MetricsEnabled, "metrics", c.MetricsEnabled, "Expose Prometheus metrics")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")
	flag.BoolVar(&c.LogDevelopment, "log-dev", c.LogDevelopment, "Development logger output")

	flag.Parse()
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean or returns a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
