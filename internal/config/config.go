// Package config provides the configuration schema and loader for the
// sensebridge server.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps [time.Duration] with YAML decoding of Go duration strings
// (e.g. "250ms", "2s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"250ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped [time.Duration].
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration in [time.Duration] notation.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// LogLevel controls log verbosity for the sensebridge server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Default retrieval limits applied by [Validate] when the corresponding
// fields are zero.
const (
	DefaultPageSize     = 1000
	DefaultMaxRows      = 10000
	DefaultRequestDelay = 100 * time.Millisecond
	DefaultMaxRetries   = 3
	DefaultRetryDelay   = 1 * time.Second
	DefaultTimeout      = 5 * time.Minute
)

// Config is the root configuration structure for sensebridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Engine    EngineConfig    `yaml:"engine"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
}

// ServerConfig holds logging and observability settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Defaults to "info".
	LogLevel LogLevel `yaml:"log_level"`

	// MetricsAddr is the TCP address the Prometheus /metrics endpoint
	// listens on (e.g., ":9090"). Leave empty to disable the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`
}

// EngineConfig holds connection settings for the remote analytics engine.
type EngineConfig struct {
	// URL is the websocket endpoint of the engine (e.g.,
	// "wss://tenant.example.com/app"). Required.
	URL string `yaml:"url"`

	// RESTURL is the base URL of the platform's REST API, used for the app
	// catalogue. When empty it is derived from URL by swapping the scheme
	// to https.
	RESTURL string `yaml:"rest_url"`

	// APIKey authenticates every engine and REST call. Required. May also
	// be supplied via the SENSEBRIDGE_API_KEY environment variable, which
	// takes precedence over the file value.
	APIKey string `yaml:"api_key"`

	// AppID is the default application opened when a tool call does not
	// name one. Required.
	AppID string `yaml:"app_id"`
}

// RetrievalConfig bounds the chunked data retrieval engine. The values are
// fixed at startup; individual tool calls may override the row limits per
// invocation.
type RetrievalConfig struct {
	// PageSize is the maximum number of rows requested per hypercube page.
	PageSize int `yaml:"page_size"`

	// MaxRows caps the total number of rows retrieved for one chart.
	MaxRows int `yaml:"max_rows"`

	// RequestDelay is the fixed pacing delay between consecutive page
	// requests within one retrieval.
	RequestDelay Duration `yaml:"request_delay"`

	// MaxRetries is the number of retries (beyond the first attempt)
	// granted to each remote call.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelay is the initial backoff delay; it doubles on every retry.
	RetryDelay Duration `yaml:"retry_delay"`

	// Timeout is the wall-clock bound on one complete chart retrieval,
	// covering all pages, pacing delays and backoff.
	Timeout Duration `yaml:"timeout"`
}
