package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvAPIKey is the environment variable that overrides engine.api_key.
const EnvAPIKey = "SENSEBRIDGE_API_KEY"

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. Useful in tests where configs are
// constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if key := os.Getenv(EnvAPIKey); key != "" {
		cfg.Engine.APIKey = key
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for zero-valued retrieval limits. It returns a joined error
// listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Engine.URL == "" {
		errs = append(errs, errors.New("engine.url is required"))
	} else if u, err := url.Parse(cfg.Engine.URL); err != nil {
		errs = append(errs, fmt.Errorf("engine.url %q is not a valid URL: %v", cfg.Engine.URL, err))
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		errs = append(errs, fmt.Errorf("engine.url scheme %q is invalid; must be ws or wss", u.Scheme))
	}
	if cfg.Engine.APIKey == "" {
		errs = append(errs, fmt.Errorf("engine.api_key is required (or set %s)", EnvAPIKey))
	}
	if cfg.Engine.AppID == "" {
		errs = append(errs, errors.New("engine.app_id is required"))
	}
	if cfg.Engine.RESTURL == "" && cfg.Engine.URL != "" {
		cfg.Engine.RESTURL = deriveRESTURL(cfg.Engine.URL)
	}

	r := &cfg.Retrieval
	if r.PageSize == 0 {
		r.PageSize = DefaultPageSize
	}
	if r.MaxRows == 0 {
		r.MaxRows = DefaultMaxRows
	}
	if r.RequestDelay == 0 {
		r.RequestDelay = Duration(DefaultRequestDelay)
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = DefaultMaxRetries
	}
	if r.RetryDelay == 0 {
		r.RetryDelay = Duration(DefaultRetryDelay)
	}
	if r.Timeout == 0 {
		r.Timeout = Duration(DefaultTimeout)
	}
	if r.PageSize < 0 {
		errs = append(errs, fmt.Errorf("retrieval.page_size must be positive, got %d", r.PageSize))
	}
	if r.MaxRows < 0 {
		errs = append(errs, fmt.Errorf("retrieval.max_rows must be positive, got %d", r.MaxRows))
	}
	if r.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retrieval.max_retries must not be negative, got %d", r.MaxRetries))
	}
	if r.RequestDelay < 0 {
		errs = append(errs, fmt.Errorf("retrieval.request_delay must not be negative, got %s", r.RequestDelay))
	}
	if r.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retrieval.retry_delay must not be negative, got %s", r.RetryDelay))
	}
	if r.Timeout < 0 {
		errs = append(errs, fmt.Errorf("retrieval.timeout must not be negative, got %s", r.Timeout))
	}

	return errors.Join(errs...)
}

// deriveRESTURL maps a websocket engine URL to its https REST counterpart,
// dropping any path component.
func deriveRESTURL(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return ""
	}
	scheme := "https"
	if u.Scheme == "ws" {
		scheme = "http"
	}
	return scheme + "://" + u.Host
}
