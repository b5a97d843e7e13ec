package config

import (
	"errors"
	"fmt"
	"slices"
)

// OutputFormats are the accepted values of output.
var OutputFormats = []string{"auto", "table", "json", "yaml", "mermaid"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path is required"))
	}
	for _, f := range []struct {
		key string
		val int
	}{
		{"log_cap", c.LogCap},
		{"max_result_rows", c.MaxResultRows},
		{"message_limit", c.MessageLimit},
	} {
		if f.val <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.key, f.val))
		}
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.BackoffBase <= 0 {
		errs = append(errs, fmt.Errorf("backoff_base must be positive, got %s", c.BackoffBase))
	}
	if !slices.Contains(OutputFormats, c.OutputFormat) {
		errs = append(errs, fmt.Errorf("output must be one of %v, got %q", OutputFormats, c.OutputFormat))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
