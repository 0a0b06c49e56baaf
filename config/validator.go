package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/ravynsoft/go-dispatch/core"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config key (e.g., "pool.workers")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Validate checks the Config and returns every validation error found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.Pool.Workers < 1 {
		errs = append(errs, ValidationError{"pool.workers", c.Pool.Workers, "must be at least 1"})
	}
	if c.Pool.MaxOvercommit < 0 {
		errs = append(errs, ValidationError{"pool.max_overcommit", c.Pool.MaxOvercommit, "must not be negative"})
	}

	if _, err := core.ParseLogLevel(c.Logging.Level); err != nil {
		errs = append(errs, ValidationError{"logging.level", c.Logging.Level, "is not a known log level"})
	}

	if c.Metrics.Addr != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Addr); err != nil {
			errs = append(errs, ValidationError{"metrics.addr", c.Metrics.Addr, "must be host:port"})
		}
	}
	if c.Metrics.PollInterval <= 0 {
		errs = append(errs, ValidationError{"metrics.poll_interval", c.Metrics.PollInterval, "must be positive"})
	}

	return errs
}
