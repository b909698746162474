// internal/config/validate.go
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"bookrec/internal/store"
)

// Validate checks the settings a process cannot start without.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case store.DriverPostgres, store.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("store.driver must be %q or %q, got %q",
			store.DriverPostgres, store.DriverSQLite, c.Store.Driver))
	}
	if strings.TrimSpace(c.Store.DSN) == "" {
		errs = append(errs, errors.New("store.dsn is required"))
	}
	if c.Store.MaxOpenConns < 1 {
		errs = append(errs, errors.New("store.max_open_conns must be positive"))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format))
	}

	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sample_ratio %v not in [0,1]", c.Telemetry.SampleRatio))
	}

	if c.Membership.RateLimitPerMinute < 0 || c.Membership.RateLimitBurst < 0 {
		errs = append(errs, errors.New("membership rate limits cannot be negative"))
	}
	// A zero burst limiter admits nothing.
	if c.Membership.RateLimitPerMinute > 0 && c.Membership.RateLimitBurst < 1 {
		errs = append(errs, errors.New("membership.rate_limit_burst must be at least 1 when rate_limit_per_minute is set"))
	}
	if c.Recommend.Limit < 1 {
		errs = append(errs, errors.New("recommend.limit must be positive"))
	}

	if c.Client.BaseURL != "" {
		if u, err := url.Parse(c.Client.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("client.base_url %q is not an absolute URL", c.Client.BaseURL))
		}
	}

	return errors.Join(errs...)
}
