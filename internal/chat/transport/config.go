package transport

import (
	"errors"
	"time"
)

// Config holds the chat endpoint settings.
type Config struct {
	// Endpoint is the single chat protocol URL (streaming and plain calls).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// CallTimeout bounds non-streaming calls. Streaming requests are bounded
	// only by their context; an open stream has no fixed duration.
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`

	// RetryableStatusCodes lists HTTP statuses whose synthetic error events
	// carry allow_retry=true.
	RetryableStatusCodes []int `mapstructure:"retryable_status_codes" yaml:"retryable_status_codes"`

	// Headers are added to every request (e.g. session tokens).
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return errors.New("transport: endpoint is required")
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if len(c.RetryableStatusCodes) == 0 {
		c.RetryableStatusCodes = DefaultRetryableStatusCodes()
	}
	return nil
}

// DefaultConfig returns a config pointing at the conventional local mount.
func DefaultConfig() *Config {
	return &Config{
		Endpoint:             "http://localhost:8080/chatkit",
		CallTimeout:          30 * time.Second,
		RetryableStatusCodes: DefaultRetryableStatusCodes(),
	}
}

// DefaultRetryableStatusCodes returns the statuses treated as transient.
func DefaultRetryableStatusCodes() []int {
	return []int{408, 429, 500, 502, 503, 504}
}
