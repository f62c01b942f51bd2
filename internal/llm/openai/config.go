package openai

import (
	"os"
	"time"
)

// Config for the OpenAI-compatible completion client.
type Config struct {
	APIKey      string        // if empty, falls back to env OPENAI_API_KEY
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g. "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // per-request http timeout

	// CharBudget bounds the extracted text sent upstream; text over budget
	// is truncated at a word boundary and reported as a warning.
	CharBudget int

	// MaxParseAttempts bounds re-asks after non-conformant generations.
	MaxParseAttempts int
	// MaxUpstreamAttempts bounds requests per completion call when the
	// service is unreachable (timeouts, rate limits, 5xx).
	MaxUpstreamAttempts int
	// BackoffInitial/BackoffMax shape the exponential backoff between
	// upstream attempts.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

func (c Config) withDefaults() Config {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	if c.CharBudget <= 0 {
		c.CharBudget = 12000
	}
	if c.MaxParseAttempts <= 0 {
		c.MaxParseAttempts = 3
	}
	if c.MaxUpstreamAttempts <= 0 {
		c.MaxUpstreamAttempts = 4
	}
	if c.BackoffInitial <= 0 {
		c.BackoffInitial = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 8 * time.Second
	}
	return c
}
