package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agent"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server path %q must start with /", c.Server.Path)
	}

	if err := validateProvider(c.Aggregator.Provider); err != nil {
		return fmt.Errorf("aggregator: %w", err)
	}
	if strings.TrimSpace(c.Aggregator.Model) == "" {
		return fmt.Errorf("aggregator: model is required")
	}
	if c.Aggregator.MaxSteps < 0 {
		return fmt.Errorf("aggregator: max_steps must not be negative")
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("at least one backend must be configured")
	}
	seen := make(map[string]bool, len(c.Backends))
	for i, d := range c.Backends {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("backend %d: %w", i, err)
		}
		if seen[d.Name] {
			return fmt.Errorf("backend %d: duplicate name %q", i, d.Name)
		}
		seen[d.Name] = true
	}

	if c.Limiter.Capacity < 1 {
		return fmt.Errorf("limiter capacity must be positive, got %d", c.Limiter.Capacity)
	}
	if c.Timeouts.Backend < 0 || c.Timeouts.Answer < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}

	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("invalid log level %q", c.Logging.Level)
		}
	}

	switch strings.ToLower(c.Tracing.Exporter) {
	case "", tracing.ExporterNone, tracing.ExporterStdout:
	default:
		return fmt.Errorf("invalid trace exporter %q (must be: none, stdout)", c.Tracing.Exporter)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing sample_ratio must be between 0 and 1")
	}

	return c.validateCredentials()
}

// validateCredentials requires a key for every provider in use
func (c *Config) validateCredentials() error {
	creds := c.Credentials.Agent()
	for _, p := range c.Providers() {
		if creds.Key(p) == "" {
			return fmt.Errorf("no API key configured for provider %s (set %s)", p, strings.Join(credentialEnv[p], " or "))
		}
	}
	return nil
}

// Providers returns the normalized providers used by the aggregator and
// backends, in first-use order.
func (c *Config) Providers() []string {
	var out []string
	seen := map[string]bool{}
	add := func(p string) {
		p = agent.NormalizeProvider(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(c.Aggregator.Provider)
	for _, d := range c.Backends {
		add(d.Provider)
	}
	return out
}

func validateProvider(p string) error {
	switch agent.NormalizeProvider(p) {
	case agent.ProviderAnthropic, agent.ProviderOpenAI, agent.ProviderGemini:
		return nil
	default:
		return fmt.Errorf("invalid provider %q (must be: anthropic, openai, gemini)", p)
	}
}
