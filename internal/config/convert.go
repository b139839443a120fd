package config

import (
	"github.com/rs/zerolog"

	"github.com/harun/oracle/internal/logger"
	"github.com/harun/oracle/internal/tracing"
	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/backend"
	"github.com/harun/oracle/pkg/gateway"
	"github.com/harun/oracle/pkg/session"
)

// LoggerConfig maps the logging section onto the logger package
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:     c.Logging.Level,
		File:      c.Logging.File,
		Console:   true,
		Pretty:    c.Logging.Pretty,
		Redaction: c.Logging.Redaction,
	}
}

// TracingConfig maps the tracing section onto the tracing package
func (c *Config) TracingConfig() tracing.Config {
	return tracing.Config{
		ServiceName: "oracle",
		Exporter:    c.Tracing.Exporter,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// SessionConfig builds the settings every chat session is created from.
func (c *Config) SessionConfig(providers agent.ProviderCreator, log zerolog.Logger) session.Config {
	backends := make([]backend.Descriptor, len(c.Backends))
	copy(backends, c.Backends)

	return session.Config{
		Aggregator: session.AggregatorConfig{
			Provider:     c.Aggregator.Provider,
			Model:        c.Aggregator.Model,
			SystemPrompt: c.Prompts.AgentContext,
			MaxSteps:     c.Aggregator.MaxSteps,
			MaxTokens:    c.Aggregator.MaxTokens,
			Temperature:  c.Aggregator.Temperature,
		},
		Backends:         backends,
		LimiterCapacity:  c.Limiter.Capacity,
		ToolContext:      c.Prompts.ToolContext,
		BackendTimeout:   c.Timeouts.Backend,
		BackendMaxTokens: c.Prompts.BackendMaxTokens,
		AnswerTimeout:    c.Timeouts.Answer,
		Providers:        providers,
		Logger:           log,
	}
}

// GatewayConfig builds the websocket server settings
func (c *Config) GatewayConfig(sessions *session.Manager, log zerolog.Logger) gateway.Config {
	return gateway.Config{
		Addr:              c.Server.Addr,
		Path:              c.Server.Path,
		Sessions:          sessions,
		WriteTimeout:      c.Server.WriteTimeout,
		MaxMessageBytes:   c.Server.MaxMessageBytes,
		MaxPendingPrompts: c.Server.MaxPendingPrompts,
		PromptsPerMinute:  c.Server.PromptsPerMinute,
		Logger:            log,
	}
}
