package config

import (
	"encoding/json"
	"time"

	"github.com/harun/oracle/pkg/agent"
	"github.com/harun/oracle/pkg/backend"
	"github.com/harun/oracle/pkg/limiter"
)

// Config represents the oracle server configuration
type Config struct {
	Server     ServerConfig     `json:"server" mapstructure:"server"`
	Aggregator AggregatorConfig `json:"aggregator" mapstructure:"aggregator"`

	// Backends are the sources exposed to the aggregator as tools
	Backends []backend.Descriptor `json:"backends" mapstructure:"backends"`

	Limiter  LimiterConfig  `json:"limiter" mapstructure:"limiter"`
	Timeouts TimeoutsConfig `json:"timeouts" mapstructure:"timeouts"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`
	Prompts  PromptsConfig  `json:"prompts" mapstructure:"prompts"`

	// Credentials are filled from the environment and never written out
	Credentials Credentials `json:"-" mapstructure:"credentials"`
}

// ServerConfig holds the websocket endpoint settings
type ServerConfig struct {
	Addr              string        `json:"addr" mapstructure:"addr"`
	Path              string        `json:"path" mapstructure:"path"`
	WriteTimeout      time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	MaxMessageBytes   int64         `json:"max_message_bytes" mapstructure:"max_message_bytes"`
	MaxPendingPrompts int           `json:"max_pending_prompts" mapstructure:"max_pending_prompts"`
	PromptsPerMinute  int           `json:"prompts_per_minute" mapstructure:"prompts_per_minute"` // negative disables
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// AggregatorConfig selects the model that combines backend answers
type AggregatorConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"`
	Model       string  `json:"model" mapstructure:"model"`
	MaxSteps    int     `json:"max_steps" mapstructure:"max_steps"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
}

// LimiterConfig holds the per-session permit pool size
type LimiterConfig struct {
	Capacity int `json:"capacity" mapstructure:"capacity"`
}

// TimeoutsConfig holds optional time bounds. Zero means none.
type TimeoutsConfig struct {
	Backend time.Duration `json:"backend" mapstructure:"backend"`
	Answer  time.Duration `json:"answer" mapstructure:"answer"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig selects the span exporter
type TracingConfig struct {
	Exporter    string  `json:"exporter" mapstructure:"exporter"` // none, stdout
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// PromptsConfig holds the instruction texts sent to the models
type PromptsConfig struct {
	// AgentContext is the aggregator's system prompt
	AgentContext string `json:"agent_context" mapstructure:"agent_context"`
	// ToolContext is the system prompt of every backend call
	ToolContext      string `json:"tool_context" mapstructure:"tool_context"`
	BackendMaxTokens int    `json:"backend_max_tokens" mapstructure:"backend_max_tokens"`
}

// Credentials holds one API key per provider
type Credentials struct {
	Anthropic string `mapstructure:"anthropic"`
	OpenAI    string `mapstructure:"openai"`
	Gemini    string `mapstructure:"gemini"`
}

// Agent converts to the provider factory's credential set
func (c Credentials) Agent() agent.Credentials {
	return agent.Credentials{
		Anthropic: c.Anthropic,
		OpenAI:    c.OpenAI,
		Gemini:    c.Gemini,
	}
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8000",
			Path:              "/chat",
			WriteTimeout:      10 * time.Second,
			MaxMessageBytes:   64 * 1024,
			MaxPendingPrompts: 8,
			PromptsPerMinute:  60,
			ShutdownTimeout:   10 * time.Second,
		},
		Aggregator: AggregatorConfig{
			Provider:  agent.ProviderAnthropic,
			Model:     "claude-3-7-sonnet-latest",
			MaxSteps:  10,
			MaxTokens: 8192,
		},
		Backends: DefaultBackends(),
		Limiter:  LimiterConfig{Capacity: limiter.DefaultCapacity},
		Timeouts: TimeoutsConfig{},
		Logging:  LoggingConfig{Level: "info", Pretty: true, Redaction: true},
		Tracing:  TracingConfig{Exporter: "none", SampleRatio: 1},
		Prompts: PromptsConfig{
			AgentContext:     DefaultAgentContext,
			ToolContext:      DefaultToolContext,
			BackendMaxTokens: 4096,
		},
	}
}

// DefaultBackends returns the claude, gpt and gemini sources. Only gpt
// substitutes its failures with text.
func DefaultBackends() []backend.Descriptor {
	return []backend.Descriptor{
		{Name: "claude", Provider: agent.ProviderAnthropic, Model: "claude-3-7-sonnet-latest", FailurePolicy: backend.PolicyPropagate},
		{Name: "gpt", Provider: agent.ProviderOpenAI, Model: "o4-mini", FailurePolicy: backend.PolicySubstitute},
		{Name: "gemini", Provider: agent.ProviderGemini, Model: "gemini-2.5-flash", FailurePolicy: backend.PolicyPropagate},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
