package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ORACLE_SERVER_ADDR
const EnvPrefix = "ORACLE"

// credentialEnv lists the variables read per provider, first match wins
var credentialEnv = map[string][]string{
	"anthropic": {"CLAUDE_API_KEY", "ANTHROPIC_API_KEY"},
	"openai":    {"GPT_API_KEY", "OPENAI_API_KEY"},
	"gemini":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a new config loader. Both paths are optional.
func NewLoader(configPath, envFile string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    envFile,
	}
}

// Load reads the .env file, the JSON config file and ORACLE_* overrides
// on top of DefaultConfig.
func (l *Loader) Load() (*Config, error) {
	if err := l.loadEnvFile(); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if l.configPath != "" {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
	}

	cfg := DefaultConfig()
	if v.IsSet("backends") {
		cfg.Backends = nil
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Credentials = mergeCredentials(cfg.Credentials, credentialsFromEnv())

	return cfg, nil
}

func (l *Loader) loadEnvFile() error {
	path := l.envFile
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && l.envFile == "" {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".oracle", "oracle.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath, envFile string) (*Config, error) {
	return NewLoader(configPath, envFile).Load()
}

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.path", d.Server.Path)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.max_message_bytes", d.Server.MaxMessageBytes)
	v.SetDefault("server.max_pending_prompts", d.Server.MaxPendingPrompts)
	v.SetDefault("server.prompts_per_minute", d.Server.PromptsPerMinute)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("aggregator.provider", d.Aggregator.Provider)
	v.SetDefault("aggregator.model", d.Aggregator.Model)
	v.SetDefault("aggregator.max_steps", d.Aggregator.MaxSteps)
	v.SetDefault("aggregator.max_tokens", d.Aggregator.MaxTokens)
	v.SetDefault("aggregator.temperature", d.Aggregator.Temperature)

	v.SetDefault("limiter.capacity", d.Limiter.Capacity)
	v.SetDefault("timeouts.backend", d.Timeouts.Backend)
	v.SetDefault("timeouts.answer", d.Timeouts.Answer)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.redaction", d.Logging.Redaction)

	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)

	v.SetDefault("prompts.agent_context", d.Prompts.AgentContext)
	v.SetDefault("prompts.tool_context", d.Prompts.ToolContext)
	v.SetDefault("prompts.backend_max_tokens", d.Prompts.BackendMaxTokens)
}

func credentialsFromEnv() Credentials {
	return Credentials{
		Anthropic: firstEnv(credentialEnv["anthropic"]...),
		OpenAI:    firstEnv(credentialEnv["openai"]...),
		Gemini:    firstEnv(credentialEnv["gemini"]...),
	}
}

func mergeCredentials(file, env Credentials) Credentials {
	if env.Anthropic != "" {
		file.Anthropic = env.Anthropic
	}
	if env.OpenAI != "" {
		file.OpenAI = env.OpenAI
	}
	if env.Gemini != "" {
		file.Gemini = env.Gemini
	}
	return file
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if val := strings.TrimSpace(os.Getenv(k)); val != "" {
			return val
		}
	}
	return ""
}
