package agent

import (
	"context"
	"fmt"
	"strings"
)

// Provider identifiers
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
)

// NormalizeProvider maps accepted aliases onto canonical identifiers.
func NormalizeProvider(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "anthropic", "claude":
		return ProviderAnthropic
	case "openai", "gpt":
		return ProviderOpenAI
	case "gemini", "google", "google_genai":
		return ProviderGemini
	default:
		return strings.ToLower(strings.TrimSpace(name))
	}
}

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes a blocking LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model       string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content   string
	Reasoning string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// Credentials holds API keys per provider. Loaded once at startup.
type Credentials struct {
	Anthropic string
	OpenAI    string
	Gemini    string
}

// Key returns the API key for a provider.
func (c Credentials) Key(provider string) string {
	switch NormalizeProvider(provider) {
	case ProviderAnthropic:
		return c.Anthropic
	case ProviderOpenAI:
		return c.OpenAI
	case ProviderGemini:
		return c.Gemini
	default:
		return ""
	}
}

// ProviderCreator creates LLM providers by identifier.
type ProviderCreator interface {
	NewProvider(ctx context.Context, provider string) (LLMProvider, error)
}

// ProviderFactory creates LLM providers from static credentials
type ProviderFactory struct {
	Credentials Credentials
}

// NewProvider creates a new LLM provider for the given identifier
func (f *ProviderFactory) NewProvider(ctx context.Context, provider string) (LLMProvider, error) {
	name := NormalizeProvider(provider)
	key := f.Credentials.Key(name)

	switch name {
	case ProviderAnthropic, ProviderOpenAI, ProviderGemini:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	if key == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredentials, name)
	}

	switch name {
	case ProviderAnthropic:
		return NewAnthropicProvider(key), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(key), nil
	default:
		return NewGeminiProvider(ctx, key)
	}
}

// splitSystem pulls system messages out of the conversation; every provider
// carries system instructions out of band.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if text := msg.Content.PlainText(); text != "" {
				system = append(system, text)
			}
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}
