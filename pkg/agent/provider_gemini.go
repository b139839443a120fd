package agent

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements LLMProvider for Google Gemini
type GeminiProvider struct {
	client *genai.Client
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiProvider{client: client}, nil
}

// Provider returns the provider name
func (p *GeminiProvider) Provider() string {
	return ProviderGemini
}

// Call makes an API call to Google Gemini
func (p *GeminiProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	system, conversation := splitSystem(request.Messages)

	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if request.Temperature > 0 {
		config.Temperature = genai.Ptr(float32(request.Temperature))
	}
	if request.MaxTokens > 0 {
		config.MaxOutputTokens = int32(request.MaxTokens)
	}
	if len(request.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(request.Tools))
		for _, def := range request.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 def.Name,
				Description:          def.Description,
				ParametersJsonSchema: def.InputSchema,
			})
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	response, err := p.client.Models.GenerateContent(ctx, request.Model, toGeminiContents(conversation), config)
	if err != nil {
		return nil, err
	}
	if len(response.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	out := &LLMResponse{Content: response.Text()}
	for _, fc := range response.FunctionCalls() {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:         fc.ID,
			Name:       fc.Name,
			Parameters: fc.Args,
		})
	}
	if usage := response.UsageMetadata; usage != nil {
		out.Usage = &TokenUsage{
			InputTokens:  int(usage.PromptTokenCount),
			OutputTokens: int(usage.CandidatesTokenCount),
		}
	}

	return out, nil
}

func toGeminiContents(conversation []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(conversation))
	for _, msg := range conversation {
		switch msg.Role {
		case RoleHuman:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: msg.Content.PlainText()}},
			})
		case RoleAssistant:
			parts := []*genai.Part{}
			if text := msg.Content.PlainText(); text != "" {
				parts = append(parts, &genai.Part{Text: text})
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: tc.Parameters,
				}})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case RoleTool:
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.Name,
					Response: map[string]any{"output": msg.Content.PlainText()},
				}}},
			})
		}
	}
	return contents
}
