package aggregator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/oracle/pkg/agent"
)

// Tool is a capability the reasoning loop may call with a single prompt.
type Tool interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, prompt string) (string, error)
}

var (
	promptSchemaOnce sync.Once
	promptSchema     *gojsonschema.Schema
	promptSchemaErr  error
)

// PromptInputSchema is the argument schema shared by every tool.
func PromptInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"prompt": map[string]interface{}{
				"type":        "string",
				"description": "The question to forward, self-contained.",
			},
		},
		"required": []string{"prompt"},
	}
}

func compiledPromptSchema() (*gojsonschema.Schema, error) {
	promptSchemaOnce.Do(func() {
		promptSchema, promptSchemaErr = gojsonschema.NewSchema(gojsonschema.NewGoLoader(PromptInputSchema()))
	})
	return promptSchema, promptSchemaErr
}

// validateArguments checks tool arguments against the prompt schema and
// returns the prompt.
func validateArguments(params map[string]interface{}) (string, error) {
	schema, err := compiledPromptSchema()
	if err != nil {
		return "", fmt.Errorf("compile schema: %w", err)
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return "", err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return "", fmt.Errorf("validation errors: %s", strings.Join(msgs, "; "))
	}

	prompt, _ := params["prompt"].(string)
	return prompt, nil
}

func toolDefinitions(tools []Tool) []agent.ToolDefinition {
	defs := make([]agent.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, agent.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: PromptInputSchema(),
		})
	}
	return defs
}
