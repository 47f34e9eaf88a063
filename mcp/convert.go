// Package mcp exposes the mockup tools over the Model Context Protocol and
// converts mcp-go tool definitions into each provider's tool format.
package mcp

import (
	"encoding/json"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

// ToOllamaTools converts tool definitions to Ollama's function tools
func ToOllamaTools(tools []mcptypes.Tool) []api.Tool {
	out := make([]api.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  ollamaParameters(tool.InputSchema),
			},
		})
	}
	return out
}

func ollamaParameters(schema mcptypes.ToolInputSchema) api.ToolFunctionParameters {
	params := api.ToolFunctionParameters{
		Type:       schema.Type,
		Required:   schema.Required,
		Properties: make(map[string]api.ToolProperty, len(schema.Properties)),
	}
	if schema.Defs != nil {
		params.Defs = schema.Defs
	}
	for name, prop := range schema.Properties {
		params.Properties[name] = ollamaProperty(prop)
	}
	return params
}

// ollamaProperty maps one JSON schema property. Values that are not plain
// maps go through a JSON round trip first.
func ollamaProperty(value any) api.ToolProperty {
	var prop api.ToolProperty

	m, ok := value.(map[string]any)
	if !ok {
		raw, err := json.Marshal(value)
		if err != nil {
			return prop
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return prop
		}
	}

	switch t := m["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []string:
		prop.Type = api.PropertyType(t)
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		prop.Type = api.PropertyType(types)
	}

	if desc, ok := m["description"].(string); ok {
		prop.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	if anyOf, ok := m["anyOf"].([]any); ok {
		prop.AnyOf = make([]api.ToolProperty, 0, len(anyOf))
		for _, item := range anyOf {
			prop.AnyOf = append(prop.AnyOf, ollamaProperty(item))
		}
	}
	return prop
}

// ToOpenAITools converts tool definitions to chat completion function tools.
// OpenRouter and Gemini's OpenAI endpoint take the same shape.
func ToOpenAITools(tools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		params := openai.FunctionParameters{
			"type":       tool.InputSchema.Type,
			"properties": tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			params["required"] = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			params["$defs"] = tool.InputSchema.Defs
		}

		out[i] = openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        tool.Name,
			Description: openai.String(tool.Description),
			Parameters:  params,
		})
	}
	return out
}

// ToAnthropicTools converts tool definitions to Anthropic tool params
func ToAnthropicTools(tools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	out := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		// type defaults to "object"
		schema := anthropic.ToolInputSchemaParam{
			Properties: tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			schema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			schema.ExtraFields = map[string]any{"$defs": tool.InputSchema.Defs}
		}

		out[i] = anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if tool.Description != "" {
			out[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return out
}
