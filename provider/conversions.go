package provider

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"

	"oscar/model"
)

// ConvertToOllamaMessages converts model.Message to Ollama api.Message.
// Timestamps are not sent.
func ConvertToOllamaMessages(messages []model.Message) []api.Message {
	result := make([]api.Message, len(messages))
	for i, msg := range messages {
		result[i] = api.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}
	return result
}

// ConvertToOpenAIMessages converts model.Message to OpenAI message params.
// Tool results are sent as user messages because model.Message carries no
// tool call ID.
func ConvertToOpenAIMessages(messages []model.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))

	for i, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			result[i] = openai.SystemMessage(msg.Content)
		case model.RoleAssistant:
			result[i] = openai.AssistantMessage(msg.Content)
		default:
			result[i] = openai.UserMessage(msg.Content)
		}
	}

	return result
}

// ParseToolArguments parses a JSON arguments string into a map.
// Unparseable input yields an empty map.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return make(map[string]any)
	}
	return args
}

// ConvertToProviderToolCalls converts Ollama tool calls to model.ToolRequest.
// Ollama does not assign IDs, so each request gets a fresh one.
//
// Returns nil for nil or empty input.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []model.ToolRequest {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolRequest, len(ollamaCalls))
	for i, call := range ollamaCalls {
		result[i] = withRequestID(model.ToolRequest{
			Name:      call.Function.Name,
			Arguments: map[string]any(call.Function.Arguments),
		})
	}
	return result
}

// ConvertFromProviderToolCalls converts model.ToolRequest to Ollama
// api.ToolCall, used when replaying tool requests to Ollama in tests.
func ConvertFromProviderToolCalls(requests []model.ToolRequest) []api.ToolCall {
	if len(requests) == 0 {
		return nil
	}

	result := make([]api.ToolCall, len(requests))
	for i, call := range requests {
		result[i] = api.ToolCall{
			Function: api.ToolCallFunction{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		}
	}
	return result
}

func withRequestID(req model.ToolRequest) model.ToolRequest {
	if req.ID == "" {
		req.ID = "call_" + uuid.NewString()
	}
	return req
}
