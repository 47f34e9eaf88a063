package testutil

import (
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"oscar/model"
)

// BaseHTML is a minimal seed document for tests
const BaseHTML = "<!DOCTYPE html><html><head><title>Base</title></head><body><h1>base</h1></body></html>"

// SingleUserMessage returns a single user message for simple tests
func SingleUserMessage(content string) []model.Message {
	return []model.Message{
		{
			Role:      model.RoleUser,
			Content:   content,
			Timestamp: time.Now(),
		},
	}
}

// TestMCPTools returns a sample tool set shaped like the mockup tools
func TestMCPTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "generate_mockup",
			Description: "Generate HTML mockups from a description",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"prompt": map[string]any{
						"type":        "string",
						"description": "What to design",
					},
					"variants": map[string]any{
						"type": "integer",
						"enum": []any{1, 4},
					},
				},
				Required: []string{"prompt"},
			},
		},
		{
			Name:        "edit_mockup",
			Description: "Edit the current mockup",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"instruction": map[string]any{
						"type":        "string",
						"description": "The change to make",
					},
				},
				Required: []string{"instruction"},
			},
		},
	}
}
