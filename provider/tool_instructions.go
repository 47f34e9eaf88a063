package provider

import (
	"strings"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// buildToolInstructions creates the system preamble sent with tool-enabled
// requests. The agent is talking to a designer, so it should act rather than
// describe what it could do.
func buildToolInstructions(tools []mcptypes.Tool) string {
	toolNames := make([]string, 0, len(tools))
	for _, tool := range tools {
		toolNames = append(toolNames, tool.Name)
	}

	return strings.Join([]string{
		"TOOLS: " + strings.Join(toolNames, ", "),
		"",
		"When the user describes a UI they want to see or change:",
		"1. Pick the tool that matches (new design, change to the current design, quick prototype)",
		"2. If the request is clear: call the tool IMMEDIATELY",
		"3. If the request is too vague to design anything: ask ONE short question",
		"",
		"Ask for 4 variants only when the user wants options to compare.",
		"After a tool returns, reply in one or two spoken-style sentences.",
		"",
		"DO NOT:",
		"- List available tools",
		"- Paste HTML into the conversation",
		"- Explain what you're about to do",
	}, "\n")
}
