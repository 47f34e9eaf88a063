package model

import "time"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message represents a chat message sent to or received from a provider.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
}
