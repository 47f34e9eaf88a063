package state

import (
	"strings"
	"time"
)

// Role identifies who produced a transcript line
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// RoleFromSource maps a voice transport source label to a transcript role.
// Only "user" is a user; everything else the agent said.
func RoleFromSource(source string) Role {
	if source == string(RoleUser) {
		return RoleUser
	}
	return RoleAgent
}

// ToolStatus is the lifecycle state of a ToolCall
type ToolStatus string

const (
	StatusPending ToolStatus = "pending"
	StatusSuccess ToolStatus = "success"
	StatusError   ToolStatus = "error"
)

// ViewMode selects how the canvas is presented
type ViewMode string

const (
	ViewSingle   ViewMode = "single"
	ViewQuadrant ViewMode = "quadrant"
)

// Toggle returns the other view mode
func (m ViewMode) Toggle() ViewMode {
	if m == ViewQuadrant {
		return ViewSingle
	}
	return ViewQuadrant
}

// ModeForCount picks quadrant for exactly four documents, single otherwise
func ModeForCount(n int) ViewMode {
	if n == QuadrantSlots {
		return ViewQuadrant
	}
	return ViewSingle
}

// QuadrantSlots is the number of slots shown in the grid view
const QuadrantSlots = 4

// TranscriptMessage is one utterance relayed from the voice session
type TranscriptMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolCall records one tool invocation by the agent
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params"`
	Result    string         `json:"result,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Status    ToolStatus     `json:"status"`
}

// Canvas is the ordered set of HTML documents currently shown
type Canvas []string

// Padded returns exactly QuadrantSlots entries, absent slots empty.
// The receiver is not modified.
func (c Canvas) Padded() []string {
	out := make([]string, QuadrantSlots)
	copy(out, c)
	return out
}

// First returns the first document. A blank first slot counts as no
// document.
func (c Canvas) First() (string, bool) {
	if len(c) == 0 || strings.TrimSpace(c[0]) == "" {
		return "", false
	}
	return c[0], true
}

// Snapshot is a point-in-time deep copy of the view state
type Snapshot struct {
	Transcript []TranscriptMessage `json:"transcript"`
	ToolCalls  []ToolCall          `json:"tool_calls"`
	Canvas     Canvas              `json:"canvas"`
	ViewMode   ViewMode            `json:"view_mode"`
}

// Ticket is taken by a canvas-writing call when it starts
type Ticket struct {
	Issue uint64
	// Epoch is zero when the call was issued outside a voice session
	Epoch uint64
}

// ApplyOutcome reports what ApplyCanvas did with a result
type ApplyOutcome int

const (
	Applied ApplyOutcome = iota
	// Superseded means a later-issued call already replaced the canvas
	Superseded
	// SessionEnded means the session that issued the call is gone
	SessionEnded
)

func (o ApplyOutcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Superseded:
		return "superseded"
	case SessionEnded:
		return "session_ended"
	default:
		return "unknown"
	}
}
