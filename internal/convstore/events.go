// Package convstore implements append-only per-session conversation
// event logs with validation and incremental, crash-resistant
// persistence. Events are a tagged sum type sharing a common embedable
// interface.
package convstore

import (
	"fmt"
	"time"

	"github.com/kylebrodeur/agentmem/internal/errs"
)

// Event is the common interface every conversation event implements:
// a type tag, an embedable text projection, an id, and a creation time.
type Event interface {
	TypeTag() string
	EmbedText() string
	ID() string
	CreatedAt() time.Time
	SessionID() string
	Turn() int
}

// UserMessage is a user prompt within a session turn.
type UserMessage struct {
	Type      string    `json:"type"`
	IDValue   string    `json:"id"`
	Session   string    `json:"session_id"`
	TurnValue int       `json:"turn"`
	Content   string    `json:"content"`
	Topics    []string  `json:"topics,omitempty"`
	Created   time.Time `json:"created_at"`
}

func (m UserMessage) TypeTag() string       { return "user_message" }
func (m UserMessage) EmbedText() string     { return m.Content }
func (m UserMessage) ID() string            { return m.IDValue }
func (m UserMessage) CreatedAt() time.Time  { return m.Created }
func (m UserMessage) SessionID() string     { return m.Session }
func (m UserMessage) Turn() int             { return m.TurnValue }

// AssistantMessage is an assistant reply within a session turn.
type AssistantMessage struct {
	Type      string    `json:"type"`
	IDValue   string    `json:"id"`
	Session   string    `json:"session_id"`
	TurnValue int       `json:"turn"`
	Content   string    `json:"content"`
	TokensIn  *int      `json:"tokens_in,omitempty"`
	TokensOut *int      `json:"tokens_out,omitempty"`
	Model     string    `json:"model,omitempty"`
	Created   time.Time `json:"created_at"`
}

func (m AssistantMessage) TypeTag() string      { return "assistant_message" }
func (m AssistantMessage) EmbedText() string    { return m.Content }
func (m AssistantMessage) ID() string           { return m.IDValue }
func (m AssistantMessage) CreatedAt() time.Time { return m.Created }
func (m AssistantMessage) SessionID() string    { return m.Session }
func (m AssistantMessage) Turn() int            { return m.TurnValue }

// ToolUse is an invocation of a tool (e.g. an editor action) within a
// session turn.
type ToolUse struct {
	Type         string         `json:"type"`
	IDValue      string         `json:"id"`
	Session      string         `json:"session_id"`
	TurnValue    int            `json:"turn"`
	ToolName     string         `json:"tool_name"`
	ToolInput    map[string]any `json:"tool_input"`
	ToolResponse *string        `json:"tool_response,omitempty"`
	LatencyMS    *int           `json:"latency_ms,omitempty"`
	Success      bool           `json:"success"`
	Created      time.Time      `json:"created_at"`
}

func (t ToolUse) TypeTag() string      { return "tool_use" }
func (t ToolUse) ID() string           { return t.IDValue }
func (t ToolUse) CreatedAt() time.Time { return t.Created }
func (t ToolUse) SessionID() string    { return t.Session }
func (t ToolUse) Turn() int            { return t.TurnValue }

// EmbedText renders "<tool_name>: <stringified tool_input> → <tool_response | "">".
// The trailing space after the arrow when tool_response is empty/absent
// is intentional, not a formatting bug — it keeps the separator fixed
// width regardless of whether a response exists.
func (t ToolUse) EmbedText() string {
	resp := ""
	if t.ToolResponse != nil {
		resp = *t.ToolResponse
	}
	return fmt.Sprintf("%s: %s → %s", t.ToolName, stringifyToolInput(t.ToolInput), resp)
}

func validateCommon(sessionID string, turn int) error {
	if sessionID == "" {
		return errs.Wrap("validate", errs.ErrValidation)
	}
	if turn < 1 {
		return errs.Wrap("validate", errs.ErrValidation)
	}
	return nil
}
