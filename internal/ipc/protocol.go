// Package ipc implements the Unix-socket tool-dispatch protocol between the
// attendctl CLI and the serve-mode daemon. Messages are newline-free JSON
// documents, one request and one response per connection.
package ipc

// MessageType represents the type of IPC message
type MessageType string

const (
	// MessageTypeToolRequest is sent from the CLI to the daemon
	MessageTypeToolRequest MessageType = "tool_request"
	// MessageTypeToolResponse is sent from the daemon back to the CLI
	MessageTypeToolResponse MessageType = "tool_response"
)

// Tool names the operations the daemon dispatches.
type Tool string

const (
	ToolApplyCOA Tool = "apply_coa"
	ToolClockIn  Tool = "clock_in"
	ToolClockOut Tool = "clock_out"
)

// KnownTool reports whether t is a dispatchable tool.
func KnownTool(t Tool) bool {
	switch t {
	case ToolApplyCOA, ToolClockIn, ToolClockOut:
		return true
	}
	return false
}

// ToolRequest is one tool invocation. Credentials never travel over IPC;
// the daemon holds its own.
type ToolRequest struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id"`
	Tool      Tool        `json:"tool"`

	// Arguments; which ones apply depends on the tool. Dates are
	// YYYY-MM-DD, times HH:MM. clock_in/clock_out default empty date and
	// time to "now" on the daemon side.
	Date     string `json:"date,omitempty"`
	TimeIn   string `json:"time_in,omitempty"`
	TimeOut  string `json:"time_out,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Category string `json:"category,omitempty"`
}

// ToolResponse is the daemon's reply to one request.
type ToolResponse struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"request_id,omitempty"`
	Status    string      `json:"status"` // "ok", "rejected", or "error"
	Message   string      `json:"message,omitempty"`
}

// Response status constants
const (
	StatusOK       = "ok"       // the portal accepted the submission
	StatusRejected = "rejected" // the portal refused it
	StatusError    = "error"    // the request never completed
)
