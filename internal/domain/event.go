package domain

import "github.com/google/uuid"

// EventType discriminates the ProgressEvent union (spec.md §3).
type EventType string

const (
	EventStatus       EventType = "status"
	EventIntermediate EventType = "intermediate"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// ProgressEvent is one message on a task's event bus. Only the field(s)
// matching Type are populated; the rest are zero.
type ProgressEvent struct {
	Type EventType `json:"type"`
	TaskID uuid.UUID `json:"task_id"`

	// EventStatus
	Progress    int        `json:"progress,omitempty"`
	CurrentStep string     `json:"current_step,omitempty"`
	Status      TaskStatus `json:"status,omitempty"`

	// EventIntermediate
	Stage   string      `json:"stage,omitempty"`
	Payload interface{} `json:"payload,omitempty"`

	// EventComplete
	Result interface{} `json:"result,omitempty"`

	// EventError
	Error     string    `json:"error,omitempty"`
	ErrorCode ErrorCode `json:"error_code,omitempty"`
}

// StatusEvent constructs an EventStatus snapshot event.
func StatusEvent(taskID uuid.UUID, progress int, step string, status TaskStatus) ProgressEvent {
	return ProgressEvent{Type: EventStatus, TaskID: taskID, Progress: progress, CurrentStep: step, Status: status}
}

// IntermediateEvent constructs an EventIntermediate event carrying a stage's
// just-produced artifact.
func IntermediateEvent(taskID uuid.UUID, stage string, payload interface{}) ProgressEvent {
	return ProgressEvent{Type: EventIntermediate, TaskID: taskID, Stage: stage, Payload: payload}
}

// CompleteEvent constructs the terminal EventComplete event.
func CompleteEvent(taskID uuid.UUID, result interface{}) ProgressEvent {
	return ProgressEvent{Type: EventComplete, TaskID: taskID, Result: result}
}

// ErrorEvent constructs the terminal EventError event.
func ErrorEvent(taskID uuid.UUID, code ErrorCode, msg string) ProgressEvent {
	return ProgressEvent{Type: EventError, TaskID: taskID, Error: msg, ErrorCode: code}
}

// IsTerminal reports whether this event ends the stream.
func (e ProgressEvent) IsTerminal() bool {
	return e.Type == EventComplete || e.Type == EventError
}
