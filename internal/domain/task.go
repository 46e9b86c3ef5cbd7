// Package domain holds the data model shared by every pipeline component:
// tasks, their inputs and results, and the progress events they emit.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// TaskKind identifies which workflow a task runs.
type TaskKind string

const (
	KindSmartNote    TaskKind = "smart_note"
	KindMultiSummary TaskKind = "multi_summary"
)

// TaskStatus is the task's lifecycle state. Transitions are monotonic:
// pending -> running -> {completed|failed|cancelled|timed_out}. The four
// right-hand states are terminal and absorbing.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusCancelled TaskStatus = "cancelled"
	StatusTimedOut  TaskStatus = "timed_out"
)

// IsTerminal reports whether status is one of the absorbing states.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// InputKind distinguishes the three submission shapes a Task can carry.
type InputKind string

const (
	InputImage InputKind = "image"
	InputText  InputKind = "text"
	InputNotes InputKind = "notes"
)

// NoteInput is one element of a multi-note submission.
type NoteInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// TaskInput is a tagged union over the three ways a task can be submitted.
// Exactly one of ImageBytes, Text, or Notes is populated, selected by Kind.
type TaskInput struct {
	Kind              InputKind   `json:"kind"`
	Title             string      `json:"title,omitempty"`
	ImageBytes        []byte      `json:"-"`
	Text              string      `json:"text,omitempty"`
	Notes             []NoteInput `json:"notes,omitempty"`
	MinNotesThreshold int         `json:"min_notes_threshold,omitempty"`
}

// Summary is the common shape produced by any summarize() call.
type Summary struct {
	Title           string   `json:"title"`
	Topic           string   `json:"topic"`
	ContentMarkdown string   `json:"content_markdown"`
	Keywords        []string `json:"keywords,omitempty"`
}

// Tag is one AI-suggested tag association.
type Tag struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	IsNew      bool    `json:"is_new"`
}

// SmartNoteResult is the terminal artifact of the Smart-Note Pipeline (4.F).
type SmartNoteResult struct {
	OCRResult       string  `json:"ocr_result,omitempty"`
	CorrectedResult string  `json:"corrected_result"`
	Summary         Summary `json:"summary"`
	ContentID       int64   `json:"content_id"`
	Tags            []Tag   `json:"tags"`
}

// ProcessingMethod records which path the Multi-Note Workflow took.
type ProcessingMethod string

const (
	MethodSingle               ProcessingMethod = "single"
	MethodMultiWorkflow        ProcessingMethod = "multi_workflow"
	MethodMultiWorkflowCorrect ProcessingMethod = "multi_workflow_corrected"
)

// SummaryResult is the terminal artifact of the Multi-Note Workflow (4.G).
type SummaryResult struct {
	Title             string           `json:"title"`
	Topic             string           `json:"topic"`
	ContentMarkdown   string           `json:"content_markdown"`
	ConfidenceScores  []float64        `json:"confidence_scores"`
	ProcessingMethod  ProcessingMethod `json:"processing_method"`
}

// ErrorCode is the error taxonomy surfaced on Task.Error and in SSE error
// events (spec.md §7).
type ErrorCode string

const (
	ErrInvalidInput      ErrorCode = "invalid_input"
	ErrCapacityExceeded  ErrorCode = "capacity_exceeded"
	ErrModelUnavailable  ErrorCode = "model_unavailable"
	ErrTimeout           ErrorCode = "timeout"
	ErrCancelled         ErrorCode = "cancelled"
	ErrPersistenceFailed ErrorCode = "persistence_failed"
	ErrInternal          ErrorCode = "internal"
)

// Task represents one pipeline invocation end to end (spec.md §3).
//
// A Task in a terminal state is immutable except for GC; mutation happens
// only through registry-mediated transitions (see taskregistry.Registry).
type Task struct {
	ID            uuid.UUID              `json:"id"`
	Owner         uuid.UUID              `json:"owner"`
	Kind          TaskKind               `json:"kind"`
	Status        TaskStatus             `json:"status"`
	Progress      int                    `json:"progress"`
	CurrentStep   string                 `json:"current_step"`
	Input         TaskInput              `json:"-"`
	Intermediates map[string]interface{} `json:"intermediates,omitempty"`
	Result        interface{}            `json:"result,omitempty"`
	Error         string                 `json:"error,omitempty"`
	ErrorCode     ErrorCode              `json:"error_code,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	StartedAt     time.Time              `json:"started_at,omitempty"`
	CompletedAt   time.Time              `json:"completed_at,omitempty"`
	Deadline      time.Time              `json:"deadline,omitempty"`
}

// Snapshot returns a deep-enough copy safe to hand to callers outside the
// registry's lock: the Intermediates map is copied one level deep so a
// caller mutating the returned Task cannot corrupt registry state.
func (t Task) Snapshot() Task {
	cp := t
	if t.Intermediates != nil {
		cp.Intermediates = make(map[string]interface{}, len(t.Intermediates))
		for k, v := range t.Intermediates {
			cp.Intermediates[k] = v
		}
	}
	return cp
}
