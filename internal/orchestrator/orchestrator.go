// Package orchestrator ties the Task Registry, Concurrency Gate,
// Smart-Note Pipeline, and Multi-Note Workflow together behind the
// submit/get/list/cancel operations spec.md §6 describes as the system's
// external interface (the HTTP routing in front of them is out of scope,
// per spec.md §1).
package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/eventbus"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/gate"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/multinote"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/smartnote"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taskregistry"
)

// Orchestrator is the single entry point callers submit tasks through.
type Orchestrator struct {
	registry     *taskregistry.Registry
	bus          *eventbus.Bus
	gate         *gate.Gate
	smartNote    *smartnote.Pipeline
	multiNote    *multinote.Workflow
	taskTimeout  time.Duration
}

// New builds an Orchestrator from its wired collaborators.
func New(registry *taskregistry.Registry, bus *eventbus.Bus, g *gate.Gate, sn *smartnote.Pipeline, mn *multinote.Workflow, taskTimeout time.Duration) *Orchestrator {
	return &Orchestrator{registry: registry, bus: bus, gate: g, smartNote: sn, multiNote: mn, taskTimeout: taskTimeout}
}

// SubmitSmartNote creates a Smart-Note task for owner and starts it
// asynchronously, returning its initial snapshot.
func (o *Orchestrator) SubmitSmartNote(ctx context.Context, owner uuid.UUID, input domain.TaskInput) domain.Task {
	return o.submit(ctx, domain.KindSmartNote, owner, input, o.smartNote.Run)
}

// SubmitMultiNote creates a Multi-Note task for owner and starts it
// asynchronously, returning its initial snapshot.
func (o *Orchestrator) SubmitMultiNote(ctx context.Context, owner uuid.UUID, input domain.TaskInput) domain.Task {
	return o.submit(ctx, domain.KindMultiSummary, owner, input, o.multiNote.Run)
}

func (o *Orchestrator) submit(ctx context.Context, kind domain.TaskKind, owner uuid.UUID, input domain.TaskInput, run func(context.Context, domain.Task) error) domain.Task {
	deadline := time.Now().Add(o.taskTimeout)
	task := o.registry.Create(kind, owner, input, deadline)

	runCtx, cancel := context.WithDeadline(context.Background(), deadline)
	// Bound to the task before the goroutine starts, so a Cancel call that
	// lands before the goroutine even runs its first checkCancelled still
	// stops it at the next check instead of racing to set this up.
	o.registry.BindCancel(task.ID, cancel)

	go o.execute(task, run, runCtx, cancel)

	return task
}

func (o *Orchestrator) execute(task domain.Task, run func(context.Context, domain.Task) error, runCtx context.Context, cancel context.CancelFunc) {
	defer cancel()

	release, err := o.gate.Acquire(runCtx)
	if err != nil {
		o.registry.Fail(task.ID, domain.CodeOf(err), err.Error())
		return
	}
	defer release()

	if err := run(runCtx, task); err != nil {
		code := domain.ErrCancelled
		if runCtx.Err() == context.DeadlineExceeded {
			code = domain.ErrTimeout
		}
		// Fail is a no-op if the task already reached a terminal state —
		// either the pipeline registered its own (model error, invalid
		// input, ...) or an explicit Cancel won the race — so this never
		// clobbers an already-terminal task or publishes a second terminal
		// event.
		o.registry.Fail(task.ID, code, "task ended without registering a terminal state: "+err.Error())
	}
}

// Get returns a snapshot of a task, scoped by owner so one user can't read
// another's task state.
func (o *Orchestrator) Get(owner, taskID uuid.UUID) (domain.Task, bool) {
	task, ok := o.registry.Get(taskID)
	if !ok || task.Owner != owner {
		return domain.Task{}, false
	}
	return task, true
}

// List returns every task owned by owner.
func (o *Orchestrator) List(owner uuid.UUID) []domain.Task {
	return o.registry.List(owner)
}

// Cancel cancels a task if owned by owner and not already terminal.
func (o *Orchestrator) Cancel(owner, taskID uuid.UUID) bool {
	task, ok := o.registry.Get(taskID)
	if !ok || task.Owner != owner {
		return false
	}
	return o.registry.Cancel(taskID)
}

// Bus exposes the event bus so the SSE transport can subscribe directly.
func (o *Orchestrator) Bus() *eventbus.Bus {
	return o.bus
}
