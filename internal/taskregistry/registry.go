// Package taskregistry implements the Task Registry (spec.md §4.D): the
// thread-safe, in-memory map from task id to Task, through which every
// status transition is mediated and mirrored onto the event bus.
//
// Durable task/execution storage is explicitly out of scope (spec.md §1
// Non-goals) — state lives only in memory for the process lifetime, swept
// periodically the way the teacher's Scheduler drives periodic work with
// robfig/cron rather than a hand-rolled ticker loop.
package taskregistry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/eventbus"
)

// Registry owns the canonical copy of every in-flight and recently-finished
// Task, and is the only component allowed to mutate one.
type Registry struct {
	mu      sync.RWMutex
	tasks   map[uuid.UUID]*domain.Task
	cancels map[uuid.UUID]context.CancelFunc

	bus           *eventbus.Bus
	retentionTTL  time.Duration
	sweeper       *cron.Cron

	tasksCreated   metric.Int64Counter
	tasksSwept     metric.Int64Counter
}

// New builds a Registry publishing transitions onto bus, retaining
// terminal tasks for retentionTTL before a sweep reclaims them
// (TASK_RETENTION_TTL_S).
func New(bus *eventbus.Bus, retentionTTL time.Duration) *Registry {
	meter := otel.Meter("cogniblock-orchestrator")
	created, _ := meter.Int64Counter("cogniblock_tasks_created_total")
	swept, _ := meter.Int64Counter("cogniblock_tasks_swept_total")
	return &Registry{
		tasks:        make(map[uuid.UUID]*domain.Task),
		cancels:      make(map[uuid.UUID]context.CancelFunc),
		bus:          bus,
		retentionTTL: retentionTTL,
		tasksCreated: created,
		tasksSwept:   swept,
	}
}

// StartSweeper schedules a periodic sweep of retired tasks every interval,
// using a seconds-precision cron schedule (SWEEP_INTERVAL_S).
func (r *Registry) StartSweeper(interval time.Duration) {
	r.sweeper = cron.New(cron.WithSeconds())
	spec := fmt.Sprintf("@every %s", interval.String())
	if _, err := r.sweeper.AddFunc(spec, r.Sweep); err != nil {
		slog.Error("task registry sweeper schedule rejected", "error", err, "interval", interval)
		return
	}
	r.sweeper.Start()
}

// StopSweeper halts the periodic sweep, blocking until the running job (if
// any) finishes or ctx expires.
func (r *Registry) StopSweeper(ctx context.Context) {
	if r.sweeper == nil {
		return
	}
	stopCtx := r.sweeper.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
}

// Create registers a new pending Task for owner and publishes its initial
// status event.
func (r *Registry) Create(kind domain.TaskKind, owner uuid.UUID, input domain.TaskInput, deadline time.Time) domain.Task {
	task := &domain.Task{
		ID:        uuid.New(),
		Owner:     owner,
		Kind:      kind,
		Status:    domain.StatusPending,
		Input:     input,
		CreatedAt: time.Now(),
		Deadline:  deadline,
	}

	r.mu.Lock()
	r.tasks[task.ID] = task
	r.mu.Unlock()

	r.tasksCreated.Add(context.Background(), 1)
	r.bus.Publish(domain.StatusEvent(task.ID, 0, "queued", domain.StatusPending))
	return task.Snapshot()
}

// BindCancel associates the context.CancelFunc that stops task id's running
// goroutine with the task, so Cancel can trigger real cooperative
// cancellation (spec.md §4.D: "sets cooperative cancellation signal; running
// stages observe it") alongside the terminal-state transition, instead of
// only flipping status while the pipeline keeps running to completion.
func (r *Registry) BindCancel(id uuid.UUID, cancel context.CancelFunc) {
	r.mu.Lock()
	r.cancels[id] = cancel
	r.mu.Unlock()
}

// Get returns a safe-to-read snapshot of the task, if it exists.
func (r *Registry) Get(id uuid.UUID) (domain.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	task, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return task.Snapshot(), true
}

// List returns a snapshot of every task owned by owner.
func (r *Registry) List(owner uuid.UUID) []domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		if task.Owner == owner {
			out = append(out, task.Snapshot())
		}
	}
	return out
}

// SetRunning transitions a pending task to running with its first step. A
// no-op if the task already reached a terminal state (e.g. it was
// cancelled concurrently).
func (r *Registry) SetRunning(id uuid.UUID, step string) {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok || task.Status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	task.Status = domain.StatusRunning
	task.StartedAt = time.Now()
	task.CurrentStep = step
	progress := task.Progress
	r.mu.Unlock()

	r.bus.Publish(domain.StatusEvent(id, progress, step, domain.StatusRunning))
}

// SetProgress advances the running task's progress percentage and current
// step label. A no-op once the task is terminal.
func (r *Registry) SetProgress(id uuid.UUID, progress int, step string) {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok || task.Status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	task.Progress = progress
	task.CurrentStep = step
	r.mu.Unlock()

	r.bus.Publish(domain.StatusEvent(id, progress, step, domain.StatusRunning))
}

// SetIntermediate records a stage's artifact and publishes it. A no-op once
// the task is terminal.
func (r *Registry) SetIntermediate(id uuid.UUID, stage string, payload interface{}) {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok || task.Status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	if task.Intermediates == nil {
		task.Intermediates = make(map[string]interface{})
	}
	task.Intermediates[stage] = payload
	r.mu.Unlock()

	r.bus.Publish(domain.IntermediateEvent(id, stage, payload))
}

// Complete transitions the task to completed with its final result. A
// no-op if the task is already terminal, so a completion racing an
// explicit Cancel (or a prior Fail) cannot overwrite it and cannot publish
// a second terminal event, per spec.md §3/§8.
func (r *Registry) Complete(id uuid.UUID, result interface{}) {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok || task.Status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	task.Status = domain.StatusCompleted
	task.Progress = 100
	task.Result = result
	task.CompletedAt = time.Now()
	delete(r.cancels, id)
	r.mu.Unlock()

	r.bus.Publish(domain.CompleteEvent(id, result))
}

// Fail transitions the task to failed (or timed_out/cancelled, per code)
// with the given error class and message. A no-op if the task is already
// terminal — see Complete.
func (r *Registry) Fail(id uuid.UUID, code domain.ErrorCode, msg string) {
	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok || task.Status.IsTerminal() {
		r.mu.Unlock()
		return
	}
	task.Status = statusForCode(code)
	task.Error = msg
	task.ErrorCode = code
	task.CompletedAt = time.Now()
	delete(r.cancels, id)
	r.mu.Unlock()

	r.bus.Publish(domain.ErrorEvent(id, code, msg))
}

func statusForCode(code domain.ErrorCode) domain.TaskStatus {
	switch code {
	case domain.ErrCancelled:
		return domain.StatusCancelled
	case domain.ErrTimeout:
		return domain.StatusTimedOut
	default:
		return domain.StatusFailed
	}
}

// Cancel marks a non-terminal task as cancelled and invokes the
// context.CancelFunc bound via BindCancel, so the goroutine actually
// running the task observes ctx.Done() at its next checkCancelled check
// instead of running to completion after the registry already reports it
// cancelled. Reports false if the task is unknown or already terminal.
func (r *Registry) Cancel(id uuid.UUID) bool {
	const msg = "task cancelled by caller"

	r.mu.Lock()
	task, ok := r.tasks[id]
	if !ok || task.Status.IsTerminal() {
		r.mu.Unlock()
		return false
	}
	task.Status = domain.StatusCancelled
	task.Error = msg
	task.ErrorCode = domain.ErrCancelled
	task.CompletedAt = time.Now()
	cancel := r.cancels[id]
	delete(r.cancels, id)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.bus.Publish(domain.ErrorEvent(id, domain.ErrCancelled, msg))
	return true
}

// Sweep removes terminal tasks older than retentionTTL from both the
// registry and the event bus.
func (r *Registry) Sweep() {
	cutoff := time.Now().Add(-r.retentionTTL)

	r.mu.Lock()
	var expired []uuid.UUID
	for id, task := range r.tasks {
		if task.Status.IsTerminal() && !task.CompletedAt.IsZero() && task.CompletedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(r.tasks, id)
			delete(r.cancels, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.bus.Forget(id)
	}
	if len(expired) > 0 {
		r.tasksSwept.Add(context.Background(), int64(len(expired)))
		slog.Info("task registry swept retired tasks", "count", len(expired))
	}
}
