// Package eventbus implements the Progress Event Bus (spec.md §4.C): a
// bounded, per-task fan-out of ProgressEvents to any number of subscribers
// (e.g. multiple SSE clients watching the same task), with replay for
// late subscribers and drop-oldest-non-terminal backpressure handling.
//
// Grounded on the teacher's CancellationManager (map+mutex+metrics state
// keyed by execution/workflow id), generalized here to fan out events to
// buffered channels instead of tracking a single cancel func per entry.
package eventbus

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

// ChannelCapacity is the per-subscriber buffered channel size (spec.md §4.C).
const ChannelCapacity = 32

type taskState struct {
	status      domain.TaskStatus
	progress    int
	currentStep string
	hasStatus   bool

	intermediates map[string]interface{}
	stageOrder    []string

	terminal *domain.ProgressEvent

	subscribers map[int]chan domain.ProgressEvent
	nextSubID   int
}

// Bus is a registry of per-task subscriber sets. The zero value is not
// usable; construct with New.
type Bus struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*taskState

	dropped metric.Int64Counter
}

// New builds an empty Bus.
func New() *Bus {
	meter := otel.Meter("cogniblock-orchestrator")
	dropped, _ := meter.Int64Counter("cogniblock_eventbus_dropped_total")
	return &Bus{
		tasks:   make(map[uuid.UUID]*taskState),
		dropped: dropped,
	}
}

func (b *Bus) stateFor(taskID uuid.UUID) *taskState {
	st, ok := b.tasks[taskID]
	if !ok {
		st = &taskState{
			intermediates: make(map[string]interface{}),
			subscribers:   make(map[int]chan domain.ProgressEvent),
		}
		b.tasks[taskID] = st
	}
	return st
}

// Publish records ev in the task's state and fans it out to every current
// subscriber. A full subscriber channel has its oldest non-terminal entry
// dropped to make room; a terminal event is never itself dropped.
func (b *Bus) Publish(ev domain.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateFor(ev.TaskID)

	switch ev.Type {
	case domain.EventStatus:
		st.status = ev.Status
		st.progress = ev.Progress
		st.currentStep = ev.CurrentStep
		st.hasStatus = true
	case domain.EventIntermediate:
		if _, seen := st.intermediates[ev.Stage]; !seen {
			st.stageOrder = append(st.stageOrder, ev.Stage)
		}
		st.intermediates[ev.Stage] = ev.Payload
	case domain.EventComplete, domain.EventError:
		evCopy := ev
		st.terminal = &evCopy
	}

	for id, ch := range st.subscribers {
		b.deliver(ch, ev)
		if ev.IsTerminal() {
			close(ch)
			delete(st.subscribers, id)
		}
	}
}

// deliver sends ev on ch without blocking, freeing one buffered slot by
// dropping the oldest queued event if ch is full and that oldest event is
// not itself terminal. Terminal events always get a slot: the bus never
// drops the final word on a task.
func (b *Bus) deliver(ch chan domain.ProgressEvent, ev domain.ProgressEvent) {
	select {
	case ch <- ev:
		return
	default:
	}

	select {
	case oldest := <-ch:
		if oldest.IsTerminal() {
			// Should not happen: a terminal event closes the channel
			// before any further events are published. Put it back
			// and drop the incoming event instead of losing the
			// terminal state.
			ch <- oldest
			return
		}
		b.dropped.Add(context.Background(), 1, metric.WithAttributes(attribute.String("task_id", ev.TaskID.String())))
	default:
	}

	select {
	case ch <- ev:
	default:
		// Channel refilled concurrently; give up on this delivery
		// rather than block the publisher.
	}
}

// Subscribe registers a new subscriber for taskID and returns its channel
// plus an unsubscribe func. The subscriber immediately receives a replay
// burst: a synthesized status event (if the task has emitted one) followed
// by one intermediate event per populated stage, in the order those stages
// were first published, followed by the terminal event if the task has
// already finished (after which the channel is closed).
func (b *Bus) Subscribe(taskID uuid.UUID) (<-chan domain.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.stateFor(taskID)
	ch := make(chan domain.ProgressEvent, ChannelCapacity)

	if st.hasStatus {
		ch <- domain.StatusEvent(taskID, st.progress, st.currentStep, st.status)
	}
	for _, stage := range st.stageOrder {
		ch <- domain.IntermediateEvent(taskID, stage, st.intermediates[stage])
	}
	if st.terminal != nil {
		ch <- *st.terminal
		close(ch)
		return ch, func() {}
	}

	id := st.nextSubID
	st.nextSubID++
	st.subscribers[id] = ch

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if cur, ok := b.tasks[taskID]; ok {
			if c, ok := cur.subscribers[id]; ok {
				delete(cur.subscribers, id)
				close(c)
			}
		}
	}
	return ch, unsubscribe
}

// Forget drops all bus state for taskID. Called by the task registry's
// sweep once a terminal task has aged past its retention TTL.
func (b *Bus) Forget(taskID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.tasks, taskID)
}
