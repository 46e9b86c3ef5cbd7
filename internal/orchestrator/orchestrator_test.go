package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/cache"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/eventbus"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/gate"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/modelclient"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/multinote"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/persistence"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/smartnote"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taggen"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taskregistry"
)

type fastProvider struct{}

func (fastProvider) OCR(ctx context.Context, imageBytes []byte, prompt string) (string, error) {
	return "text", nil
}
func (fastProvider) Correct(ctx context.Context, text string) (string, error) { return text, nil }
func (fastProvider) Summarize(ctx context.Context, text, template string) (domain.Summary, error) {
	return domain.Summary{Title: "t", ContentMarkdown: text}, nil
}
func (fastProvider) GenerateTags(ctx context.Context, req modelclient.TagGenRequest) (modelclient.TagGenResponse, error) {
	return modelclient.TagGenResponse{}, nil
}

type nullStore struct{}

func (nullStore) StoreContent(ctx context.Context, c persistence.Content) (int64, error) { return 1, nil }
func (nullStore) ListExistingTags(ctx context.Context, limit int) ([]persistence.ExistingTag, error) {
	return nil, nil
}
func (nullStore) UpsertTag(ctx context.Context, name string) (int64, error)                       { return 1, nil }
func (nullStore) Associate(ctx context.Context, contentID, tagID int64, confidence float64) error { return nil }
func (nullStore) SetContentPublic(ctx context.Context, contentID int64, public bool, publicTitle, publicDescription string, publishedAt time.Time) error {
	return nil
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	bus := eventbus.New()
	registry := taskregistry.New(bus, time.Hour)
	g := gate.New(2, time.Second)
	model := modelclient.NewClient(fastProvider{}, 1, time.Millisecond)
	c := cache.New(100, time.Hour)
	tagger := taggen.New(model, nullStore{}, 200, 5)
	sn := smartnote.New(registry, model, c, nullStore{}, tagger)
	mn := multinote.New(registry, model, 3, 4, 0.0)
	return New(registry, bus, g, sn, mn, 5*time.Second)
}

func waitForTerminal(t *testing.T, o *Orchestrator, owner, taskID uuid.UUID) domain.Task {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		task, ok := o.Get(owner, taskID)
		if ok && task.Status.IsTerminal() {
			return task
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("task %s did not reach a terminal state in time", taskID)
	return domain.Task{}
}

func TestSubmitSmartNoteCompletesAsynchronously(t *testing.T) {
	o := newTestOrchestrator(t)
	owner := uuid.New()

	task := o.SubmitSmartNote(context.Background(), owner, domain.TaskInput{Kind: domain.InputText, Title: "t", Text: "hello"})
	final := waitForTerminal(t, o, owner, task.ID)
	if final.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.Error)
	}
}

func TestGetScopedToOwner(t *testing.T) {
	o := newTestOrchestrator(t)
	owner := uuid.New()
	stranger := uuid.New()

	task := o.SubmitSmartNote(context.Background(), owner, domain.TaskInput{Kind: domain.InputText, Title: "t", Text: "hi"})
	if _, ok := o.Get(stranger, task.ID); ok {
		t.Fatalf("expected task to be invisible to a different owner")
	}
	if _, ok := o.Get(owner, task.ID); !ok {
		t.Fatalf("expected task to be visible to its owner")
	}
}

func TestCancelPendingTask(t *testing.T) {
	o := newTestOrchestrator(t)
	owner := uuid.New()

	task := o.SubmitMultiNote(context.Background(), owner, domain.TaskInput{Kind: domain.InputNotes, Notes: []domain.NoteInput{{Content: "a"}}})
	if !o.Cancel(owner, task.ID) {
		t.Fatalf("expected Cancel to succeed on a freshly submitted task")
	}
	final := waitForTerminal(t, o, owner, task.ID)
	if final.Status != domain.StatusCancelled {
		t.Fatalf("expected cancellation to win the race with the pipeline goroutine, got %s", final.Status)
	}
}

// TestCancelIsTheOnlyTerminalEvent asserts spec.md §8's invariant that a
// cancelled task's terminal state is the only one it ever reaches: the
// pipeline goroutine never overwrites it after losing the race.
func TestCancelIsTheOnlyTerminalEvent(t *testing.T) {
	o := newTestOrchestrator(t)
	owner := uuid.New()

	task := o.SubmitSmartNote(context.Background(), owner, domain.TaskInput{Kind: domain.InputText, Title: "t", Text: "hello"})
	o.Cancel(owner, task.ID)
	final := waitForTerminal(t, o, owner, task.ID)
	if final.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", final.Status)
	}

	time.Sleep(20 * time.Millisecond)
	again, ok := o.Get(owner, task.ID)
	if !ok {
		t.Fatalf("task disappeared")
	}
	if again.Status != domain.StatusCancelled {
		t.Fatalf("terminal state was overwritten after cancellation: now %s", again.Status)
	}
}
