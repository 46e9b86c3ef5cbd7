package smartnote

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/cache"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/eventbus"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/modelclient"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/persistence"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taggen"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taskregistry"
)

type stubProvider struct{}

func (stubProvider) OCR(ctx context.Context, imageBytes []byte, prompt string) (string, error) {
	return "ocr text", nil
}
func (stubProvider) Correct(ctx context.Context, text string) (string, error) {
	return text + " (corrected)", nil
}
func (stubProvider) Summarize(ctx context.Context, text, template string) (domain.Summary, error) {
	return domain.Summary{Title: "t", ContentMarkdown: text}, nil
}
func (stubProvider) GenerateTags(ctx context.Context, req modelclient.TagGenRequest) (modelclient.TagGenResponse, error) {
	return modelclient.TagGenResponse{}, nil
}

type stubStore struct{ nextID int64 }

func (s *stubStore) StoreContent(ctx context.Context, c persistence.Content) (int64, error) {
	s.nextID++
	return s.nextID, nil
}
func (s *stubStore) ListExistingTags(ctx context.Context, limit int) ([]persistence.ExistingTag, error) {
	return nil, nil
}
func (s *stubStore) UpsertTag(ctx context.Context, name string) (int64, error) { return 1, nil }
func (s *stubStore) Associate(ctx context.Context, contentID, tagID int64, confidence float64) error {
	return nil
}
func (s *stubStore) SetContentPublic(ctx context.Context, contentID int64, public bool, publicTitle, publicDescription string, publishedAt time.Time) error {
	return nil
}

func newTestPipeline() (*Pipeline, *taskregistry.Registry) {
	registry := taskregistry.New(eventbus.New(), time.Hour)
	model := modelclient.NewClient(stubProvider{}, 1, time.Millisecond)
	c := cache.New(100, time.Hour)
	store := &stubStore{}
	tagger := taggen.New(model, store, 200, 5)
	return New(registry, model, c, store, tagger), registry
}

func TestRunTextInputSkipsOCR(t *testing.T) {
	pipeline, registry := newTestPipeline()
	owner := uuid.New()
	task := registry.Create(domain.KindSmartNote, owner, domain.TaskInput{Kind: domain.InputText, Title: "t", Text: "hello"}, time.Now().Add(time.Minute))

	if err := pipeline.Run(context.Background(), task); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, _ := registry.Get(task.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", got.Status, got.Error)
	}
	if _, ok := got.Intermediates["ocr_text"]; !ok {
		t.Fatalf("expected ocr_text intermediate even when skipped")
	}
}

func TestRunImageInputCallsOCR(t *testing.T) {
	pipeline, registry := newTestPipeline()
	owner := uuid.New()
	task := registry.Create(domain.KindSmartNote, owner, domain.TaskInput{Kind: domain.InputImage, ImageBytes: []byte{0xFF}}, time.Now().Add(time.Minute))

	if err := pipeline.Run(context.Background(), task); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, _ := registry.Get(task.ID)
	result := got.Result.(domain.SmartNoteResult)
	if result.OCRResult != "ocr text" {
		t.Fatalf("expected OCR result populated, got %+v", result)
	}
}

func TestRunCacheHitShortCircuits(t *testing.T) {
	pipeline, registry := newTestPipeline()
	owner := uuid.New()

	first := registry.Create(domain.KindSmartNote, owner, domain.TaskInput{Kind: domain.InputText, Title: "t", Text: "hello"}, time.Now().Add(time.Minute))
	if err := pipeline.Run(context.Background(), first); err != nil {
		t.Fatalf("first run failed: %v", err)
	}

	second := registry.Create(domain.KindSmartNote, owner, domain.TaskInput{Kind: domain.InputText, Title: "t", Text: "hello"}, time.Now().Add(time.Minute))
	if err := pipeline.Run(context.Background(), second); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	got, _ := registry.Get(second.ID)
	if _, ok := got.Intermediates["cache_hit"]; !ok {
		t.Fatalf("expected second run to be a cache hit")
	}
}

func TestRunCancelledBeforeStartFailsWithCancelled(t *testing.T) {
	pipeline, registry := newTestPipeline()
	owner := uuid.New()
	task := registry.Create(domain.KindSmartNote, owner, domain.TaskInput{Kind: domain.InputImage, ImageBytes: []byte{0x01}}, time.Now().Add(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := pipeline.Run(ctx, task); err == nil {
		t.Fatalf("expected cancellation error")
	}

	got, _ := registry.Get(task.ID)
	if got.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled status, got %s", got.Status)
	}
}
