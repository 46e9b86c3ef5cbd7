// Package smartnote implements the Smart-Note Pipeline (spec.md §4.F): a
// fixed four-stage state machine (OCR recognition → error correction →
// note summary → save to database) driven per single task, with a cache
// short-circuit and cooperative cancellation between every stage.
//
// Grounded on the teacher's DAGEngine task-by-task execution loop,
// narrowed here from an arbitrary DAG to the spec's fixed four-stage line.
// One tracer span covers a whole run; stages get no spans or metrics of
// their own.
package smartnote

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/cache"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/modelclient"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/persistence"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taggen"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taskregistry"
)

// Stage labels, matching the current_step values spec.md §4.F names.
const (
	StageOCRRecognition  = "ocr_recognition"
	StageErrorCorrection = "error_correction"
	StageNoteSummary     = "note_summary"
	StageSaveToDatabase  = "save_to_database"
)

// Pipeline runs one Smart-Note task end to end.
type Pipeline struct {
	registry *taskregistry.Registry
	model    *modelclient.Client
	cache    *cache.Cache
	store    persistence.Store
	tagger   *taggen.Generator

	tracer trace.Tracer
}

// New builds a Pipeline from its collaborators.
func New(registry *taskregistry.Registry, model *modelclient.Client, c *cache.Cache, store persistence.Store, tagger *taggen.Generator) *Pipeline {
	return &Pipeline{
		registry: registry,
		model:    model,
		cache:    c,
		store:    store,
		tagger:   tagger,
		tracer:   otel.Tracer("cogniblock-smartnote"),
	}
}

// Run drives task through OCR (if needed) → correction → summary → save,
// publishing status/intermediate events at every stage boundary. It
// returns once the task has reached a terminal state in the registry;
// callers only need the error to decide whether to log it, not to react.
func (p *Pipeline) Run(ctx context.Context, task domain.Task) error {
	ctx, span := p.tracer.Start(ctx, "smartnote.run", trace.WithAttributes(attribute.String("task_id", task.ID.String())))
	defer span.End()

	if task.Input.Kind == domain.InputText {
		cacheKey := cache.Key(task.Input.Title, task.Input.Text)
		if result, hit := p.cache.Get(ctx, cacheKey); hit {
			p.registry.SetIntermediate(task.ID, "cache_hit", true)
			p.registry.Complete(task.ID, result)
			return nil
		}
	}

	p.registry.SetRunning(task.ID, StageOCRRecognition)

	var ocrText string
	switch task.Input.Kind {
	case domain.InputImage:
		if err := checkCancelled(ctx); err != nil {
			return p.fail(task.ID, err)
		}
		p.registry.SetProgress(task.ID, 5, StageOCRRecognition)
		text, err := p.model.OCR(ctx, task.Input.ImageBytes)
		if err != nil {
			return p.fail(task.ID, err)
		}
		ocrText = text
		p.registry.SetIntermediate(task.ID, "ocr_text", ocrText)
		p.registry.SetProgress(task.ID, 30, StageErrorCorrection)
	case domain.InputText:
		ocrText = task.Input.Text
		p.registry.SetIntermediate(task.ID, "ocr_text", map[string]interface{}{"text": ocrText, "skipped": true})
		p.registry.SetProgress(task.ID, 30, StageErrorCorrection)
	default:
		return p.fail(task.ID, domain.NewPipelineError(domain.ErrInvalidInput, fmt.Sprintf("unsupported input kind for smart note: %s", task.Input.Kind), nil))
	}

	if err := checkCancelled(ctx); err != nil {
		return p.fail(task.ID, err)
	}
	corrected, err := p.model.Correct(ctx, ocrText)
	if err != nil {
		return p.fail(task.ID, err)
	}
	p.registry.SetIntermediate(task.ID, "corrected_text", corrected)
	p.registry.SetProgress(task.ID, 55, StageNoteSummary)

	if err := checkCancelled(ctx); err != nil {
		return p.fail(task.ID, err)
	}
	summary, err := p.model.Summarize(ctx, corrected, task.Input.Title, "smart_note_template")
	if err != nil {
		return p.fail(task.ID, err)
	}
	p.registry.SetIntermediate(task.ID, "summary", summary)
	p.registry.SetProgress(task.ID, 80, StageSaveToDatabase)

	if err := checkCancelled(ctx); err != nil {
		return p.fail(task.ID, err)
	}
	contentID, err := p.store.StoreContent(ctx, persistence.Content{
		OwnerID:         task.Owner.String(),
		Title:           summary.Title,
		ContentMarkdown: summary.ContentMarkdown,
	})
	if err != nil {
		return p.fail(task.ID, domain.NewPipelineError(domain.ErrPersistenceFailed, "failed to store content", err))
	}
	p.registry.SetIntermediate(task.ID, "content_id", contentID)

	tags := p.tagger.Generate(ctx, contentID, summary, corrected)
	p.registry.SetIntermediate(task.ID, "tags", tags)

	result := domain.SmartNoteResult{
		OCRResult:       ocrText,
		CorrectedResult: corrected,
		Summary:         summary,
		ContentID:       contentID,
		Tags:            tags,
	}

	if task.Input.Kind == domain.InputText {
		p.cache.Put(cache.Key(task.Input.Title, task.Input.Text), result)
	}

	p.registry.Complete(task.ID, result)
	return nil
}

func (p *Pipeline) fail(taskID uuid.UUID, err error) error {
	p.registry.Fail(taskID, domain.CodeOf(err), err.Error())
	return err
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return domain.NewPipelineError(domain.ErrTimeout, "task deadline exceeded", ctx.Err())
		}
		return domain.NewPipelineError(domain.ErrCancelled, "task cancelled", ctx.Err())
	default:
		return nil
	}
}
