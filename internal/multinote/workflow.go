// Package multinote implements the Multi-Note Workflow (spec.md §4.G): a
// fan-out/fan-in pipeline that summarizes each input note independently,
// synthesizes a comprehensive summary, scores its confidence against the
// per-note summaries, and conditionally runs one correction pass.
//
// The bounded parallel fan-out is grounded on the teacher's DAGEngine
// parallel-task-group execution (a semaphore-style worker cap over
// independent tasks), narrowed from an arbitrary DAG to a flat note list.
package multinote

import (
	"context"
	"strings"
	"sync"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/modelclient"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/similarity"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taskregistry"
)

// Workflow runs one Multi-Note task end to end.
type Workflow struct {
	registry            *taskregistry.Registry
	model               *modelclient.Client
	minNotesThreshold   int
	perTaskFanoutLimit  int
	confidenceThreshold float64
}

// New builds a Workflow. minNotesThreshold, fanoutLimit and
// confidenceThreshold come from config (MIN_NOTES_THRESHOLD,
// PER_TASK_FANOUT_LIMIT, CONFIDENCE_THRESHOLD).
func New(registry *taskregistry.Registry, model *modelclient.Client, minNotesThreshold, fanoutLimit int, confidenceThreshold float64) *Workflow {
	return &Workflow{
		registry:            registry,
		model:               model,
		minNotesThreshold:   minNotesThreshold,
		perTaskFanoutLimit:  fanoutLimit,
		confidenceThreshold: confidenceThreshold,
	}
}

type noteResult struct {
	index   int
	summary domain.Summary
	err     error
}

// Run dispatches task to the single-summary or multi-workflow path based
// on note count, per spec.md §4.G.
func (w *Workflow) Run(ctx context.Context, task domain.Task) error {
	notes := task.Input.Notes
	threshold := w.minNotesThreshold
	if task.Input.MinNotesThreshold > 0 {
		threshold = task.Input.MinNotesThreshold
	}

	if len(notes) < threshold {
		w.registry.SetRunning(task.ID, "single_summary")
		return w.runSingle(ctx, task, notes)
	}
	w.registry.SetRunning(task.ID, "per_note_summary")
	return w.runMultiWorkflow(ctx, task, notes)
}

func (w *Workflow) runSingle(ctx context.Context, task domain.Task, notes []domain.NoteInput) error {
	if err := checkCancelled(ctx); err != nil {
		return w.fail(task, err)
	}

	parts := make([]string, len(notes))
	for i, n := range notes {
		parts[i] = n.Content
	}
	concatenated := strings.Join(parts, "\n\n")

	summary, err := w.model.Summarize(ctx, concatenated, "", "single_template")
	if err != nil {
		return w.fail(task, err)
	}

	result := domain.SummaryResult{
		Title:            summary.Title,
		Topic:            summary.Topic,
		ContentMarkdown:  summary.ContentMarkdown,
		ProcessingMethod: domain.MethodSingle,
	}
	w.registry.Complete(task.ID, result)
	return nil
}

func (w *Workflow) runMultiWorkflow(ctx context.Context, task domain.Task, notes []domain.NoteInput) error {
	total := len(notes)
	perNoteSummaries := make([]domain.Summary, total)

	if err := w.fanOut(ctx, task, notes, perNoteSummaries); err != nil {
		return w.fail(task, err)
	}

	w.registry.SetProgress(task.ID, 75, "comprehensive_summary")
	if err := checkCancelled(ctx); err != nil {
		return w.fail(task, err)
	}

	joined := joinSummaries(perNoteSummaries)
	comprehensive, err := w.model.Summarize(ctx, joined, "", "comprehensive_template")
	if err != nil {
		return w.fail(task, err)
	}
	w.registry.SetIntermediate(task.ID, "comprehensive_summary", comprehensive)

	scores := scoreAgainstNotes(comprehensive.ContentMarkdown, perNoteSummaries)
	method := domain.MethodMultiWorkflow

	if mean(scores) < w.confidenceThreshold {
		if err := checkCancelled(ctx); err != nil {
			return w.fail(task, err)
		}
		correctedMarkdown, err := w.model.Correct(ctx, comprehensive.ContentMarkdown)
		if err != nil {
			return w.fail(task, err)
		}
		comprehensive.ContentMarkdown = correctedMarkdown
		scores = scoreAgainstNotes(correctedMarkdown, perNoteSummaries)
		method = domain.MethodMultiWorkflowCorrect
	}
	w.registry.SetIntermediate(task.ID, "confidence_scores", scores)

	result := domain.SummaryResult{
		Title:            comprehensive.Title,
		Topic:            comprehensive.Topic,
		ContentMarkdown:  comprehensive.ContentMarkdown,
		ConfidenceScores: scores,
		ProcessingMethod: method,
	}
	w.registry.Complete(task.ID, result)
	return nil
}

// fanOut summarizes every note in parallel, bounded by perTaskFanoutLimit,
// publishing each per-note intermediate as it arrives (out of input order
// is fine; each carries its index). perNoteSummaries is filled in input
// order for the caller's subsequent stages.
func (w *Workflow) fanOut(ctx context.Context, task domain.Task, notes []domain.NoteInput, perNoteSummaries []domain.Summary) error {
	total := len(notes)
	sem := make(chan struct{}, w.perTaskFanoutLimit)
	results := make(chan noteResult, total)

	var wg sync.WaitGroup
	for i, note := range notes {
		wg.Add(1)
		go func(i int, note domain.NoteInput) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := checkCancelled(ctx); err != nil {
				results <- noteResult{index: i, err: err}
				return
			}
			summary, err := w.model.Summarize(ctx, note.Content, note.Title, "per_note_template")
			results <- noteResult{index: i, summary: summary, err: err}
		}(i, note)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	completed := 0
	var firstErr error
	for r := range results {
		completed++
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		perNoteSummaries[r.index] = r.summary
		w.registry.SetIntermediate(task.ID, "per_note_summary", map[string]interface{}{
			"index":   r.index,
			"total":   total,
			"summary": r.summary,
		})
		progress := 10 + (completed*50)/total
		w.registry.SetProgress(task.ID, progress, "per_note_summary")
	}

	return firstErr
}

func joinSummaries(summaries []domain.Summary) string {
	parts := make([]string, len(summaries))
	for i, s := range summaries {
		parts[i] = s.ContentMarkdown
	}
	return strings.Join(parts, "\n\n")
}

func scoreAgainstNotes(comprehensive string, perNote []domain.Summary) []float64 {
	scores := make([]float64, len(perNote))
	for i, s := range perNote {
		scores[i] = similarity.Cosine(comprehensive, s.ContentMarkdown)
	}
	return scores
}

func mean(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}

func (w *Workflow) fail(task domain.Task, err error) error {
	w.registry.Fail(task.ID, domain.CodeOf(err), err.Error())
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
