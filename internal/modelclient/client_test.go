package modelclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

type scriptedProvider struct {
	ocrCalls       int
	correctCalls   int
	summarizeCalls int
	tagCalls       int

	ocrErrs       []error
	correctErrs   []error
	summarizeErrs []error
	tagErrs       []error

	lastRenderedTemplate string
}

func (p *scriptedProvider) OCR(ctx context.Context, imageBytes []byte, prompt string) (string, error) {
	i := p.ocrCalls
	p.ocrCalls++
	if i < len(p.ocrErrs) && p.ocrErrs[i] != nil {
		return "", p.ocrErrs[i]
	}
	return "recognized", nil
}

func (p *scriptedProvider) Correct(ctx context.Context, text string) (string, error) {
	i := p.correctCalls
	p.correctCalls++
	if i < len(p.correctErrs) && p.correctErrs[i] != nil {
		return "", p.correctErrs[i]
	}
	return text + " (corrected)", nil
}

func (p *scriptedProvider) Summarize(ctx context.Context, text, template string) (domain.Summary, error) {
	i := p.summarizeCalls
	p.summarizeCalls++
	p.lastRenderedTemplate = template
	if i < len(p.summarizeErrs) && p.summarizeErrs[i] != nil {
		return domain.Summary{}, p.summarizeErrs[i]
	}
	return domain.Summary{Title: "t", ContentMarkdown: text}, nil
}

func (p *scriptedProvider) GenerateTags(ctx context.Context, req TagGenRequest) (TagGenResponse, error) {
	i := p.tagCalls
	p.tagCalls++
	if i < len(p.tagErrs) && p.tagErrs[i] != nil {
		return TagGenResponse{}, p.tagErrs[i]
	}
	return TagGenResponse{Existing: []string{"go"}}, nil
}

func newFastClient(provider Provider) *Client {
	return NewClient(provider, 3, time.Millisecond)
}

func TestOCRSucceedsOnFirstAttempt(t *testing.T) {
	p := &scriptedProvider{}
	c := newFastClient(p)

	out, err := c.OCR(context.Background(), []byte("img"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "recognized" {
		t.Fatalf("got %q", out)
	}
	if p.ocrCalls != 1 {
		t.Fatalf("expected 1 call, got %d", p.ocrCalls)
	}
}

func TestCorrectRetriesTransientErrorThenSucceeds(t *testing.T) {
	p := &scriptedProvider{correctErrs: []error{ErrServerError, nil}}
	c := newFastClient(p)

	out, err := c.Correct(context.Background(), "raw")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "raw (corrected)" {
		t.Fatalf("got %q", out)
	}
	if p.correctCalls != 2 {
		t.Fatalf("expected a retry (2 calls), got %d", p.correctCalls)
	}
}

func TestCorrectGivesUpAfterMaxAttempts(t *testing.T) {
	p := &scriptedProvider{correctErrs: []error{ErrServerError, ErrServerError, ErrServerError}}
	c := newFastClient(p)

	_, err := c.Correct(context.Background(), "raw")
	if err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if domain.CodeOf(err) != domain.ErrModelUnavailable {
		t.Fatalf("expected model_unavailable, got %v", domain.CodeOf(err))
	}
	if p.correctCalls != 3 {
		t.Fatalf("expected exactly MaxAttempts calls, got %d", p.correctCalls)
	}
}

func TestGenerateTagsPermanentErrorIsNotRetried(t *testing.T) {
	p := &scriptedProvider{tagErrs: []error{ErrInvalidRequest}}
	c := newFastClient(p)

	_, err := c.GenerateTags(context.Background(), TagGenRequest{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.CodeOf(err) != domain.ErrModelUnavailable {
		t.Fatalf("expected model_unavailable for a non-retryable provider rejection, got %v", domain.CodeOf(err))
	}
	if p.tagCalls != 1 {
		t.Fatalf("expected no retry on a permanent error, got %d calls", p.tagCalls)
	}
}

func TestSummarizeSubstitutesTitleAndContent(t *testing.T) {
	p := &scriptedProvider{}
	c := newFastClient(p)
	c.Templates().Register("test_template", "Note \"{title}\": {content}")

	if _, err := c.Summarize(context.Background(), "body text", "My Title", "test_template"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `Note "My Title": body text`
	if p.lastRenderedTemplate != want {
		t.Fatalf("got rendered template %q, want %q", p.lastRenderedTemplate, want)
	}
}

func TestSummarizeWithoutTitleLeavesPlaceholderEmpty(t *testing.T) {
	p := &scriptedProvider{}
	c := newFastClient(p)
	c.Templates().Register("test_template", "Note \"{title}\": {content}")

	if _, err := c.Summarize(context.Background(), "body text", "", "test_template"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `Note "": body text`
	if p.lastRenderedTemplate != want {
		t.Fatalf("got rendered template %q, want %q", p.lastRenderedTemplate, want)
	}
}

func TestOCRDeadlineExceededBeforeRetrySurfacesTimeout(t *testing.T) {
	p := &scriptedProvider{ocrErrs: []error{ErrServerError, ErrServerError, ErrServerError}}
	c := newFastClient(p)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := c.OCR(ctx, []byte("img"))
	if err == nil {
		t.Fatalf("expected an error once the context is already past its deadline")
	}
	if domain.CodeOf(err) != domain.ErrTimeout {
		t.Fatalf("expected a timeout error, got %v", err)
	}
}

func TestWrapModelErrorPassesThroughExistingPipelineError(t *testing.T) {
	pe := domain.NewPipelineError(domain.ErrTimeout, "deadline", errors.New("boom"))
	got := wrapModelError(pe)
	if got != error(pe) {
		t.Fatalf("expected the same *domain.PipelineError to pass through unchanged")
	}
}
