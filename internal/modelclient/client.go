package modelclient

import (
	"context"
	"time"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

// opBudget is the per-operation latency budget from spec.md §4.A's table.
var opBudget = map[Operation]time.Duration{
	OpOCR:          60 * time.Second,
	OpCorrect:      45 * time.Second,
	OpSummarize:    60 * time.Second,
	OpGenerateTags: 45 * time.Second,
}

// Client wraps a Provider with the ambient call concerns every operation
// needs: a literal-substitution template, retry with backoff, and a
// per-operation circuit breaker.
type Client struct {
	provider  Provider
	templates *TemplateRegistry
	breakers  *breakerSet
	retry     RetryPolicy
}

// NewClient builds a Client around provider. maxRetries/baseDelay come from
// config (AI_MAX_RETRIES / AI_RETRY_BASE_S).
func NewClient(provider Provider, maxRetries int, baseDelay time.Duration) *Client {
	return &Client{
		provider:  provider,
		templates: NewTemplateRegistry(),
		breakers:  newBreakerSet(),
		retry:     RetryPolicy{MaxAttempts: maxRetries, BaseDelay: baseDelay},
	}
}

// Templates exposes the registry so callers can register domain-specific
// prompt variants without reaching into the Client's internals.
func (c *Client) Templates() *TemplateRegistry {
	return c.templates
}

func (c *Client) withOpTimeout(ctx context.Context, op Operation) (context.Context, context.CancelFunc) {
	budget := opBudget[op]
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < budget {
			budget = remaining
		}
	}
	return context.WithTimeout(ctx, budget)
}

// OCR recognizes text from an image per spec.md §4.A / §4.F stage 1.
func (c *Client) OCR(ctx context.Context, imageBytes []byte) (string, error) {
	ctx, cancel := c.withOpTimeout(ctx, OpOCR)
	defer cancel()

	out, err := callWithRetry(ctx, c.retry, func(ctx context.Context) (string, error) {
		v, err := c.breakers.execute(OpOCR, func() (any, error) {
			return c.provider.OCR(ctx, imageBytes, c.templates.Render("ocr_template", nil))
		})
		if err != nil {
			return "", err
		}
		return v.(string), nil
	})
	if err != nil {
		return "", wrapModelError(err)
	}
	return out, nil
}

// Correct fixes OCR/transcription errors per spec.md §4.F stage 2.
func (c *Client) Correct(ctx context.Context, text string) (string, error) {
	ctx, cancel := c.withOpTimeout(ctx, OpCorrect)
	defer cancel()

	out, err := callWithRetry(ctx, c.retry, func(ctx context.Context) (string, error) {
		v, err := c.breakers.execute(OpCorrect, func() (any, error) {
			return c.provider.Correct(ctx, text)
		})
		if err != nil {
			return "", err
		}
		return v.(string), nil
	})
	if err != nil {
		return "", wrapModelError(err)
	}
	return out, nil
}

// Summarize produces a Summary from text using the named template. title is
// substituted into templates that reference {title} (smart_note_template);
// callers with no natural title (single/comprehensive templates) pass "".
func (c *Client) Summarize(ctx context.Context, text, title, templateName string) (domain.Summary, error) {
	ctx, cancel := c.withOpTimeout(ctx, OpSummarize)
	defer cancel()

	rendered := c.templates.Render(templateName, map[string]string{"content": text, "title": title})

	out, err := callWithRetry(ctx, c.retry, func(ctx context.Context) (domain.Summary, error) {
		v, err := c.breakers.execute(OpSummarize, func() (any, error) {
			return c.provider.Summarize(ctx, text, rendered)
		})
		if err != nil {
			return domain.Summary{}, err
		}
		return v.(domain.Summary), nil
	})
	if err != nil {
		return domain.Summary{}, wrapModelError(err)
	}
	return out, nil
}

// GenerateTags proposes existing/new tags for a summarized content per
// spec.md §4.H.
func (c *Client) GenerateTags(ctx context.Context, req TagGenRequest) (TagGenResponse, error) {
	ctx, cancel := c.withOpTimeout(ctx, OpGenerateTags)
	defer cancel()

	out, err := callWithRetry(ctx, c.retry, func(ctx context.Context) (TagGenResponse, error) {
		v, err := c.breakers.execute(OpGenerateTags, func() (any, error) {
			return c.provider.GenerateTags(ctx, req)
		})
		if err != nil {
			return TagGenResponse{}, err
		}
		return v.(TagGenResponse), nil
	})
	if err != nil {
		return TagGenResponse{}, wrapModelError(err)
	}
	return out, nil
}

// wrapModelError classifies a final (post-retry) provider error into the
// pipeline's error taxonomy. A *domain.PipelineError produced inside the
// retry loop (deadline exceeded, circuit open) passes through unchanged.
//
// Per spec.md §7, model_unavailable covers both halves of a model-side
// failure: retries exhausted on a transient error, and a non-retryable
// provider error (bad request, auth failure, payload too large). None of
// that is invalid_input — that class is reserved for the pipeline's own
// input validation (empty content, oversize image, too many notes), which
// never reaches this function.
func wrapModelError(err error) error {
	if pe, ok := err.(*domain.PipelineError); ok {
		return pe
	}
	if retryable(err) {
		return domain.NewPipelineError(domain.ErrModelUnavailable, "model call failed after retries", err)
	}
	return domain.NewPipelineError(domain.ErrModelUnavailable, "model rejected request", err)
}
