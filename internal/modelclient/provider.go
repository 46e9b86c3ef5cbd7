// Package modelclient implements the Model Client (spec.md §4.A): a
// uniform call interface to the OCR, correction, summarization, and
// tag-generation models, with retry/backoff, per-operation circuit
// breaking, and literal prompt-template substitution.
//
// Per spec.md §9's redesign note, model kinds are a tagged variant
// (Operation) rather than a duck-typed string, each with its own typed
// request/response and its own entry in the endpoint/model-name table.
package modelclient

import (
	"context"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

// Operation is the tagged variant over the four semantic model calls.
type Operation string

const (
	OpOCR          Operation = "ocr"
	OpCorrect      Operation = "correct"
	OpSummarize    Operation = "summarize"
	OpGenerateTags Operation = "generate_tags"
)

// TagGenRequest is the input to GenerateTags (spec.md §4.H).
type TagGenRequest struct {
	Summary           domain.Summary
	KnowledgeText     string
	ExistingTagNames  []string
}

// TagGenResponse mirrors the schema spec.md §4.H requires of the model:
// existing names to reuse plus newly minted candidates.
type TagGenResponse struct {
	Existing []string      `json:"existing"`
	New      []NewTagClaim `json:"new"`
}

// NewTagClaim is one newly-minted tag candidate before normalization.
type NewTagClaim struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// Provider is the external AI model collaborator this package is built
// against. It is intentionally the only seam to the model vendor: the
// provider implementations (HolmesGPT, Bedrock, Anthropic, ...) are out of
// scope per spec.md §1 and are supplied by the caller.
type Provider interface {
	OCR(ctx context.Context, imageBytes []byte, prompt string) (string, error)
	Correct(ctx context.Context, text string) (string, error)
	Summarize(ctx context.Context, text string, template string) (domain.Summary, error)
	GenerateTags(ctx context.Context, req TagGenRequest) (TagGenResponse, error)
}
