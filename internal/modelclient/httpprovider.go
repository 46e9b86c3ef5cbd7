package modelclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
)

// HTTPProvider calls a single model endpoint over HTTP, one POST per
// operation, the way the teacher's HTTPTaskExecutor dispatches workflow
// tasks: a pooled *http.Client, trace propagation, a bounded response read.
//
// It is the reference Provider wired by cmd/orchestrator; a deployment
// backed by a different vendor supplies its own Provider instead.
type HTTPProvider struct {
	client   *http.Client
	endpoint string
	apiKey   string
	tracer   trace.Tracer

	ocrModel        string
	correctionModel string
	summaryModel    string
	tagModel        string
}

// HTTPProviderConfig names the endpoint and per-operation model identifiers.
type HTTPProviderConfig struct {
	EndpointURL     string
	APIKey          string
	OCRModel        string
	CorrectionModel string
	SummaryModel    string
	TagModel        string
}

// NewHTTPProvider builds an HTTPProvider with connection pooling matching
// the teacher's HTTPTaskExecutor defaults.
func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	return &HTTPProvider{
		client: &http.Client{
			Timeout: 90 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		endpoint:        cfg.EndpointURL,
		apiKey:          cfg.APIKey,
		tracer:          otel.Tracer("cogniblock-modelclient"),
		ocrModel:        cfg.OCRModel,
		correctionModel: cfg.CorrectionModel,
		summaryModel:    cfg.SummaryModel,
		tagModel:        cfg.TagModel,
	}
}

type ocrRequestBody struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Image  string `json:"image_base64"`
}

type textRequestBody struct {
	Model string `json:"model"`
	Text  string `json:"text"`
}

type summaryRequestBody struct {
	Model    string `json:"model"`
	Text     string `json:"text"`
	Template string `json:"template"`
}

type textResponseBody struct {
	Text string `json:"text"`
}

func (p *HTTPProvider) OCR(ctx context.Context, imageBytes []byte, prompt string) (string, error) {
	var out textResponseBody
	if err := p.call(ctx, "/v1/ocr", ocrRequestBody{Model: p.ocrModel, Prompt: prompt, Image: encodeImage(imageBytes)}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (p *HTTPProvider) Correct(ctx context.Context, text string) (string, error) {
	var out textResponseBody
	if err := p.call(ctx, "/v1/correct", textRequestBody{Model: p.correctionModel, Text: text}, &out); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (p *HTTPProvider) Summarize(ctx context.Context, text, template string) (domain.Summary, error) {
	var out domain.Summary
	if err := p.call(ctx, "/v1/summarize", summaryRequestBody{Model: p.summaryModel, Text: text, Template: template}, &out); err != nil {
		return domain.Summary{}, err
	}
	return out, nil
}

func (p *HTTPProvider) GenerateTags(ctx context.Context, req TagGenRequest) (TagGenResponse, error) {
	var out TagGenResponse
	body := struct {
		Model            string          `json:"model"`
		Summary          domain.Summary  `json:"summary"`
		KnowledgeText    string          `json:"knowledge_text"`
		ExistingTagNames []string        `json:"existing_tag_names"`
	}{Model: p.tagModel, Summary: req.Summary, KnowledgeText: req.KnowledgeText, ExistingTagNames: req.ExistingTagNames}
	if err := p.call(ctx, "/v1/tags", body, &out); err != nil {
		return TagGenResponse{}, err
	}
	return out, nil
}

func (p *HTTPProvider) call(ctx context.Context, path string, reqBody, out interface{}) error {
	ctx, span := p.tracer.Start(ctx, "modelclient.http_call", trace.WithAttributes(attribute.String("path", path)))
	defer span.End()

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read response: %w: %w", ErrNetwork, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode >= 400 {
		return classifyStatus(resp.StatusCode, respBody)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// classifyStatus maps an HTTP error response to the retryable/permanent
// sentinel errors errors.go declares, so retryable() (and in turn
// callWithRetry) actually sees a transient failure as transient. Without
// this, every 5xx/429 response was wrapped in a bare fmt.Errorf that
// retryable() never recognized, so the HTTPProvider this binary wires never
// retried anything regardless of RetryPolicy.
func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("model endpoint rate limited (%d): %w: %s", status, ErrRateLimited, body)
	case status >= 500:
		return fmt.Errorf("model endpoint server error (%d): %w: %s", status, ErrServerError, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("model endpoint auth failure (%d): %w: %s", status, ErrAuthFailed, body)
	case status == http.StatusRequestEntityTooLarge:
		return fmt.Errorf("model endpoint payload too large (%d): %w: %s", status, ErrPayloadTooLarge, body)
	default:
		return fmt.Errorf("model endpoint rejected request (%d): %w: %s", status, ErrInvalidRequest, body)
	}
}

func encodeImage(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
