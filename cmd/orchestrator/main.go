// Command orchestrator runs the Asynchronous AI Processing Pipeline and
// Task Orchestrator as a standalone process: a thin HTTP surface in front
// of the Smart-Note Pipeline and Multi-Note Workflow, wired the way the
// teacher's main.go wires its workflow engine — signal-aware shutdown,
// OTel trace/metric export, a bare net/http mux.
//
// Authentication, request routing conventions, and persistence of domain
// entities beyond content/tags are the surrounding application's concern
// (spec.md §1); this binary exposes only the orchestrator's own surface.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/cache"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/config"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/eventbus"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/gate"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/modelclient"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/multinote"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/obslog"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/obstel"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/orchestrator"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/persistence"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/smartnote"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/sse"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taggen"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/taskregistry"
)

const serviceName = "cogniblock-orchestrator"

func main() {
	obslog.Init(serviceName)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := obstel.InitTracer(ctx, serviceName)
	shutdownMetrics, _ := obstel.InitMetrics(ctx, serviceName)

	cfg := config.Load()

	store, err := persistence.Open("cogniblock-content.db")
	if err != nil {
		slog.Error("failed to open content store", "error", err)
		return
	}
	defer store.Close()

	provider, err := newProviderFromConfig(cfg)
	if err != nil {
		slog.Error("model provider unavailable", "error", err)
		return
	}

	model := modelclient.NewClient(provider, cfg.AIMaxRetries, cfg.AIRetryBase)
	contentCache := cache.New(cfg.CacheMaxEntries, cfg.CacheTTL)
	bus := eventbus.New()
	registry := taskregistry.New(bus, cfg.TaskRetentionTTL)
	registry.StartSweeper(cfg.SweepInterval)
	defer registry.StopSweeper(context.Background())

	concurrencyGate := gate.New(cfg.MaxConcurrentTasks, cfg.QueueWaitTimeout)
	tagger := taggen.New(model, store, cfg.MaxExistingTags, cfg.MaxTagsPerContent)
	smartNotePipeline := smartnote.New(registry, model, contentCache, store, tagger)
	multiNoteWorkflow := multinote.New(registry, model, cfg.MinNotesThreshold, cfg.PerTaskFanoutLimit, cfg.ConfidenceThreshold)

	orch := orchestrator.New(registry, bus, concurrencyGate, smartNotePipeline, multiNoteWorkflow, cfg.TaskTimeout)

	mux := http.NewServeMux()
	registerRoutes(mux, orch, cfg)

	srv := &http.Server{Addr: ":8080", Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()
	slog.Info("orchestrator started", "addr", srv.Addr)

	<-ctx.Done()
	slog.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
	_ = shutdownTrace(shutdownCtx)
	_ = shutdownMetrics(shutdownCtx)
	slog.Info("shutdown complete")
}

type submitTextRequest struct {
	Owner string `json:"owner"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type submitImageRequest struct {
	Owner     string `json:"owner"`
	Title     string `json:"title"`
	ImageData string `json:"image_data"` // base64
}

type submitNotesRequest struct {
	Owner             string             `json:"owner"`
	Notes             []domain.NoteInput `json:"notes"`
	MinNotesThreshold int                `json:"min_notes_threshold,omitempty"`
}

// taskResultResponse is the terminal-only view GET .../tasks/{id}/result
// returns, distinct from the full status snapshot GET .../tasks/{id} returns
// (spec.md §6 lists these as two separate query operations).
type taskResultResponse struct {
	TaskID    uuid.UUID         `json:"task_id"`
	Status    domain.TaskStatus `json:"status"`
	Result    interface{}       `json:"result,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorCode domain.ErrorCode  `json:"error_code,omitempty"`
}

// validateNotes enforces spec.md §5's multi-note submission limits: at most
// MaxNotesPerWorkflow notes, each within MaxContentLength characters.
func validateNotes(notes []domain.NoteInput, cfg config.Config) error {
	if len(notes) == 0 {
		return fmt.Errorf("notes must not be empty")
	}
	if len(notes) > cfg.MaxNotesPerWorkflow {
		return fmt.Errorf("at most %d notes are allowed per submission, got %d", cfg.MaxNotesPerWorkflow, len(notes))
	}
	for i, n := range notes {
		if len(n.Content) == 0 || utf8.RuneCountInString(n.Content) > cfg.MaxContentLength {
			return fmt.Errorf("note %d must be non-empty and at most %d characters", i, cfg.MaxContentLength)
		}
	}
	return nil
}

// supportedImageTypes are the image/* MIME types the Smart-Note Pipeline's
// OCR stage accepts (spec.md §7's "unsupported image type" rejection).
var supportedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// isSupportedImageType sniffs imageBytes the way net/http.DetectContentType
// does for an uploaded file, rather than trusting a client-supplied
// extension or header.
func isSupportedImageType(imageBytes []byte) bool {
	return supportedImageTypes[http.DetectContentType(imageBytes)]
}

func registerRoutes(mux *http.ServeMux, orch *orchestrator.Orchestrator, cfg config.Config) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/smart-note/text", func(w http.ResponseWriter, r *http.Request) {
		var req submitTextRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		owner, ok := parseOwner(w, req.Owner)
		if !ok {
			return
		}
		if len(req.Text) == 0 || utf8.RuneCountInString(req.Text) > cfg.MaxContentLength {
			http.Error(w, fmt.Sprintf("text must be non-empty and at most %d characters", cfg.MaxContentLength), http.StatusBadRequest)
			return
		}
		task := orch.SubmitSmartNote(r.Context(), owner, domain.TaskInput{Kind: domain.InputText, Title: req.Title, Text: req.Text})
		writeJSON(w, http.StatusAccepted, task)
	})

	mux.HandleFunc("/v1/smart-note/image", func(w http.ResponseWriter, r *http.Request) {
		var req submitImageRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		owner, ok := parseOwner(w, req.Owner)
		if !ok {
			return
		}
		imageBytes, err := base64.StdEncoding.DecodeString(req.ImageData)
		if err != nil {
			http.Error(w, "invalid base64 image data", http.StatusBadRequest)
			return
		}
		if len(imageBytes) == 0 || int64(len(imageBytes)) > cfg.MaxImageBytes {
			http.Error(w, fmt.Sprintf("image must be non-empty and at most %d bytes", cfg.MaxImageBytes), http.StatusBadRequest)
			return
		}
		if !isSupportedImageType(imageBytes) {
			http.Error(w, "unsupported image type", http.StatusBadRequest)
			return
		}
		task := orch.SubmitSmartNote(r.Context(), owner, domain.TaskInput{Kind: domain.InputImage, Title: req.Title, ImageBytes: imageBytes})
		writeJSON(w, http.StatusAccepted, task)
	})

	mux.HandleFunc("/v1/multi-note", func(w http.ResponseWriter, r *http.Request) {
		var req submitNotesRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		owner, ok := parseOwner(w, req.Owner)
		if !ok {
			return
		}
		if err := validateNotes(req.Notes, cfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		task := orch.SubmitMultiNote(r.Context(), owner, domain.TaskInput{Kind: domain.InputNotes, Notes: req.Notes, MinNotesThreshold: req.MinNotesThreshold})
		writeJSON(w, http.StatusAccepted, task)
	})

	mux.HandleFunc("/v1/tasks/", func(w http.ResponseWriter, r *http.Request) {
		owner, ok := parseOwner(w, r.URL.Query().Get("owner"))
		if !ok {
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/v1/tasks/")
		if rest, isResult := strings.CutSuffix(path, "/result"); isResult {
			taskID, err := uuid.Parse(rest)
			if err != nil {
				http.Error(w, "invalid task id", http.StatusBadRequest)
				return
			}
			task, found := orch.Get(owner, taskID)
			if !found {
				http.NotFound(w, r)
				return
			}
			if !task.Status.IsTerminal() {
				http.Error(w, "task has not reached a terminal state yet", http.StatusConflict)
				return
			}
			writeJSON(w, http.StatusOK, taskResultResponse{
				TaskID:    task.ID,
				Status:    task.Status,
				Result:    task.Result,
				Error:     task.Error,
				ErrorCode: task.ErrorCode,
			})
			return
		}

		taskID, err := uuid.Parse(path)
		if err != nil {
			http.Error(w, "invalid task id", http.StatusBadRequest)
			return
		}

		if r.Method == http.MethodDelete {
			if !orch.Cancel(owner, taskID) {
				http.Error(w, "task not found or already terminal", http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		task, found := orch.Get(owner, taskID)
		if !found {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, http.StatusOK, task)
	})

	mux.HandleFunc("/v1/tasks/stream/", func(w http.ResponseWriter, r *http.Request) {
		taskID, err := uuid.Parse(r.URL.Path[len("/v1/tasks/stream/"):])
		if err != nil {
			http.Error(w, "invalid task id", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		if err := sse.Stream(r.Context(), orch.Bus(), taskID, w); err != nil {
			slog.Debug("sse stream ended", "task_id", taskID, "error", err)
		}
	})
}

// newProviderFromConfig builds the reference HTTP-backed Provider. Concrete
// model vendors are out of scope (spec.md §1); a deployment targeting a
// different vendor swaps this for its own modelclient.Provider.
func newProviderFromConfig(cfg config.Config) (modelclient.Provider, error) {
	if cfg.ModelEndpointURL == "" {
		return nil, errors.New("MODEL_ENDPOINT_URL is not set")
	}
	return modelclient.NewHTTPProvider(modelclient.HTTPProviderConfig{
		EndpointURL:     cfg.ModelEndpointURL,
		APIKey:          cfg.ModelAPIKey,
		OCRModel:        cfg.OCRModelName,
		CorrectionModel: cfg.CorrectionModelName,
		SummaryModel:    cfg.SummaryModelName,
		TagModel:        cfg.TagModelName,
	}), nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return false
	}
	return true
}

func parseOwner(w http.ResponseWriter, raw string) (uuid.UUID, bool) {
	owner, err := uuid.Parse(raw)
	if err != nil {
		http.Error(w, "missing or invalid owner id", http.StatusBadRequest)
		return uuid.UUID{}, false
	}
	return owner, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
