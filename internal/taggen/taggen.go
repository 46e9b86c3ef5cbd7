// Package taggen implements the Tag Generator (spec.md §4.H): the
// post-summary step that asks the model to reuse or mint tags for a
// completed Smart-Note, normalizes its answer, and persists the result.
//
// A tag generation failure is downgraded to a logged warning rather than
// failing the parent task, per spec.md §4.H.
package taggen

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/domain"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/modelclient"
	"github.com/STCN1-Advx/CogniBlock-BackEnd/internal/persistence"
)

// Generator wires the model client and persistence store together to
// produce and persist tags for one content.
type Generator struct {
	model   *modelclient.Client
	store   persistence.Store
	maxExisting int
	maxTags int
}

// New builds a Generator. maxExisting and maxTags come from config
// (MAX_EXISTING_TAGS, MAX_TAGS_PER_CONTENT).
func New(model *modelclient.Client, store persistence.Store, maxExisting, maxTags int) *Generator {
	return &Generator{model: model, store: store, maxExisting: maxExisting, maxTags: maxTags}
}

// Generate runs the full tag-generation step for a content, returning the
// final, normalized tag list. Errors are always logged, never returned, so
// a caller can treat this as best-effort and still complete the parent
// task with an empty tag list on failure.
func (g *Generator) Generate(ctx context.Context, contentID int64, summary domain.Summary, knowledgeText string) []domain.Tag {
	existing, err := g.store.ListExistingTags(ctx, g.maxExisting)
	if err != nil {
		slog.Warn("tag generation: failed to list existing tags", "error", err, "content_id", contentID)
		return nil
	}

	names := make([]string, 0, len(existing))
	for _, t := range existing {
		names = append(names, t.Name)
	}

	resp, err := g.model.GenerateTags(ctx, modelclient.TagGenRequest{
		Summary:          summary,
		KnowledgeText:    knowledgeText,
		ExistingTagNames: names,
	})
	if err != nil {
		slog.Warn("tag generation: model call failed", "error", err, "content_id", contentID)
		return nil
	}

	tags := g.normalize(resp)

	var persisted []domain.Tag
	for _, tag := range tags {
		tagID, err := g.store.UpsertTag(ctx, tag.Name)
		if err != nil {
			slog.Warn("tag generation: upsert failed", "error", err, "tag", tag.Name)
			continue
		}
		if err := g.store.Associate(ctx, contentID, tagID, tag.Confidence); err != nil {
			slog.Warn("tag generation: associate failed", "error", err, "tag", tag.Name, "content_id", contentID)
			continue
		}
		persisted = append(persisted, tag)
	}
	return persisted
}

// normalize applies spec.md §4.H step 3: trim, reject empty, dedupe
// case-insensitively (existing wins over new on collision), cap at maxTags.
func (g *Generator) normalize(resp modelclient.TagGenResponse) []domain.Tag {
	seen := make(map[string]bool)
	var out []domain.Tag

	for _, name := range resp.Existing {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, domain.Tag{Name: trimmed, Confidence: 1, IsNew: false})
	}

	candidates := make([]modelclient.NewTagClaim, len(resp.New))
	copy(candidates, resp.New)
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Confidence > candidates[j].Confidence })

	for _, c := range candidates {
		trimmed := strings.TrimSpace(c.Name)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, domain.Tag{Name: trimmed, Confidence: c.Confidence, IsNew: true})
	}

	if len(out) > g.maxTags {
		out = out[:g.maxTags]
	}
	return out
}
