package modelclient

import "strings"

// TemplateRegistry holds prompt strings keyed by template name. Substitution
// is literal `{placeholder}` replacement with no escaping — the caller is
// responsible for sanitizing untrusted input before it reaches a template
// (spec.md §4.A).
type TemplateRegistry struct {
	templates map[string]string
}

// NewTemplateRegistry seeds the registry with the templates the two
// workflows reference by name.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: map[string]string{
			"ocr_template":           "Transcribe all text visible in this image verbatim.",
			"single_template":        "Summarize the following notes into one cohesive note:\n{content}",
			"per_note_template":      "Summarize this note concisely, preserving key facts:\n{content}",
			"comprehensive_template": "Produce one comprehensive summary synthesizing these per-note summaries:\n{content}",
			"smart_note_template":    "Summarize this corrected note titled \"{title}\":\n{content}",
		},
	}
}

// Register adds or overwrites a named template.
func (r *TemplateRegistry) Register(name, template string) {
	r.templates[name] = template
}

// Render substitutes every `{key}` occurrence in the named template with
// vars[key]. Missing template names render to an empty string so callers
// degrade rather than panic on a misconfigured name.
func (r *TemplateRegistry) Render(name string, vars map[string]string) string {
	tpl, ok := r.templates[name]
	if !ok {
		return ""
	}
	result := tpl
	for k, v := range vars {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
