package gate

import (
	"strings"

	"github.com/draftworks/docforge/internal/analysis"
	"github.com/draftworks/docforge/internal/registry"
	"github.com/draftworks/docforge/internal/template"
)

// Router maps quality findings to sections. The affinity function is
// deterministic: an explicit section name on the finding wins, then the
// keyword table picks the best-matching section (ties resolve to the earlier
// section in canonical order), and anything unmatched lands on the default
// section.
type Router struct {
	order          []string
	keywords       map[string][]string
	defaultSection string
}

// NewRouter builds a Router from the template: each section matches its own
// name words plus its declared keywords.
func NewRouter(t *template.Template) *Router {
	r := &Router{
		order:          t.SectionNames(),
		keywords:       make(map[string][]string, len(t.Sections)),
		defaultSection: t.DefaultSection,
	}
	for _, s := range t.Sections {
		var kws []string
		for _, w := range strings.Fields(strings.ToLower(s.Name)) {
			if len(w) > 2 {
				kws = append(kws, w)
			}
		}
		for _, k := range s.Keywords {
			kws = append(kws, strings.ToLower(k))
		}
		r.keywords[s.Name] = kws
	}
	return r
}

// SetKeywords replaces the keyword list for one section. The table is
// configuration, not business logic; callers may tune it per document type.
func (r *Router) SetKeywords(section string, keywords []string) {
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		lowered = append(lowered, strings.ToLower(k))
	}
	r.keywords[section] = lowered
}

// Route returns the section a finding belongs to.
func (r *Router) Route(f analysis.Finding) string {
	return r.RouteRemark(f.Section, f.Message+" "+f.Suggestion)
}

// RouteRemark resolves an affinity from an optional explicit section name and
// free text. Committee remarks use this directly.
func (r *Router) RouteRemark(section, text string) string {
	if section != "" {
		if _, ok := r.keywords[section]; ok {
			return section
		}
	}

	text = strings.ToLower(text)
	best := ""
	bestScore := 0
	for _, name := range r.order {
		score := 0
		for _, kw := range r.keywords[name] {
			if strings.Contains(text, kw) {
				score++
			}
		}
		if score > bestScore {
			best = name
			bestScore = score
		}
	}
	if best != "" {
		return best
	}
	return r.defaultSection
}

// delta converts a finding into a feedback ledger delta. Readability issues
// become change items, gaps and unfulfilled goals become additions, and scope
// violations become removals.
func delta(f analysis.Finding) registry.Feedback {
	item := f.Message
	if f.Suggestion != "" {
		item += " (suggestion: " + f.Suggestion + ")"
	}
	switch f.Kind {
	case analysis.KindScopeViolation:
		return registry.Feedback{ToRemove: []string{item}}
	case analysis.KindConceptGap, analysis.KindUnfulfilledGoal:
		return registry.Feedback{ToAdd: []string{item}}
	default:
		return registry.Feedback{ToChange: []string{item}}
	}
}
