// Package analysis defines the document analyzer contract: an opaque Score
// function producing a CompletenessAnalysis for the assembled document.
package analysis

// FindingKind classifies a quality finding. The gate's feedback router maps
// each kind to one of the three ledger categories.
type FindingKind string

const (
	KindReadability     FindingKind = "readability"      // routed to toChange
	KindConceptGap      FindingKind = "concept_gap"      // routed to toAdd
	KindUnfulfilledGoal FindingKind = "unfulfilled_goal" // routed to toAdd
	KindScopeViolation  FindingKind = "scope_violation"  // routed to toRemove
)

// Finding is a single typed issue in the document.
type Finding struct {
	Kind FindingKind `json:"kind"`

	// Section is the explicit section affinity, when the analyzer could name
	// one. Empty means the router infers it from keywords, falling back to
	// the template's default section.
	Section string `json:"section,omitempty"`

	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// CompletenessAnalysis is the analyzer's verdict on one document revision.
// Produced fresh on each gate evaluation; never mutated, only superseded.
type CompletenessAnalysis struct {
	// OverallScore is a 0-100 weighted composite of the subscores.
	OverallScore float64 `json:"overall_score"`

	// Subscores break the composite down, keyed by dimension
	// (readability, coverage, goals, scope).
	Subscores map[string]float64 `json:"subscores,omitempty"`

	Findings []Finding `json:"findings,omitempty"`
	Summary  string    `json:"summary,omitempty"`
}

// RuleContext carries the template-derived rules the analyzer scores against.
type RuleContext struct {
	Topic         string
	Purpose       string
	Goals         []string
	ScopeIncludes []string
	ScopeExcludes []string
	SectionNames  []string
}
