// Package template loads and validates the document template: the YAML file
// declaring the document context, its sections, their dependencies, audience
// focus, and size limits. Supports environment variable overrides via ${VAR}
// or $VAR syntax in values.
//
// A cyclic or otherwise invalid template is a fatal configuration error: the
// loader fails fast so the scheduler can never silently deadlock on a cycle.
package template

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	derrors "github.com/draftworks/docforge/internal/errors"
)

// Template is the top-level document template.
type Template struct {
	Title        string   `yaml:"title"`
	Topic        string   `yaml:"topic"`
	Purpose      string   `yaml:"purpose"`
	DocumentType string   `yaml:"document_type"`
	Goals        []string `yaml:"goals"`

	Audience AudienceSpec `yaml:"audience"`
	Scope    ScopeSpec    `yaml:"scope"`

	// Sections in canonical document order. Order here defines both the
	// assembled document order and the scheduler's FIFO iteration order.
	Sections []SectionSpec `yaml:"sections"`

	// DefaultSection receives quality findings that cannot be routed to any
	// other section. Defaults to the first section.
	DefaultSection string `yaml:"default_section"`

	// Reviewers on the committee panel. At least one is required.
	Reviewers []ReviewerSpec `yaml:"reviewers"`
}

// AudienceSpec groups audience members by priority.
type AudienceSpec struct {
	Primary   []AudienceMember `yaml:"primary"`
	Secondary []AudienceMember `yaml:"secondary"`
}

// AudienceMember is one audience role.
type AudienceMember struct {
	Role            string `yaml:"role"`
	ExperienceLevel string `yaml:"experience_level"`
}

// ScopeSpec declares what the document covers and what it must not.
type ScopeSpec struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// SectionSpec declares a single draftable section.
type SectionSpec struct {
	Name          string   `yaml:"name"`
	MaxPages      int      `yaml:"max_pages"`
	AudienceFocus []string `yaml:"audience_focus"`
	DependsOn     []string `yaml:"depends_on"`
	// Keywords feed the feedback router's affinity heuristic. Section name
	// words are always matched; keywords extend that set.
	Keywords []string `yaml:"keywords"`
}

// ReviewerSpec declares one committee reviewer persona.
type ReviewerSpec struct {
	Name  string `yaml:"name"`
	Focus string `yaml:"focus"` // e.g. "technical accuracy", "compliance"
}

// Load reads and parses a YAML template file, expanding env vars.
func Load(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, derrors.ConfigError("read template %s: %v", path, err)
	}
	return LoadBytes(raw)
}

// LoadBytes parses a YAML template from bytes (useful for testing).
func LoadBytes(data []byte) (*Template, error) {
	expanded := expandEnvVars(string(data))

	var t Template
	if err := yaml.Unmarshal([]byte(expanded), &t); err != nil {
		return nil, derrors.ConfigError("parse template: %v", err)
	}

	applyDefaults(&t)
	if err := t.validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// SectionNames returns section names in canonical order.
func (t *Template) SectionNames() []string {
	names := make([]string, 0, len(t.Sections))
	for _, s := range t.Sections {
		names = append(names, s.Name)
	}
	return names
}

// Section returns the spec for name, or false if not declared.
func (t *Template) Section(name string) (SectionSpec, bool) {
	for _, s := range t.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return SectionSpec{}, false
}

func applyDefaults(t *Template) {
	if t.Title == "" {
		t.Title = t.Topic
	}
	if t.DocumentType == "" {
		t.DocumentType = "Technical Standard"
	}
	if t.DefaultSection == "" && len(t.Sections) > 0 {
		t.DefaultSection = t.Sections[0].Name
	}
	for i := range t.Sections {
		if t.Sections[i].MaxPages == 0 {
			t.Sections[i].MaxPages = 5
		}
		if len(t.Sections[i].AudienceFocus) == 0 {
			t.Sections[i].AudienceFocus = []string{"All"}
		}
	}
	if len(t.Reviewers) == 0 {
		t.Reviewers = []ReviewerSpec{
			{Name: "general", Focus: "overall quality and completeness"},
		}
	}
}

func (t *Template) validate() error {
	var missing []string
	if t.Topic == "" {
		missing = append(missing, "topic")
	}
	if t.Purpose == "" {
		missing = append(missing, "purpose")
	}
	if len(t.Audience.Primary) == 0 {
		missing = append(missing, "audience.primary")
	}
	if len(t.Sections) == 0 {
		missing = append(missing, "sections")
	}
	if len(missing) > 0 {
		return derrors.ConfigError("missing required template fields: %s", strings.Join(missing, ", "))
	}

	seen := make(map[string]bool, len(t.Sections))
	for _, s := range t.Sections {
		if s.Name == "" {
			return derrors.ConfigError("section with empty name")
		}
		if seen[s.Name] {
			return derrors.ConfigError("duplicate section name %q", s.Name)
		}
		seen[s.Name] = true
	}
	for _, s := range t.Sections {
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return derrors.ConfigError("section %q depends on unknown section %q", s.Name, dep)
			}
		}
	}
	if !seen[t.DefaultSection] {
		return derrors.ConfigError("default_section %q is not a declared section", t.DefaultSection)
	}

	if cycle := t.findCycle(); len(cycle) > 0 {
		return derrors.ConfigError("cyclic section dependency: %s", strings.Join(cycle, " -> "))
	}
	return nil
}

// findCycle runs a DFS over the dependency graph and returns the first cycle
// found as a path of section names, or nil.
func (t *Template) findCycle() []string {
	deps := make(map[string][]string, len(t.Sections))
	for _, s := range t.Sections {
		deps[s.Name] = s.DependsOn
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(deps))
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		color[name] = gray
		path = append(path, name)
		for _, dep := range deps[name] {
			switch color[dep] {
			case gray:
				// Found it: slice the path from the first occurrence of dep.
				for i, n := range path {
					if n == dep {
						cycle = append(append([]string{}, path[i:]...), dep)
						return true
					}
				}
			case white:
				if visit(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		color[name] = black
		return false
	}

	for _, s := range t.Sections {
		if color[s.Name] == white && visit(s.Name) {
			return cycle
		}
	}
	return nil
}

// envVarPattern matches ${VAR_NAME} and $VAR_NAME.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces ${VAR} and $VAR with the corresponding environment
// variable value. Missing vars are replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := strings.TrimPrefix(match, "${")
		name = strings.TrimSuffix(name, "}")
		name = strings.TrimPrefix(name, "$")
		return os.Getenv(name)
	})
}

// Describe returns a short human-readable summary of the template.
func (t *Template) Describe() string {
	return fmt.Sprintf("%s (%s): %d sections, %d reviewers",
		t.Title, t.DocumentType, len(t.Sections), len(t.Reviewers))
}
