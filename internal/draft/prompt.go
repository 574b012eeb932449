package draft

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/draftworks/docforge/internal/registry"
	"github.com/draftworks/docforge/internal/template"
)

const systemPrompt = "You are a technical documentation expert creating professional documents."

// sectionSchema is the JSON shape the model must return for a draft.
type sectionSchema struct {
	Content   string   `json:"content"`
	KeyPoints []string `json:"key_points"`
}

// buildPrompt assembles the generation request for one section: document-level
// context, the section's own feedback ledger (verbatim, when revising), and a
// manifest of sibling sections' key points to reduce duplication.
func buildPrompt(t *template.Template, sec registry.Section, manifest []string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Generate content for the %q section of a technical document.\n\n", sec.Name)
	fmt.Fprintf(&sb, "Document Context:\n- Topic: %s\n- Purpose: %s\n- Document Type: %s\n\n",
		t.Topic, t.Purpose, t.DocumentType)

	sb.WriteString("Target Audience:\n")
	writeAudience(&sb, "Primary", t.Audience.Primary)
	writeAudience(&sb, "Secondary", t.Audience.Secondary)
	sb.WriteString("\n")

	if len(t.Scope.Includes) > 0 {
		sb.WriteString("Scope Includes:\n")
		for _, item := range t.Scope.Includes {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
		sb.WriteString("\n")
	}
	if len(t.Scope.Excludes) > 0 {
		sb.WriteString("Out of Scope (do not cover):\n")
		for _, item := range t.Scope.Excludes {
			fmt.Fprintf(&sb, "- %s\n", item)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Constraints:\n- Maximum %d pages for this section\n- Audience focus: %s\n\n",
		sec.MaxPages, strings.Join(sec.AudienceFocus, ", "))

	if len(manifest) > 0 {
		sb.WriteString("Sibling sections already cover (avoid duplicating):\n")
		for _, line := range manifest {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
		sb.WriteString("\n")
	}

	// Revision feedback is reproduced verbatim so the regenerated content
	// measurably addresses each item.
	if !sec.Feedback.Empty() {
		sb.WriteString("This is a REVISION. The previous draft received the following feedback.\n")
		sb.WriteString("Address every item:\n")
		sb.WriteString(sec.Feedback.Render())
		sb.WriteString("\n")
		if sec.Content != "" {
			fmt.Fprintf(&sb, "Previous draft:\n%s\n\n", sec.Content)
		}
	}

	sb.WriteString(`Respond ONLY with valid JSON (no markdown fences, no explanation):
{
  "content": "<full section content>",
  "key_points": ["<key point 1>", "<key point 2>"]
}`)

	return sb.String()
}

func writeAudience(sb *strings.Builder, label string, members []template.AudienceMember) {
	if len(members) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s:\n", label)
	for _, m := range members {
		level := m.ExperienceLevel
		if level == "" {
			level = "All"
		}
		fmt.Fprintf(sb, "  - %s (%s)\n", m.Role, level)
	}
}

// correctiveSuffix is appended when the model returned unparseable output.
const correctiveSuffix = "\n\nYour previous response was not valid JSON. " +
	"Respond again with ONLY the JSON object, nothing else."

// parseSection extracts the draft from model output. It tolerates markdown
// code fences around the JSON; anything else is a malformed-output error,
// which is retryable with a corrective re-prompt.
func parseSection(text string) (sectionSchema, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)

	var out sectionSchema
	if err := json.Unmarshal([]byte(trimmed), &out); err != nil {
		return sectionSchema{}, err
	}
	if out.Content == "" {
		return sectionSchema{}, fmt.Errorf("empty content field")
	}
	return out, nil
}

// buildManifest summarizes completed sibling sections as "Name: kp1, kp2, kp3".
func buildManifest(snapshot []registry.Section, exclude string) []string {
	var manifest []string
	for _, s := range snapshot {
		if s.Name == exclude || s.Status != registry.StatusCompleted {
			continue
		}
		points := s.KeyPoints
		if len(points) > 3 {
			points = points[:3]
		}
		if len(points) == 0 {
			manifest = append(manifest, s.Name)
			continue
		}
		manifest = append(manifest, fmt.Sprintf("%s: %s", s.Name, strings.Join(points, ", ")))
	}
	return manifest
}
