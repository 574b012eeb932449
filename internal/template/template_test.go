package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "github.com/draftworks/docforge/internal/errors"
)

const validTemplate = `
topic: "Database Standard"
purpose: "Define database practices"
document_type: "Technical Standard"
goals:
  - "Name approved engines"
audience:
  primary:
    - role: "DBA"
      experience_level: "Senior"
scope:
  includes:
    - "relational databases"
  excludes:
    - "message queues"
sections:
  - name: "Introduction"
  - name: "Engine Selection"
    depends_on: ["Introduction"]
    keywords: ["postgres", "engine"]
  - name: "Operations"
    depends_on: ["Engine Selection"]
reviewers:
  - name: "dba-lead"
    focus: "technical accuracy"
`

func TestLoadBytes_Valid(t *testing.T) {
	tmpl, err := LoadBytes([]byte(validTemplate))
	require.NoError(t, err)

	assert.Equal(t, "Database Standard", tmpl.Title) // defaults to topic
	assert.Equal(t, []string{"Introduction", "Engine Selection", "Operations"}, tmpl.SectionNames())
	assert.Equal(t, "Introduction", tmpl.DefaultSection)

	sec, ok := tmpl.Section("Engine Selection")
	require.True(t, ok)
	assert.Equal(t, []string{"Introduction"}, sec.DependsOn)
	assert.Equal(t, 5, sec.MaxPages) // default
	assert.Equal(t, []string{"All"}, sec.AudienceFocus)
}

func TestLoadBytes_MissingRequiredFields(t *testing.T) {
	_, err := LoadBytes([]byte(`title: "x"`))
	require.Error(t, err)
	assert.ErrorIs(t, err, derrors.ErrConfig)
	assert.Contains(t, err.Error(), "topic")
	assert.Contains(t, err.Error(), "sections")
}

func TestLoadBytes_UnknownDependency(t *testing.T) {
	in := `
topic: t
purpose: p
audience:
  primary: [{role: r}]
sections:
  - name: a
    depends_on: ["ghost"]
`
	_, err := LoadBytes([]byte(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"ghost"`)
}

func TestLoadBytes_DuplicateSection(t *testing.T) {
	in := `
topic: t
purpose: p
audience:
  primary: [{role: r}]
sections:
  - name: a
  - name: a
`
	_, err := LoadBytes([]byte(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestLoadBytes_CycleDetected(t *testing.T) {
	in := `
topic: t
purpose: p
audience:
  primary: [{role: r}]
sections:
  - name: a
    depends_on: ["c"]
  - name: b
    depends_on: ["a"]
  - name: c
    depends_on: ["b"]
`
	_, err := LoadBytes([]byte(in))
	require.Error(t, err)
	assert.ErrorIs(t, err, derrors.ErrConfig)
	assert.Contains(t, err.Error(), "cyclic")
}

func TestLoadBytes_SelfDependency(t *testing.T) {
	in := `
topic: t
purpose: p
audience:
  primary: [{role: r}]
sections:
  - name: a
    depends_on: ["a"]
`
	_, err := LoadBytes([]byte(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cyclic")
}

func TestLoadBytes_BadDefaultSection(t *testing.T) {
	in := `
topic: t
purpose: p
default_section: nope
audience:
  primary: [{role: r}]
sections:
  - name: a
`
	_, err := LoadBytes([]byte(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default_section")
}

func TestLoadBytes_EnvExpansion(t *testing.T) {
	t.Setenv("DOCFORGE_TEST_TOPIC", "expanded topic")
	in := `
topic: "${DOCFORGE_TEST_TOPIC}"
purpose: p
audience:
  primary: [{role: r}]
sections:
  - name: a
`
	tmpl, err := LoadBytes([]byte(in))
	require.NoError(t, err)
	assert.Equal(t, "expanded topic", tmpl.Topic)
}

func TestLoadBytes_DefaultReviewer(t *testing.T) {
	in := `
topic: t
purpose: p
audience:
  primary: [{role: r}]
sections:
  - name: a
`
	tmpl, err := LoadBytes([]byte(in))
	require.NoError(t, err)
	require.Len(t, tmpl.Reviewers, 1)
	assert.Equal(t, "general", tmpl.Reviewers[0].Name)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validTemplate), 0o644))

	tmpl, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, tmpl.Sections, 3)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, derrors.ErrConfig)
}
