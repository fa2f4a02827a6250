package promptregistry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summaryYAML = `
id: summary
name: Meeting Summary
description: Summarize a meeting recording
model: fast
output_format: markdown
system_instruction: "Summarize ${title} in ${language} for ${attendees}."
guidelines:
  - be concise
  - use headings
`

func writePromptFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0640))
}

func TestRegistry_LoadAndGet(t *testing.T) {
	dir := t.TempDir()
	writePromptFile(t, dir, "summary.yaml", summaryYAML)

	r := New()
	require.NoError(t, r.Load(dir))

	rec, err := r.Get("summary")
	require.NoError(t, err)
	assert.Equal(t, "Meeting Summary", rec.DisplayName)
	assert.Len(t, rec.Guidelines, 2)
}

func TestRegistry_Get_UnknownID(t *testing.T) {
	r := New()
	_, err := r.Get("nope")
	assert.Error(t, err)
}

func TestRegistry_Reload_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	writePromptFile(t, dir, "summary.yaml", summaryYAML)

	r := New()
	require.NoError(t, r.Load(dir))
	first, err := r.Get("summary")
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "summary.yaml")))
	writePromptFile(t, dir, "bugreport.yaml", `
id: bug_report
name: Bug Report
model: quality
output_format: json
system_instruction: "File a bug for ${title}"
`)
	require.NoError(t, r.Reload(dir))

	_, err = r.Get("bug_report")
	require.NoError(t, err)
	assert.Equal(t, "Meeting Summary", first.DisplayName, "previously returned record must remain unchanged")

	_, err = r.Get("summary")
	assert.Error(t, err, "reload should have replaced the set wholesale")
}

func TestInterpolate_NoPlaceholders_Identical(t *testing.T) {
	tmpl := "plain text with no templating at all"
	assert.Equal(t, tmpl, Interpolate(tmpl, nil))
}

func TestInterpolate_DeclaredPlaceholders(t *testing.T) {
	tmpl := "Summarize ${title} in ${language}."
	out := Interpolate(tmpl, map[string]string{"title": "Sprint Demo", "language": "en"})
	assert.Equal(t, "Summarize Sprint Demo in en.", out)
	assert.NotContains(t, out, "${")
}

func TestInterpolate_MissingNameSubstitutesEmpty(t *testing.T) {
	out := Interpolate("Hello ${name}!", map[string]string{})
	assert.Equal(t, "Hello !", out)
}

func TestInterpolate_StrayBracePreservedVerbatim(t *testing.T) {
	tmpl := `Example JSON: {"key": "${value}", "raw": ${`
	out := Interpolate(tmpl, map[string]string{"value": "x"})
	assert.Contains(t, out, `"key": "x"`)
	assert.Contains(t, out, "${", "a dangling ${ with no closing brace must survive verbatim")
}

func TestInterpolate_InvalidPlaceholderNamePreserved(t *testing.T) {
	tmpl := "raw json sample: ${ not-an-identifier }"
	out := Interpolate(tmpl, map[string]string{})
	assert.Equal(t, tmpl, out)
}
