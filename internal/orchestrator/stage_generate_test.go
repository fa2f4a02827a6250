package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	doc []byte
	err error
}

func (f *stubGenerator) Generate(ctx context.Context, prompt *capability.PromptRecord, keyframes []capability.Keyframe, transcript []capability.TranscriptSegment, vars map[string]string, format capability.OutputFormat) ([]byte, error) {
	return f.doc, f.err
}

func loadTestPrompt(t *testing.T, deps *Dependencies, id string, format capability.OutputFormat) {
	t.Helper()
	dir := t.TempDir()
	content := "id: " + id + "\nname: Test\noutput_format: " + string(format) + "\nsystem_instruction: \"Summarize ${title}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(content), 0644))
	require.NoError(t, deps.Prompts.Load(dir))
}

func TestGenerateStage_AcceptsValidMarkdown(t *testing.T) {
	deps, _ := newStageTestDeps(t)
	loadTestPrompt(t, deps, "meeting_notes", capability.OutputFormatMarkdown)
	deps.Generator = &stubGenerator{doc: []byte("# Notes\n\ncontent")}
	state := newTestState(t, deps, DefaultOptions())

	stage := newGenerateStage(deps)
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	require.Equal(t, "# Notes\n\ncontent", string(state.Doc))
}

func TestGenerateStage_RejectsInvalidJSON(t *testing.T) {
	deps, _ := newStageTestDeps(t)
	loadTestPrompt(t, deps, "meeting_notes", capability.OutputFormatJSON)
	deps.Generator = &stubGenerator{doc: []byte("not json")}
	state := newTestState(t, deps, DefaultOptions())

	stage := newGenerateStage(deps)
	_, err := stage.Execute(context.Background(), state)

	require.Error(t, err)
}

func TestGenerateStage_InterpolatesTitleIntoPrompt(t *testing.T) {
	deps, _ := newStageTestDeps(t)
	loadTestPrompt(t, deps, "meeting_notes", capability.OutputFormatMarkdown)
	gen := &stubGenerator{doc: []byte("ok")}
	deps.Generator = gen
	state := newTestState(t, deps, DefaultOptions())

	stage := newGenerateStage(deps)
	_, err := stage.Execute(context.Background(), state)

	require.NoError(t, err)
	require.Equal(t, "Standup", state.Vars["title"])
}
