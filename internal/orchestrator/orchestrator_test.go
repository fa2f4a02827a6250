package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/config"
	"github.com/jmylchreest/docweave/internal/promptregistry"
	"github.com/jmylchreest/docweave/internal/session"
	"github.com/jmylchreest/docweave/internal/sessionmanager"
	"github.com/jmylchreest/docweave/internal/storage"
	"github.com/jmylchreest/docweave/internal/trace"
)

// --- fake capability adapters ---------------------------------------------

type fakeProbe struct {
	durationSec float64
	err         error
}

func (f *fakeProbe) Probe(ctx context.Context, sourcePath string) (*capability.ProbeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &capability.ProbeResult{
		DurationSec:  time.Duration(f.durationSec * float64(time.Second)),
		Width:        1280,
		Height:       720,
		AudioPresent: true,
		Container:    "mov",
	}, nil
}

type fakeTranscoder struct {
	blockUntilCancel bool
}

func (f *fakeTranscoder) BuildProxy(ctx context.Context, sourcePath, proxyPath string, fps, longEdgePx int) error {
	if f.blockUntilCancel {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}
	return os.WriteFile(proxyPath, []byte("proxy"), 0o644)
}

func (f *fakeTranscoder) ExtractAudio(ctx context.Context, sourcePath, audioPath string) error {
	return os.WriteFile(audioPath, []byte("audio"), 0o644)
}

type fakeSTTSelector struct{}

func (f *fakeSTTSelector) Transcribe(ctx context.Context, audioPath, languageHint string, pref capability.STTPreference, durationSec float64) ([]capability.TranscriptSegment, string, bool, error) {
	return []capability.TranscriptSegment{
		{StartSec: 0, EndSec: 5, Text: "hello"},
		{StartSec: 5, EndSec: 10, Text: "world"},
	}, "fake", false, nil
}

type fakeRelevance struct{}

func (f *fakeRelevance) Analyze(ctx context.Context, proxyVideoPath string, transcript []capability.TranscriptSegment, hintKeywords []string, prompt *capability.PromptRecord) ([]capability.RelevantMoment, error) {
	return []capability.RelevantMoment{{StartSec: 0, EndSec: 10, Reason: "test"}}, nil
}

type fakeExtractor struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, sourcePath string, outDir string, timestampsSec []float64) ([]capability.Keyframe, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	frames := make([]capability.Keyframe, 0, len(timestampsSec))
	for i, ts := range timestampsSec {
		frames = append(frames, capability.Keyframe{TimestampSec: ts, Path: outDir, Label: "frame"})
		_ = i
	}
	return frames, nil
}

type fakeGenerator struct{}

func (f *fakeGenerator) Generate(ctx context.Context, prompt *capability.PromptRecord, keyframes []capability.Keyframe, transcript []capability.TranscriptSegment, vars map[string]string, format capability.OutputFormat) ([]byte, error) {
	return []byte("# Doc\n\ngenerated"), nil
}

// --- test harness -----------------------------------------------------------

func newTestDeps(t *testing.T) (*Dependencies, *sessionmanager.Manager) {
	t.Helper()

	dir := t.TempDir()
	sandbox, err := storage.NewSandbox(dir)
	require.NoError(t, err)
	artifacts := artifactstore.New(sandbox)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	sessions := sessionmanager.New(artifacts, logger, time.Hour, time.Hour)
	traceMgr := trace.NewManager(artifacts, logger)
	prompts := promptregistry.New()

	cfg := &config.Config{}
	cfg.Pipeline.MaxDurationSec = 3600
	cfg.Pipeline.ProxyFPS = 1
	cfg.Pipeline.ProxyLongEdgePx = 640
	cfg.Pipeline.MaxKeyframes = 10
	cfg.Pipeline.MergeGapSec = 10
	cfg.Pipeline.MinSegmentSec = 1
	cfg.Pipeline.SegmentPipelineChunkSec = 30
	cfg.Pipeline.CancelGraceSec = 1

	deps := &Dependencies{
		Probe:      &fakeProbe{durationSec: 60},
		Transcoder: &fakeTranscoder{},
		STT:        &fakeSTTSelector{},
		Relevance:  &fakeRelevance{},
		Extractor:  &fakeExtractor{},
		Generator:  &fakeGenerator{},
		Artifacts:  artifacts,
		Prompts:    prompts,
		Sessions:   sessions,
		Trace:      traceMgr,
		Config:     cfg,
		Logger:     logger,
	}
	return deps, sessions
}

func newTestOrchestrator(t *testing.T, deps *Dependencies) *Orchestrator {
	t.Helper()
	factory := NewFactory(deps)
	orch, err := factory.Create()
	require.NoError(t, err)
	return orch
}

func newDraftSession(t *testing.T, mgr *sessionmanager.Manager, mode string) *session.Session {
	t.Helper()
	sess, err := mgr.Create(sessionmanager.Metadata{
		Mode:          mode,
		Title:         "test",
		STTPreference: capability.STTPreferenceAuto,
		Source:        session.Source{LocalPath: "/tmp/in.mp4"},
	})
	require.NoError(t, err)
	return sess
}

// --- end-to-end tests --------------------------------------------------------

func TestOrchestrator_Run_CompletesThroughAllStages(t *testing.T) {
	deps, sessions := newTestDeps(t)
	seedPrompt(t, deps)

	orch := newTestOrchestrator(t, deps)
	sess := newDraftSession(t, sessions, "meeting_notes")

	result, err := orch.Run(context.Background(), sess.ID, "/tmp/in.mp4", DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "fake", result.STTAdapterUsed)
	assert.Equal(t, []byte("# Doc\n\ngenerated"), result.DocPayload)
	assert.Len(t, result.TranscriptSegments, 2)
	assert.NotEmpty(t, result.Moments)

	final, err := sessions.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusCompleted, final.Status)
	assert.Equal(t, ProgressPersist, final.Progress)
}

func TestOrchestrator_Run_TerminalStageErrorFailsSession(t *testing.T) {
	deps, sessions := newTestDeps(t)
	seedPrompt(t, deps)
	deps.Probe = &fakeProbe{err: errors.New("ffprobe exploded")}

	orch := newTestOrchestrator(t, deps)
	sess := newDraftSession(t, sessions, "meeting_notes")

	_, err := orch.Run(context.Background(), sess.ID, "/tmp/in.mp4", DefaultOptions())
	require.Error(t, err)

	final, getErr := sessions.Get(sess.ID)
	require.NoError(t, getErr)
	assert.Equal(t, session.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "probe", final.Error.Stage)
}

func TestOrchestrator_Run_CancellationObservedAtStageBoundary(t *testing.T) {
	deps, sessions := newTestDeps(t)
	seedPrompt(t, deps)
	deps.Transcoder = &fakeTranscoder{blockUntilCancel: false}

	orch := newTestOrchestrator(t, deps)
	sess := newDraftSession(t, sessions, "meeting_notes")

	// Claim happens inside Run; request cancellation up front so Run
	// observes CancelRequested() at the very first stage boundary rather
	// than racing a background goroutine against stage execution.
	require.NoError(t, sessions.Cancel(sess.ID))
	// Cancel only succeeds on non-terminal sessions; a draft session
	// accepts it and the flag is observed once Claim transitions it to
	// running at the top of Run.

	_, err := orch.Run(context.Background(), sess.ID, "/tmp/in.mp4", DefaultOptions())
	require.Error(t, err)

	final, getErr := sessions.Get(sess.ID)
	require.NoError(t, getErr)
	assert.Equal(t, session.StatusCancelled, final.Status)
}

func TestOrchestrator_Run_SegmentedPipelineInvokesExtractorPerChunk(t *testing.T) {
	deps, sessions := newTestDeps(t)
	seedPrompt(t, deps)
	extractor := &fakeExtractor{}
	deps.Extractor = extractor
	deps.Probe = &fakeProbe{durationSec: 95} // 95s / 30s chunks -> 4 chunks

	orch := newTestOrchestrator(t, deps)
	sess := newDraftSession(t, sessions, "meeting_notes")

	opts := DefaultOptions()
	opts.SegmentPipeline = true
	opts.SegmentChunkSec = 30

	result, err := orch.Run(context.Background(), sess.ID, "/tmp/in.mp4", opts)
	require.NoError(t, err)
	require.NotNil(t, result)

	extractor.mu.Lock()
	calls := extractor.calls
	extractor.mu.Unlock()
	assert.Greater(t, calls, 1, "segmented pipeline should call the extractor once per chunk")

	final, getErr := sessions.Get(sess.ID)
	require.NoError(t, getErr)
	assert.Equal(t, session.StatusCompleted, final.Status)
}

func TestOrchestrator_Run_RejectsConcurrentRunOnSameSession(t *testing.T) {
	deps, sessions := newTestDeps(t)
	seedPrompt(t, deps)
	deps.Transcoder = &fakeTranscoder{blockUntilCancel: true}

	orch := newTestOrchestrator(t, deps)
	sess := newDraftSession(t, sessions, "meeting_notes")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = orch.Run(context.Background(), sess.ID, "/tmp/in.mp4", DefaultOptions())
	}()

	// Give the first Run a moment to mark itself active before the second
	// one starts racing it for the same session id.
	time.Sleep(50 * time.Millisecond)

	_, err := orch.Run(context.Background(), sess.ID, "/tmp/in.mp4", DefaultOptions())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	wg.Wait()
}

func seedPrompt(t *testing.T, deps *Dependencies) {
	t.Helper()
	dir := t.TempDir()
	record := `
id: meeting_notes
name: Meeting Notes
description: test prompt
model: fast
output_format: markdown
system_instruction: "Summarize: {{title}}"
guidelines: []
`
	path := dir + "/meeting_notes.yaml"
	require.NoError(t, os.WriteFile(path, []byte(record), 0o644))
	require.NoError(t, deps.Prompts.Load(dir))
}
