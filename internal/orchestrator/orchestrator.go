package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/concurrency"
	"github.com/jmylchreest/docweave/internal/models"
	"github.com/jmylchreest/docweave/internal/pipelineerr"
	"github.com/jmylchreest/docweave/internal/trace"
)

// Orchestrator runs the fixed six-stage sequence for one session at a time
// per session id, mirroring the ancestor pipeline framework's
// activeExecutions guard against a session being driven by two Run calls at
// once.
type Orchestrator struct {
	deps   *Dependencies
	stages []Stage

	mu     sync.Mutex
	active map[string]bool
}

func newOrchestrator(deps *Dependencies, stages []Stage) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		stages: stages,
		active: make(map[string]bool),
	}
}

// stageMilestones maps each fixed stage to the progress value published once
// it completes (§4.1 "Progress reporting").
var stageMilestones = map[string]int{
	stageIDProbe:            ProgressProbe,
	stageIDProxyAudio:       ProgressProxy,
	stageIDTranscribe:       ProgressTranscribe,
	stageIDSelectMoments:    ProgressRelevance,
	stageIDExtractKeyframes: ProgressExtract,
	stageIDGenerate:         ProgressGenerate,
}

// Run claims sessionID and drives it through Probe, Proxy+Audio, Transcribe,
// Select Moments, Extract Keyframes, Generate, and Persist (§4.1). It is the
// single exposed pipeline operation; callers never touch individual stages.
func (o *Orchestrator) Run(ctx context.Context, sessionID models.ULID, sourcePath string, opts Options) (*Result, error) {
	key := sessionID.String()

	o.mu.Lock()
	if o.active[key] {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.active[key] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.active, key)
		o.mu.Unlock()
	}()

	if o.deps.SessionGate != nil {
		release, err := o.deps.SessionGate.Acquire(ctx)
		if err != nil {
			return nil, pipelineerr.New(pipelineerr.Cancelled, "admission", key, err)
		}
		defer release()
	}

	sess, err := o.deps.Sessions.Claim(sessionID)
	if err != nil {
		return nil, fmt.Errorf("claiming session %s: %w", key, err)
	}

	rootDir, err := o.deps.Artifacts.Root(sessionID)
	if err != nil {
		return nil, o.fail(sessionID, pipelineerr.Internal, "claim", err)
	}

	state := NewState(sess, sourcePath, opts)
	state.RootDir = rootDir

	tracer := o.deps.Trace.For(sessionID)
	runStart := time.Now()

	for _, stage := range o.stages {
		if sess.CancelRequested() || ctx.Err() != nil {
			return nil, o.cancelAt(sessionID, tracer, stage.ID())
		}

		// The segmented-pipeline variant replaces select_moments and
		// extract_keyframes with a chunked, bounded-concurrency pass over
		// the source duration, concatenated back in source order (§4.1
		// "segmented pipeline").
		if state.Options.SegmentPipeline && stage.ID() == stageIDSelectMoments {
			if err := o.runSegmented(ctx, sessionID, state, tracer); err != nil {
				o.deps.Trace.Close(sessionID)
				return nil, o.failFromStageError(sessionID, stage.ID(), err)
			}
			if upErr := o.deps.Sessions.UpdateProgress(sessionID, ProgressExtract, "Segmented Select+Extract"); upErr != nil {
				o.deps.Logger.Warn("progress update rejected", "session_id", key, "stage", stage.ID(), "error", upErr)
			}
			continue
		}
		if state.Options.SegmentPipeline && stage.ID() == stageIDExtractKeyframes {
			continue
		}

		stageStart := time.Now()
		tracer.Start(stage.ID(), nil)

		result, err := stage.Execute(ctx, state)
		duration := time.Since(stageStart)

		if err != nil {
			tracer.ErrorEvent(stage.ID(), err, nil)
			o.deps.Trace.Close(sessionID)
			return nil, o.failFromStageError(sessionID, stage.ID(), err)
		}

		msg := ""
		if result != nil {
			msg = result.Message
		}
		tracer.End(stage.ID(), duration, map[string]any{"message": msg})

		if progress, ok := stageMilestones[stage.ID()]; ok {
			if upErr := o.deps.Sessions.UpdateProgress(sessionID, progress, stage.Name()); upErr != nil {
				o.deps.Logger.Warn("progress update rejected", "session_id", key, "stage", stage.ID(), "error", upErr)
			}
		}

		// re-fetch to observe a cancellation requested mid-stage
		if refreshed, getErr := o.deps.Sessions.Get(sessionID); getErr == nil {
			sess = refreshed
			state.Session = refreshed
		}
	}

	return o.persistAndComplete(sessionID, state, tracer, runStart)
}

// chunk is one fixed-length window of the source duration, run through
// select_moments and extract_keyframes independently of its neighbors.
type chunk struct {
	index      int
	startSec   float64
	endSec     float64
	moments    []capability.RelevantMoment
	keyframes  []capability.Keyframe
}

// runSegmented partitions [0, duration) into fixed-length chunks (default
// segment_pipeline_chunk_sec) and runs select_moments+extract_keyframes per
// chunk with bounded concurrency min(4, chunks), then concatenates results
// in source order (§4.1 "segmented pipeline").
func (o *Orchestrator) runSegmented(ctx context.Context, sessionID models.ULID, state *State, tracer *trace.Recorder) error {
	duration := 0.0
	if state.Probe != nil {
		duration = state.Probe.DurationSec.Seconds()
	}
	chunkLen := float64(state.Options.SegmentChunkSec)
	if chunkLen <= 0 {
		chunkLen = 30
	}
	if duration <= 0 {
		return nil
	}

	numChunks := int(duration/chunkLen) + 1
	chunks := make([]chunk, numChunks)
	for i := range chunks {
		start := float64(i) * chunkLen
		end := start + chunkLen
		if end > duration {
			end = duration
		}
		chunks[i] = chunk{index: i, startSec: start, endSec: end}
	}

	limit := len(chunks)
	if limit > 4 {
		limit = 4
	}

	selectStage := newSelectMomentsStage(o.deps).(*selectMomentsStage)
	extractStage := newExtractKeyframesStage(o.deps).(*extractKeyframesStage)

	err := concurrency.BoundedGroup(ctx, limit, len(chunks), func(ctx context.Context, i int) error {
		c := &chunks[i]
		chunkState := &State{
			Session:    state.Session,
			Options:    state.Options,
			RootDir:    state.RootDir,
			SourcePath: state.SourcePath,
			ProxyPath:  state.ProxyPath,
			AudioPath:  state.AudioPath,
			Probe:      state.Probe,
			Transcript: transcriptWindow(state.Transcript, c.startSec, c.endSec),
		}

		if _, err := selectStage.Execute(ctx, chunkState); err != nil {
			return err
		}
		if _, err := extractStage.Execute(ctx, chunkState); err != nil {
			return err
		}
		c.moments = chunkState.Moments
		c.keyframes = chunkState.Keyframes
		return nil
	})
	if err != nil {
		return err
	}

	var moments []capability.RelevantMoment
	var keyframes []capability.Keyframe
	for _, c := range chunks {
		moments = append(moments, c.moments...)
		keyframes = append(keyframes, c.keyframes...)
	}
	state.Moments = moments
	state.Keyframes = keyframes
	tracer.Note(stageIDSelectMoments, fmt.Sprintf("segmented pipeline: %d chunks", len(chunks)), nil)
	return nil
}

// transcriptWindow returns the transcript segments overlapping [start, end).
func transcriptWindow(segments []capability.TranscriptSegment, start, end float64) []capability.TranscriptSegment {
	out := make([]capability.TranscriptSegment, 0)
	for _, s := range segments {
		if s.EndSec > start && s.StartSec < end {
			out = append(out, s)
		}
	}
	return out
}

// persistAndComplete writes the final artifacts (transcript, moments,
// keyframe manifest, document) and transitions the session to completed
// (§4.1 step 8, §4.7).
func (o *Orchestrator) persistAndComplete(sessionID models.ULID, state *State, tracer *trace.Recorder, runStart time.Time) (*Result, error) {
	dir := state.RootDir

	if transcriptJSON, err := json.Marshal(state.Transcript); err == nil {
		if _, err := o.deps.Artifacts.Put(dir, artifactstore.Transcript, transcriptJSON); err != nil {
			return nil, o.fail(sessionID, pipelineerr.Internal, "persist", err)
		}
	}

	if momentsJSON, err := json.Marshal(state.Moments); err == nil {
		if _, err := o.deps.Artifacts.Put(dir, artifactstore.Moments, momentsJSON); err != nil {
			return nil, o.fail(sessionID, pipelineerr.Internal, "persist", err)
		}
	}

	docExt := "md"
	if state.Session.Mode != "" {
		if prompt, err := o.deps.Prompts.Get(state.Session.Mode); err == nil && prompt.OutputFormat == capability.OutputFormatJSON {
			docExt = "json"
		}
	}
	if _, err := o.deps.Artifacts.Put(dir, artifactstore.DocName(docExt), state.Doc); err != nil {
		return nil, o.fail(sessionID, pipelineerr.Internal, "persist", err)
	}

	frames := make([]artifactstore.KeyframeInput, 0, len(state.Keyframes))
	for _, kf := range state.Keyframes {
		frames = append(frames, artifactstore.KeyframeInput{TimestampSec: kf.TimestampSec, FileName: filepath.Base(kf.Path)})
	}
	keyframeManifest := artifactstore.BuildKeyframeManifest(dir, frames)

	manifest, err := o.deps.Artifacts.Manifest(dir)
	if err != nil {
		manifest = map[string]string{}
	}

	if _, err := o.deps.Sessions.Complete(sessionID, state.Doc); err != nil {
		return nil, fmt.Errorf("completing session %s: %w", sessionID.String(), err)
	}
	o.deps.Trace.Close(sessionID)

	return &Result{
		DocPayload:         state.Doc,
		ArtifactManifest:   manifest,
		KeyframeManifest:   keyframeManifest,
		TranscriptSegments: state.Transcript,
		Moments:            state.Moments,
		STTAdapterUsed:     state.STTAdapterUsed,
		Duration:           time.Since(runStart),
	}, nil
}

// failFromStageError classifies a stage error into the session's terminal
// record, degrading in place for the two non-terminal kinds (§7).
func (o *Orchestrator) failFromStageError(sessionID models.ULID, stage string, err error) error {
	kind := pipelineerr.Internal
	var perr *pipelineerr.PipelineError
	if pe, ok := err.(*pipelineerr.PipelineError); ok {
		perr = pe
		kind = pe.Kind
	}

	if !kind.Terminal() {
		o.deps.Logger.Warn("non-terminal pipeline degradation", "session_id", sessionID.String(), "stage", stage, "kind", kind, "error", err)
		return err
	}

	if _, ferr := o.deps.Sessions.Fail(sessionID, string(kind), err.Error(), stage); ferr != nil {
		o.deps.Logger.Error("failed to record session failure", "session_id", sessionID.String(), "error", ferr)
	}
	if perr != nil {
		return perr
	}
	return pipelineerr.New(kind, stage, sessionID.String(), err)
}

func (o *Orchestrator) fail(sessionID models.ULID, kind pipelineerr.Kind, stage string, err error) error {
	if _, ferr := o.deps.Sessions.Fail(sessionID, string(kind), err.Error(), stage); ferr != nil {
		o.deps.Logger.Error("failed to record session failure", "session_id", sessionID.String(), "error", ferr)
	}
	return pipelineerr.New(kind, stage, sessionID.String(), err)
}

func (o *Orchestrator) cancelAt(sessionID models.ULID, tracer *trace.Recorder, stage string) error {
	tracer.Note(stage, "cancellation observed at stage boundary", nil)
	if _, err := o.deps.Sessions.MarkCancelledAt(sessionID, stage); err != nil {
		o.deps.Logger.Error("failed to record cancellation", "session_id", sessionID.String(), "error", err)
	}
	o.deps.Trace.Close(sessionID)
	return pipelineerr.New(pipelineerr.Cancelled, stage, sessionID.String(), nil)
}
