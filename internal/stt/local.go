// Package stt provides the local and remote speech-to-text adapters behind
// capability.STT, plus the Selector that implements orchestrator.STTSelector's
// fast/accurate/auto policy (§4.3).
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/jmylchreest/docweave/internal/capability"
)

// LocalAdapter shells out to a local speech-to-text binary (a whisper.cpp
// style CLI: reads a WAV file, writes a JSON segment array to stdout) the
// same way internal/ffmpeg's Command wraps an external ffmpeg process.
// It is the "fast" adapter of §4.3: no network round trip, bounded only by
// local CPU/GPU throughput.
type LocalAdapter struct {
	binaryPath string
	modelPath  string
	timeout    time.Duration
}

// localSegment mirrors the local binary's stdout JSON shape.
type localSegment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
}

// NewLocalAdapter constructs a LocalAdapter. An empty binaryPath defaults to
// "whisper" on PATH.
func NewLocalAdapter(binaryPath, modelPath string) *LocalAdapter {
	if binaryPath == "" {
		binaryPath = "whisper"
	}
	return &LocalAdapter{binaryPath: binaryPath, modelPath: modelPath, timeout: 5 * time.Minute}
}

func (a *LocalAdapter) Name() string { return "local" }

// Available probes the binary's presence and executable bit the same way
// ffmpeg.BinaryDetector checks for ffmpeg/ffprobe: a cheap "--help" run
// rather than a full version/codec inventory, since STT binaries have no
// equivalent codec-capability surface worth caching.
func (a *LocalAdapter) Available(ctx context.Context) bool {
	path, err := exec.LookPath(a.binaryPath)
	if err != nil {
		return false
	}
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return exec.CommandContext(checkCtx, path, "--help").Run() == nil
}

func (a *LocalAdapter) Transcribe(ctx context.Context, audioPath, languageHint string) ([]capability.TranscriptSegment, error) {
	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	args := []string{
		"--output-format", "json",
		"--file", audioPath,
	}
	if a.modelPath != "" {
		args = append(args, "--model", a.modelPath)
	}
	if languageHint != "" {
		args = append(args, "--language", languageHint)
	}

	cmd := exec.CommandContext(runCtx, a.binaryPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() != nil {
			return nil, fmt.Errorf("local transcription timed out: %w", runCtx.Err())
		}
		return nil, fmt.Errorf("local transcription failed: %w: %s", err, stderr.String())
	}

	var raw []localSegment
	if err := json.Unmarshal(stdout.Bytes(), &raw); err != nil {
		return nil, fmt.Errorf("parsing local transcription output: %w", err)
	}

	segments := make([]capability.TranscriptSegment, 0, len(raw))
	for _, s := range raw {
		segments = append(segments, capability.TranscriptSegment{
			StartSec: s.Start,
			EndSec:   s.End,
			Text:     s.Text,
			Speaker:  s.Speaker,
		})
	}
	return segments, nil
}
