package stt

import (
	"context"
	"fmt"

	"github.com/jmylchreest/docweave/internal/capability"
)

// adapter is the subset of capability.STT the Selector needs; both
// LocalAdapter and RemoteAdapter satisfy it.
type adapter interface {
	Name() string
	Available(ctx context.Context) bool
	Transcribe(ctx context.Context, audioPath, languageHint string) ([]capability.TranscriptSegment, error)
}

// Selector implements orchestrator.STTSelector's fast/accurate/auto policy
// (§4.3): "fast" always prefers the local adapter, "accurate" always prefers
// the remote one, and "auto" prefers local when the clip is at or under
// AutoThresholdSec or the local adapter is available, remote otherwise;
// each falls back to the other adapter on failure or unavailability and
// reports that fallback happened.
type Selector struct {
	Local            adapter
	Remote           adapter
	AutoThresholdSec int
}

func NewSelector(local, remote adapter, autoThresholdSec int) *Selector {
	return &Selector{Local: local, Remote: remote, AutoThresholdSec: autoThresholdSec}
}

func (s *Selector) Transcribe(ctx context.Context, audioPath, languageHint string, pref capability.STTPreference, durationSec float64) ([]capability.TranscriptSegment, string, bool, error) {
	primary, secondary := s.order(ctx, pref, durationSec)

	segments, err := s.tryAdapter(ctx, primary, audioPath, languageHint)
	if err == nil {
		return segments, primary.Name(), false, nil
	}

	if secondary == nil {
		return nil, primary.Name(), false, err
	}

	segments, fallbackErr := s.tryAdapter(ctx, secondary, audioPath, languageHint)
	if fallbackErr != nil {
		return nil, secondary.Name(), true, fmt.Errorf("primary adapter %s failed (%w), fallback adapter %s also failed: %v", primary.Name(), err, secondary.Name(), fallbackErr)
	}
	return segments, secondary.Name(), true, nil
}

func (s *Selector) tryAdapter(ctx context.Context, a adapter, audioPath, languageHint string) ([]capability.TranscriptSegment, error) {
	if a == nil {
		return nil, fmt.Errorf("no adapter configured")
	}
	if !a.Available(ctx) {
		return nil, fmt.Errorf("adapter %s unavailable", a.Name())
	}
	return a.Transcribe(ctx, audioPath, languageHint)
}

// order picks the preferred adapter and its fallback for pref/durationSec.
func (s *Selector) order(ctx context.Context, pref capability.STTPreference, durationSec float64) (primary, secondary adapter) {
	switch pref {
	case capability.STTPreferenceFast:
		return s.Local, s.Remote
	case capability.STTPreferenceAccurate:
		return s.Remote, s.Local
	default: // auto
		if durationSec <= float64(s.AutoThresholdSec) || (s.Local != nil && s.Local.Available(ctx)) {
			return s.Local, s.Remote // short clips, or a healthy local adapter
		}
		return s.Remote, s.Local // long clips with local unavailable
	}
}
