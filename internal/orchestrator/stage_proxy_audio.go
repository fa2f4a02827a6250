package orchestrator

import (
	"context"
	"errors"

	"github.com/jmylchreest/docweave/internal/artifactstore"
	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/pipelineerr"
)

const stageIDProxyAudio = "proxy_audio"

// ErrNoAudioTrack aliases capability.ErrNoAudioTrack so existing callers in
// this package don't need to import capability just for the sentinel.
var ErrNoAudioTrack = capability.ErrNoAudioTrack

type proxyAudioStage struct {
	deps *Dependencies
}

func newProxyAudioStage(deps *Dependencies) Stage {
	return &proxyAudioStage{deps: deps}
}

func (s *proxyAudioStage) ID() string   { return stageIDProxyAudio }
func (s *proxyAudioStage) Name() string { return "Proxy + Audio" }

func (s *proxyAudioStage) Execute(ctx context.Context, state *State) (*StageResult, error) {
	proxyPath, err := s.deps.Artifacts.Path(state.RootDir, artifactstore.Proxy)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.PreprocessingFailed, stageIDProxyAudio, state.Session.ID.String(), err)
	}

	fps := s.deps.Config.Pipeline.ProxyFPS
	longEdge := s.deps.Config.Pipeline.ProxyLongEdgePx
	if err := s.deps.Transcoder.BuildProxy(ctx, state.SourcePath, proxyPath, fps, longEdge); err != nil {
		return nil, pipelineerr.New(pipelineerr.PreprocessingFailed, stageIDProxyAudio, state.Session.ID.String(), err)
	}
	state.ProxyPath = proxyPath

	audioPath, err := s.deps.Artifacts.Path(state.RootDir, artifactstore.Audio)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.PreprocessingFailed, stageIDProxyAudio, state.Session.ID.String(), err)
	}
	if err := s.deps.Transcoder.ExtractAudio(ctx, state.SourcePath, audioPath); err != nil {
		if errors.Is(err, ErrNoAudioTrack) {
			s.deps.Trace.For(state.Session.ID).Note(stageIDProxyAudio, "no audio track, proceeding with empty transcript", nil)
			return &StageResult{Message: "no audio track"}, nil
		}
		return nil, pipelineerr.New(pipelineerr.PreprocessingFailed, stageIDProxyAudio, state.Session.ID.String(), err)
	}
	state.AudioPath = audioPath

	return &StageResult{Message: "proxy and audio extracted"}, nil
}

func (s *proxyAudioStage) Cleanup(ctx context.Context) error { return nil }
