package stt

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/remoteclient"
)

// RemoteAdapter calls a hosted speech-to-text service. It is the
// "accurate" adapter of §4.3: higher quality, but subject to network
// latency and the remote client's circuit breaker.
type RemoteAdapter struct {
	client *remoteclient.Client
}

func NewRemoteAdapter(client *remoteclient.Client) *RemoteAdapter {
	return &RemoteAdapter{client: client}
}

func (a *RemoteAdapter) Name() string { return "remote" }

func (a *RemoteAdapter) Available(ctx context.Context) bool {
	return a.client.Available()
}

type remoteTranscribeRequest struct {
	AudioB64     string `json:"audio_base64"`
	LanguageHint string `json:"language_hint,omitempty"`
}

type remoteTranscribeResponse struct {
	Segments []capability.TranscriptSegment `json:"segments"`
}

func (a *RemoteAdapter) Transcribe(ctx context.Context, audioPath, languageHint string) ([]capability.TranscriptSegment, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("reading audio for remote transcription: %w", err)
	}

	req := remoteTranscribeRequest{
		AudioB64:     base64.StdEncoding.EncodeToString(data),
		LanguageHint: languageHint,
	}
	var resp remoteTranscribeResponse
	if err := a.client.PostJSON(ctx, "/v1/transcribe", req, &resp); err != nil {
		return nil, fmt.Errorf("remote transcription: %w", err)
	}
	return resp.Segments, nil
}
