// Package llm provides the RelevanceAnalyzer and Generator adapters behind
// capability.RelevanceAnalyzer/capability.Generator, both built on
// internal/remoteclient's resilient JSON transport (§4.4, §4.6).
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/remoteclient"
)

// RelevanceAnalyzer asks a remote LLM which transcript/video intervals are
// worth visualizing. It retries once on failure or a schema-invalid
// response and then surfaces the error, trusting stage_select_moments's own
// whole-video degenerate fallback rather than inventing a second one here.
type RelevanceAnalyzer struct {
	client     *remoteclient.Client
	model      string
	maxRetries int
}

func NewRelevanceAnalyzer(client *remoteclient.Client, model string, maxRetries int) *RelevanceAnalyzer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RelevanceAnalyzer{client: client, model: model, maxRetries: maxRetries}
}

type relevanceRequest struct {
	Model        string                         `json:"model"`
	ProxyVideo   string                         `json:"proxy_video_path"`
	Transcript   []capability.TranscriptSegment `json:"transcript"`
	HintKeywords []string                       `json:"hint_keywords,omitempty"`
	System       string                         `json:"system_instruction,omitempty"`
	Guidelines   []string                       `json:"guidelines,omitempty"`
}

// relevanceResponse is the JSON schema the remote service must satisfy: an
// object whose "moments" field is an array of moments, each with a
// non-empty interval.
type relevanceResponse struct {
	Moments []capability.RelevantMoment `json:"moments"`
}

func (a *RelevanceAnalyzer) Analyze(ctx context.Context, proxyVideoPath string, transcript []capability.TranscriptSegment, hintKeywords []string, prompt *capability.PromptRecord) ([]capability.RelevantMoment, error) {
	req := relevanceRequest{
		Model:        a.model,
		ProxyVideo:   proxyVideoPath,
		Transcript:   transcript,
		HintKeywords: hintKeywords,
	}
	if prompt != nil {
		req.System = prompt.SystemInstruction
		req.Guidelines = prompt.Guidelines
	}

	var resp relevanceResponse
	var err error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		err = a.client.PostJSON(ctx, "/v1/relevance", req, &resp)
		if err == nil {
			if validateMoments(resp.Moments) == nil {
				return resp.Moments, nil
			}
			err = validateMoments(resp.Moments)
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < a.maxRetries {
			time.Sleep(retryBackoff(attempt))
		}
	}
	return nil, fmt.Errorf("relevance analysis failed after %d attempt(s): %w", a.maxRetries+1, err)
}

// validateMoments enforces the response schema: every moment must have a
// positive-width interval, the minimum a consumer can act on.
func validateMoments(moments []capability.RelevantMoment) error {
	for i, m := range moments {
		if m.EndSec <= m.StartSec {
			return fmt.Errorf("moment %d has non-positive duration [%.2f, %.2f]", i, m.StartSec, m.EndSec)
		}
	}
	return nil
}

func retryBackoff(attempt int) time.Duration {
	return time.Duration(attempt+1) * 500 * time.Millisecond
}
