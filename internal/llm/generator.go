package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/remoteclient"
)

// Generator synthesizes the final document from keyframes and transcript
// via a remote LLM (§4.6). It retries once on transport failure; format
// validation (fence-stripping, JSON parse) is stage_generate's job, not
// this adapter's, since the stage needs to see the raw bytes either way.
type Generator struct {
	client     *remoteclient.Client
	model      string
	maxRetries int
}

func NewGenerator(client *remoteclient.Client, model string, maxRetries int) *Generator {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Generator{client: client, model: model, maxRetries: maxRetries}
}

type generateKeyframe struct {
	TimestampSec float64 `json:"timestamp_sec"`
	Label        string  `json:"label,omitempty"`
	ImageB64     string  `json:"image_base64"`
}

type generateRequest struct {
	Model             string                         `json:"model"`
	SystemInstruction string                         `json:"system_instruction"`
	Guidelines        []string                       `json:"guidelines,omitempty"`
	OutputFormat      capability.OutputFormat        `json:"output_format"`
	Vars              map[string]string              `json:"vars,omitempty"`
	Transcript        []capability.TranscriptSegment `json:"transcript"`
	Keyframes         []generateKeyframe              `json:"keyframes"`
}

type generateResponse struct {
	Document string `json:"document"`
}

func (g *Generator) Generate(ctx context.Context, prompt *capability.PromptRecord, keyframes []capability.Keyframe, transcript []capability.TranscriptSegment, vars map[string]string, format capability.OutputFormat) ([]byte, error) {
	frames, err := encodeKeyframes(keyframes)
	if err != nil {
		return nil, err
	}

	req := generateRequest{
		Model:        g.model,
		OutputFormat: format,
		Vars:         vars,
		Transcript:   transcript,
		Keyframes:    frames,
	}
	if prompt != nil {
		req.SystemInstruction = prompt.SystemInstruction
		req.Guidelines = prompt.Guidelines
	}

	var resp generateResponse
	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		lastErr = g.client.PostJSON(ctx, "/v1/generate", req, &resp)
		if lastErr == nil {
			return []byte(resp.Document), nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < g.maxRetries {
			time.Sleep(retryBackoff(attempt))
		}
	}
	return nil, fmt.Errorf("document generation failed after %d attempt(s): %w", g.maxRetries+1, lastErr)
}

func encodeKeyframes(keyframes []capability.Keyframe) ([]generateKeyframe, error) {
	out := make([]generateKeyframe, 0, len(keyframes))
	for _, k := range keyframes {
		data, err := os.ReadFile(k.Path)
		if err != nil {
			return nil, fmt.Errorf("reading keyframe %s: %w", k.Path, err)
		}
		out = append(out, generateKeyframe{
			TimestampSec: k.TimestampSec,
			Label:        k.Label,
			ImageB64:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return out, nil
}
