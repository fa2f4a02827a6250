package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/pipelineerr"
	"github.com/jmylchreest/docweave/internal/promptregistry"
)

const stageIDGenerate = "generate"

type generateStage struct {
	deps *Dependencies
}

func newGenerateStage(deps *Dependencies) Stage {
	return &generateStage{deps: deps}
}

func (s *generateStage) ID() string   { return stageIDGenerate }
func (s *generateStage) Name() string { return "Generate" }

// Execute interpolates the mode's PromptRecord, invokes the Generator, and
// validates the result against the declared OutputFormat (§4.1 step 7).
func (s *generateStage) Execute(ctx context.Context, state *State) (*StageResult, error) {
	prompt, err := s.deps.Prompts.Get(state.Session.Mode)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.OutputFormatInvalid, stageIDGenerate, state.Session.ID.String(), err)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, pipelineerr.New(pipelineerr.Cancelled, stageIDGenerate, state.Session.ID.String(), err)
	}
	defer release()

	s.populateVars(state)
	interpolated := *prompt
	interpolated.SystemInstruction = promptregistry.Interpolate(prompt.SystemInstruction, state.Vars)

	doc, err := s.deps.Generator.Generate(ctx, &interpolated, state.Keyframes, state.Transcript, state.Vars, prompt.OutputFormat)
	if err != nil {
		if ctx.Err() != nil {
			return nil, pipelineerr.New(pipelineerr.Cancelled, stageIDGenerate, state.Session.ID.String(), ctx.Err())
		}
		return nil, pipelineerr.New(pipelineerr.OutputFormatInvalid, stageIDGenerate, state.Session.ID.String(), err)
	}

	if err := validateOutputFormat(doc, prompt.OutputFormat); err != nil {
		return nil, pipelineerr.New(pipelineerr.OutputFormatInvalid, stageIDGenerate, state.Session.ID.String(), err)
	}

	state.Doc = doc
	return &StageResult{Message: fmt.Sprintf("generated %d bytes (%s)", len(doc), prompt.OutputFormat)}, nil
}

func (s *generateStage) populateVars(state *State) {
	if state.Vars == nil {
		state.Vars = map[string]string{}
	}
	state.Vars["title"] = state.Session.Title
	state.Vars["language"] = state.Session.Language
	state.Vars["segment_count"] = strconv.Itoa(len(state.Transcript))
	state.Vars["moment_count"] = strconv.Itoa(len(state.Moments))
	if state.Probe != nil {
		state.Vars["duration"] = state.Probe.DurationSec.String()
	}
	if _, ok := state.Vars["attendees"]; !ok {
		state.Vars["attendees"] = ""
	}
	if _, ok := state.Vars["keywords"]; !ok {
		state.Vars["keywords"] = ""
	}
}

func (s *generateStage) acquire(ctx context.Context) (func(), error) {
	if s.deps.Adapters == nil {
		return func() {}, nil
	}
	return s.deps.Adapters.Acquire(ctx, "llm_generator")
}

func (s *generateStage) Cleanup(ctx context.Context) error { return nil }

// validateOutputFormat enforces §4.1 step 7's "only size limits apply" rule:
// markdown is accepted as-is; a declared json format must parse after
// stripping an optional fenced-code wrapper.
func validateOutputFormat(doc []byte, format capability.OutputFormat) error {
	if format != capability.OutputFormatJSON {
		return nil
	}
	trimmed := stripFence(doc)
	var v any
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return fmt.Errorf("generated output declared json but did not parse: %w", err)
	}
	return nil
}

func stripFence(doc []byte) []byte {
	s := strings.TrimSpace(string(doc))
	if !strings.HasPrefix(s, "```") {
		return bytes.TrimSpace(doc)
	}
	lines := strings.SplitN(s, "\n", 2)
	if len(lines) < 2 {
		return bytes.TrimSpace(doc)
	}
	body := lines[1]
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return []byte(strings.TrimSpace(body))
}
