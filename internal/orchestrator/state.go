package orchestrator

import (
	"github.com/jmylchreest/docweave/internal/capability"
	"github.com/jmylchreest/docweave/internal/session"
)

// State holds all data shared between stages for one Run (replaces the
// ancestor's IPTV-shaped State: Proxy/Sources/Channels/Programs become a
// single Session plus the artifacts produced along the way).
type State struct {
	Session *session.Session
	Options Options

	RootDir    string
	SourcePath string
	ProxyPath  string
	AudioPath  string

	Probe *capability.ProbeResult

	Transcript     []capability.TranscriptSegment
	STTAdapterUsed string

	Moments []capability.RelevantMoment

	Keyframes []capability.Keyframe

	Doc []byte

	// Vars carries caller-supplied placeholder values for prompt
	// interpolation (title, attendees, keywords, ...) (§4.1 step 7).
	Vars map[string]string
}

// NewState creates the shared per-run state for sess.
func NewState(sess *session.Session, sourcePath string, opts Options) *State {
	return &State{
		Session:    sess,
		Options:    opts,
		SourcePath: sourcePath,
		Vars:       map[string]string{},
	}
}
