// Package promptregistry loads mode-keyed PromptRecords from disk and
// resolves their `${name}` placeholders by safe substitution (§4.8, §3).
// Loaded records are immutable; Reload swaps the whole set atomically so a
// caller holding an older record never observes a partial reload, mirroring
// the copy-on-write reload semantics the spec calls for directly rather than
// any specific ancestor file — no pack example hot-reloads a template set,
// so this package's shape is new, built in the ancestor's general style of
// small, mutex-guarded, atomically-swapped in-memory registries.
package promptregistry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/jmylchreest/docweave/internal/capability"
	"gopkg.in/yaml.v3"
)

// Registry holds the currently-loaded set of PromptRecords.
type Registry struct {
	records atomic.Pointer[map[string]*capability.PromptRecord]
}

// New constructs an empty Registry. Call Load before Get.
func New() *Registry {
	r := &Registry{}
	empty := make(map[string]*capability.PromptRecord)
	r.records.Store(&empty)
	return r
}

// Load reads every *.yaml/*.yml file in dir into the registry, replacing
// any previously loaded set. Each file must decode into a single
// PromptRecord keyed by its own `id` field.
func (r *Registry) Load(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading prompt directory: %w", err)
	}

	next := make(map[string]*capability.PromptRecord, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading prompt file %s: %w", e.Name(), err)
		}
		var record capability.PromptRecord
		if err := yaml.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("parsing prompt file %s: %w", e.Name(), err)
		}
		if record.ID == "" {
			return fmt.Errorf("prompt file %s missing id", e.Name())
		}
		next[record.ID] = &record
	}

	r.records.Store(&next)
	return nil
}

// Reload is an alias for Load, named for the operation the spec calls out
// explicitly: atomically replacing the loaded set (§4.8).
func (r *Registry) Reload(dir string) error {
	return r.Load(dir)
}

// Get returns the PromptRecord for id.
func (r *Registry) Get(id string) (*capability.PromptRecord, error) {
	records := *r.records.Load()
	rec, ok := records[id]
	if !ok {
		return nil, fmt.Errorf("prompt %q not found", id)
	}
	return rec, nil
}

// Interpolate resolves `${name}` placeholders in tmpl using vars. Missing
// names substitute to the empty string; a `${` that does not close with a
// matching `}` before whitespace/newline is preserved verbatim, so templates
// can embed raw JSON braces (§3 PromptRecord invariant, §8.6).
func Interpolate(tmpl string, vars map[string]string) string {
	var out strings.Builder
	i := 0
	for i < len(tmpl) {
		start := strings.Index(tmpl[i:], "${")
		if start < 0 {
			out.WriteString(tmpl[i:])
			break
		}
		start += i
		out.WriteString(tmpl[i:start])

		end := strings.IndexByte(tmpl[start+2:], '}')
		if end < 0 {
			// No closing brace at all: preserve the rest verbatim.
			out.WriteString(tmpl[start:])
			break
		}
		name := tmpl[start+2 : start+2+end]
		if !isValidPlaceholderName(name) {
			// Not a real placeholder; preserve the literal "${" and resume
			// scanning right after it so an embedded JSON `${` is untouched.
			out.WriteString("${")
			i = start + 2
			continue
		}
		if val, ok := vars[name]; ok {
			out.WriteString(val)
		}
		i = start + 2 + end + 1
	}
	return out.String()
}

func isValidPlaceholderName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 && !isLetter {
			return false
		}
		if !isLetter && !isDigit {
			return false
		}
	}
	return true
}
