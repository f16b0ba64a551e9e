// Package prompts loads the stage prompt templates and renders them by
// simple token substitution.
package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed defaults/*.txt
var defaultFS embed.FS

// SystemPrompt is the fixed system instruction for every model call.
const SystemPrompt = "You are a helpful research assistant. Return JSON only."

const (
	planFile       = "plan_prompt.txt"
	reflectFile    = "reflect_prompt.txt"
	synthesizeFile = "synthesize_prompt.txt"
)

// Library holds the three stage templates for one process lifetime.
type Library struct {
	plan       string
	reflect    string
	synthesize string
}

// Load returns the embedded default templates, or, when dir is non-empty,
// the templates read from that directory. Overriding is all-or-nothing: a
// partial directory is an error rather than a silent mix.
func Load(dir string) (*Library, error) {
	if dir == "" {
		return loadEmbedded()
	}

	lib := &Library{}
	for _, spec := range []struct {
		name string
		dst  *string
	}{
		{planFile, &lib.plan},
		{reflectFile, &lib.reflect},
		{synthesizeFile, &lib.synthesize},
	} {
		data, err := os.ReadFile(filepath.Join(dir, spec.name))
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", spec.name, err)
		}
		*spec.dst = string(data)
	}
	return lib, nil
}

func loadEmbedded() (*Library, error) {
	lib := &Library{}
	for _, spec := range []struct {
		name string
		dst  *string
	}{
		{planFile, &lib.plan},
		{reflectFile, &lib.reflect},
		{synthesizeFile, &lib.synthesize},
	} {
		data, err := defaultFS.ReadFile("defaults/" + spec.name)
		if err != nil {
			return nil, fmt.Errorf("read embedded prompt %s: %w", spec.name, err)
		}
		*spec.dst = string(data)
	}
	return lib, nil
}

// Vars are the substitution values for one render. Absent tokens render as
// empty strings.
type Vars struct {
	Task          string
	Sources       string
	FailedQueries string
}

func render(template string, vars Vars) string {
	return strings.NewReplacer(
		"{{TASK}}", vars.Task,
		"{{SOURCES}}", vars.Sources,
		"{{FAILED_QUERIES}}", vars.FailedQueries,
	).Replace(template)
}

// Plan renders the planning prompt.
func (l *Library) Plan(vars Vars) string { return render(l.plan, vars) }

// Reflect renders the reflection prompt.
func (l *Library) Reflect(vars Vars) string { return render(l.reflect, vars) }

// Synthesize renders the synthesis prompt.
func (l *Library) Synthesize(vars Vars) string { return render(l.synthesize, vars) }
