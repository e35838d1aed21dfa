package agent

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Descriptor tells the dispatcher how to drive one coding-agent CLI. The
// Args list may reference {model} and {prompt} placeholders; when Stdin is
// set the prompt is piped instead of passed on the command line.
type Descriptor struct {
	Name      string   `yaml:"name"`
	Binary    string   `yaml:"binary"`
	Args      []string `yaml:"args"`
	Model     string   `yaml:"model"`
	Stdin     bool     `yaml:"stdin"`
	ParseJSON bool     `yaml:"parse_json"`
}

// BuiltinBackends returns the default backend table. Models and the codex
// binary come from configuration; everything else is fixed.
func BuiltinBackends(claudeModel, codexModel, codexBinary, geminiModel string) map[string]Descriptor {
	return map[string]Descriptor{
		"claude": {
			Name:   "claude",
			Binary: "claude",
			Args: []string{
				"--print", "--output-format", "json",
				"--dangerously-skip-permissions",
				"--model", "{model}",
				"--max-turns", "30",
			},
			Model:     claudeModel,
			Stdin:     true,
			ParseJSON: true,
		},
		"codex": {
			Name:   "codex",
			Binary: codexBinary,
			Args:   []string{"exec", "--full-auto", "--model", "{model}", "{prompt}"},
			Model:  codexModel,
		},
		"gemini": {
			Name:   "gemini",
			Binary: "gemini",
			Args:   []string{"--yolo", "-m", "{model}", "-p", "{prompt}"},
			Model:  geminiModel,
		},
	}
}

// LoadBackendOverrides merges descriptors from a YAML file over the builtin
// table. Entries are matched by name; unknown names add new backends.
func LoadBackendOverrides(path string, base map[string]Descriptor) (map[string]Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading backends config %s: %w", path, err)
	}

	var file struct {
		Backends []Descriptor `yaml:"backends"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing backends config %s: %w", path, err)
	}

	out := make(map[string]Descriptor, len(base))
	for name, d := range base {
		out[name] = d
	}
	for _, d := range file.Backends {
		if d.Name == "" {
			return nil, fmt.Errorf("backends config %s: entry without a name", path)
		}
		if prev, ok := out[d.Name]; ok {
			out[d.Name] = mergeDescriptor(prev, d)
		} else {
			out[d.Name] = d
		}
	}
	return out, nil
}

func mergeDescriptor(base, over Descriptor) Descriptor {
	if over.Binary != "" {
		base.Binary = over.Binary
	}
	if len(over.Args) > 0 {
		base.Args = over.Args
		base.Stdin = over.Stdin
		base.ParseJSON = over.ParseJSON
	}
	if over.Model != "" {
		base.Model = over.Model
	}
	return base
}

// expandArgs substitutes {model} and {prompt} placeholders. When the model
// is empty, the placeholder and its preceding flag are dropped so CLIs fall
// back to their own default model.
func expandArgs(d Descriptor, prompt string) []string {
	var out []string
	for _, arg := range d.Args {
		if strings.Contains(arg, "{model}") {
			if d.Model == "" {
				if n := len(out); n > 0 && strings.HasPrefix(out[n-1], "-") {
					out = out[:n-1]
				}
				continue
			}
			arg = strings.ReplaceAll(arg, "{model}", d.Model)
		}
		if strings.Contains(arg, "{prompt}") {
			arg = strings.ReplaceAll(arg, "{prompt}", prompt)
		}
		out = append(out, arg)
	}
	return out
}

// wantsStdin reports whether the prompt should be piped rather than passed
// as an argument.
func wantsStdin(d Descriptor) bool {
	if d.Stdin {
		return true
	}
	for _, arg := range d.Args {
		if strings.Contains(arg, "{prompt}") {
			return false
		}
	}
	return true
}

// Order returns the backend names with preferred moved to the front. Names
// absent from all are ignored.
func Order(preferred string, all []string) []string {
	if preferred == "" {
		return all
	}
	out := make([]string, 0, len(all))
	found := false
	for _, name := range all {
		if name == preferred {
			found = true
			continue
		}
		out = append(out, name)
	}
	if !found {
		return all
	}
	return append([]string{preferred}, out...)
}
