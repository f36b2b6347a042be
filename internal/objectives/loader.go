// Package objectives loads reusable objective templates from the workspace
// and keeps the inbox through which other processes hand objectives to a
// running gateway.
package objectives

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned by Load for an unknown template name.
var ErrNotFound = errors.New("objective template not found")

// Requirements lists what a template needs on the host.
type Requirements struct {
	Bins []string `yaml:"bins"`
	Env  []string `yaml:"env"`
}

// Missing returns the unmet requirements, e.g. "CLI: gh", "ENV: GITHUB_TOKEN".
func (r Requirements) Missing() []string {
	var missing []string
	for _, bin := range r.Bins {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, "CLI: "+bin)
		}
	}
	for _, env := range r.Env {
		if os.Getenv(env) == "" {
			missing = append(missing, "ENV: "+env)
		}
	}
	return missing
}

// frontmatter is the YAML header of an objective file.
type frontmatter struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Fingerprint string       `yaml:"fingerprint"`
	Schedule    string       `yaml:"schedule"`
	Requires    Requirements `yaml:"requires"`
	Pages       []string     `yaml:"pages"`
}

// Template is one objective file: YAML frontmatter plus a markdown body that
// becomes the task objective.
type Template struct {
	Name        string
	Description string
	// Fingerprint overrides the fingerprint derived from the objective text.
	Fingerprint string
	// Schedule is an optional five-field cron expression used by `cron add --from`.
	Schedule string
	Requires Requirements
	// Pages are URLs whose readable text is given to the task as context.
	Pages     []string
	Objective string
	Path      string
}

// Available reports whether every requirement is met.
func (t Template) Available() bool { return len(t.Requires.Missing()) == 0 }

// Loader reads templates from <workspace>/objectives/*.md.
type Loader struct {
	dir string
}

// NewLoader creates a Loader for the workspace.
func NewLoader(workspace string) *Loader {
	return &Loader{dir: filepath.Join(workspace, "objectives")}
}

// Dir returns the template directory.
func (l *Loader) Dir() string { return l.dir }

// List returns every parseable template sorted by name. A missing directory
// yields an empty list.
func (l *Loader) List() ([]Template, error) {
	entries, err := os.ReadDir(l.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read objectives dir: %w", err)
	}

	var out []Template
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		t, err := l.read(filepath.Join(l.dir, e.Name()))
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Load returns the template called name. The file name (without .md) is
// tried first, then the frontmatter names of all templates.
func (l *Loader) Load(name string) (Template, error) {
	if t, err := l.read(filepath.Join(l.dir, name+".md")); err == nil {
		return t, nil
	}
	all, err := l.List()
	if err != nil {
		return Template{}, err
	}
	for _, t := range all {
		if t.Name == name {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %s", ErrNotFound, name)
}

func (l *Loader) read(path string) (Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Template{}, err
	}
	t, err := Parse(string(data))
	if err != nil {
		return Template{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	t.Path = path
	return t, nil
}

// Parse splits a template document into frontmatter and objective body.
// Documents without frontmatter are all body.
func Parse(content string) (Template, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	var fm frontmatter
	body := content

	if strings.HasPrefix(content, "---") {
		rest := content[3:]
		end := strings.Index(rest, "\n---")
		if end < 0 {
			return Template{}, errors.New("unterminated frontmatter")
		}
		if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
			return Template{}, fmt.Errorf("frontmatter: %w", err)
		}
		body = rest[end+4:]
	}

	objective := strings.TrimSpace(body)
	if objective == "" {
		return Template{}, errors.New("empty objective")
	}
	return Template{
		Name:        fm.Name,
		Description: fm.Description,
		Fingerprint: fm.Fingerprint,
		Schedule:    fm.Schedule,
		Requires:    fm.Requires,
		Pages:       fm.Pages,
		Objective:   objective,
	}, nil
}
