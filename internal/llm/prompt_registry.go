package llm

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/graphrag/orchestrator/domain"
)

// PromptNotFoundError reports a lookup for a prompt name/version that was
// never registered.
type PromptNotFoundError struct {
	Name    string
	Version string
}

func (e *PromptNotFoundError) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("prompt registry: no version registered for %q", e.Name)
	}
	return fmt.Sprintf("prompt registry: %q version %q not found", e.Name, e.Version)
}

// PromptRegistry holds versioned PromptTemplates loaded from YAML files,
// grounded on prompt_registry.py. It never mutates a registered template in
// place: a new version is simply registered alongside the old ones, and
// callers pin a version explicitly or take GetLatest.
type PromptRegistry struct {
	mu        sync.RWMutex
	templates map[string]map[string]domain.PromptTemplate // name -> version -> template
	latest    map[string]string                            // name -> latest version seen
}

// NewPromptRegistry constructs an empty registry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{
		templates: make(map[string]map[string]domain.PromptTemplate),
		latest:    make(map[string]string),
	}
}

// Register adds a template, overwriting only if the exact same
// (name, version) pair is registered twice.
func (r *PromptRegistry) Register(tpl domain.PromptTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.templates[tpl.Name] == nil {
		r.templates[tpl.Name] = make(map[string]domain.PromptTemplate)
	}
	r.templates[tpl.Name][tpl.Version] = tpl
	r.latest[tpl.Name] = tpl.Version
}

// Get returns the exact (name, version) template.
func (r *PromptRegistry) Get(name, version string) (domain.PromptTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions, ok := r.templates[name]
	if !ok {
		return domain.PromptTemplate{}, &PromptNotFoundError{Name: name}
	}
	tpl, ok := versions[version]
	if !ok {
		return domain.PromptTemplate{}, &PromptNotFoundError{Name: name, Version: version}
	}
	return tpl, nil
}

// GetLatest returns the most recently registered version of name.
func (r *PromptRegistry) GetLatest(name string) (domain.PromptTemplate, error) {
	r.mu.RLock()
	version, ok := r.latest[name]
	r.mu.RUnlock()
	if !ok {
		return domain.PromptTemplate{}, &PromptNotFoundError{Name: name}
	}
	return r.Get(name, version)
}

// GetActive resolves the template that should be used right now: pinned
// version if given and non-empty, otherwise the latest.
func (r *PromptRegistry) GetActive(name, pinnedVersion string) (domain.PromptTemplate, error) {
	if pinnedVersion != "" {
		return r.Get(name, pinnedVersion)
	}
	return r.GetLatest(name)
}

// ListNames returns every registered template name.
func (r *PromptRegistry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	return names
}

// promptFile is the on-disk YAML shape: one file may hold multiple
// versions of the same named prompt.
type promptFile struct {
	Name     string                  `yaml:"name"`
	Versions []promptFileVersion     `yaml:"versions"`
}

type promptFileVersion struct {
	Version string `yaml:"version"`
	System  string `yaml:"system"`
	Human   string `yaml:"human"`
}

// LoadFile parses one YAML prompt file and registers every version it
// defines.
func (r *PromptRegistry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var pf promptFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("prompt registry: parse %s: %w", path, err)
	}
	for _, v := range pf.Versions {
		r.Register(domain.PromptTemplate{
			Name:    pf.Name,
			Version: v.Version,
			System:  v.System,
			Human:   v.Human,
		})
	}
	return nil
}

// LoadDirectory registers every *.yaml/*.yml file under dir, per
// prompt_registry.py's from_directory classmethod. A missing template that
// a component expects to find at startup is a config violation, left for
// the caller to detect via GetActive's error return.
func (r *PromptRegistry) LoadDirectory(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := r.LoadFile(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
