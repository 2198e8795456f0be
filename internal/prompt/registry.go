package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// Registry holds named prompt templates. Template content is opaque to the
// pipeline; steps render by name with step-specific data. Templates come
// from built-in defaults, overridden by *.tmpl files in an optional
// directory.
type Registry struct {
	mu   sync.RWMutex
	dir  string
	tmpl map[string]*template.Template
	raw  map[string]string
}

// NewRegistry creates a registry seeded with the built-in defaults and, if
// dir is non-empty, overlaid with the templates found there.
func NewRegistry(dir string) (*Registry, error) {
	r := &Registry{
		dir:  dir,
		tmpl: make(map[string]*template.Template),
		raw:  make(map[string]string),
	}
	for name, text := range defaults {
		if err := r.set(name, text); err != nil {
			return nil, fmt.Errorf("default template %q: %w", name, err)
		}
	}
	if dir != "" {
		if err := r.loadDir(); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) set(name, text string) error {
	t, err := template.New(name).Parse(text)
	if err != nil {
		return err
	}
	r.tmpl[name] = t
	r.raw[name] = text
	return nil
}

func (r *Registry) loadDir() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("read prompt dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".tmpl") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read prompt %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ".tmpl")
		if err := r.set(name, string(data)); err != nil {
			return fmt.Errorf("parse prompt %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Get returns the raw template text.
func (r *Registry) Get(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw, ok := r.raw[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	return raw, nil
}

// Render executes the named template with data.
func (r *Registry) Render(name string, data any) (string, error) {
	r.mu.RLock()
	t, ok := r.tmpl[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return sb.String(), nil
}

// List returns the registered template names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.raw))
	for name := range r.raw {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reload re-reads the template directory, replacing the current set.
// Built-in defaults stay available for names not present on disk.
func (r *Registry) Reload() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tmpl = make(map[string]*template.Template)
	r.raw = make(map[string]string)
	for name, text := range defaults {
		if err := r.set(name, text); err != nil {
			return err
		}
	}
	if r.dir == "" {
		return nil
	}
	return r.loadDir()
}

// Validate re-parses every registered template from its raw text, catching
// syntax damage after an edit-and-Reload cycle.
func (r *Registry) Validate() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for name, raw := range r.raw {
		if _, err := template.New(name).Parse(raw); err != nil {
			return fmt.Errorf("template %q failed validation: %w", name, err)
		}
	}
	return nil
}
