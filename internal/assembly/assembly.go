// Package assembly writes and reads the cloud assembly directory produced by
// synthesis: a manifest, one template per stack and the staged file assets.
package assembly

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assets"
	"github.com/cohort-modeler/cohort-infra/internal/template"
)

// ManifestFile is the manifest's file name inside the assembly directory.
const ManifestFile = "manifest.json"

// ManifestVersion is written into every manifest.
const ManifestVersion = "1"

// Assembly is a synthesized application.
type Assembly struct {
	Manifest  infra.Manifest
	Templates map[string]*infra.Template
}

// Template returns the named stack's template.
func (a *Assembly) Template(stack string) (*infra.Template, bool) {
	t, ok := a.Templates[stack]
	return t, ok
}

// StackNames returns stack names in deployment order.
func (a *Assembly) StackNames() []string {
	names := make([]string, len(a.Manifest.Stacks))
	for i, s := range a.Manifest.Stacks {
		names[i] = s.Name
	}
	return names
}

// ResourceCount returns the number of resources across all templates.
func (a *Assembly) ResourceCount() int {
	n := 0
	for _, t := range a.Templates {
		n += len(t.Resources)
	}
	return n
}

// Asset returns the manifest entry for an asset id.
func (a *Assembly) Asset(id string) (infra.AssetEntry, bool) {
	for _, e := range a.Manifest.Assets {
		if e.ID == id {
			return e, true
		}
	}
	return infra.AssetEntry{}, false
}

// Select returns the named stacks plus everything they depend on, in
// deployment order. No names selects every stack.
func (a *Assembly) Select(names ...string) ([]infra.ManifestStack, error) {
	if len(names) == 0 {
		return append([]infra.ManifestStack(nil), a.Manifest.Stacks...), nil
	}

	wanted := make(map[string]bool)
	var visit func(name string) error
	visit = func(name string) error {
		if wanted[name] {
			return nil
		}
		s, ok := a.Manifest.Stack(name)
		if !ok {
			return fmt.Errorf("unknown stack %q", name)
		}
		wanted[name] = true
		for _, dep := range s.Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}
	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}

	var out []infra.ManifestStack
	for _, s := range a.Manifest.Stacks {
		if wanted[s.Name] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Write stores the assembly in dir, staging every asset next to the templates.
func (a *Assembly) Write(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create assembly dir: %w", err)
	}

	for _, s := range a.Manifest.Stacks {
		tmpl, ok := a.Templates[s.Name]
		if !ok {
			return fmt.Errorf("no template for stack %s", s.Name)
		}
		data, err := template.ToJSON(tmpl)
		if err != nil {
			return fmt.Errorf("encode %s: %w", s.Name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, s.TemplateFile), append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", s.TemplateFile, err)
		}
	}

	for _, e := range a.Manifest.Assets {
		if err := assets.Stage(e.SourcePath, dir, e.StagedPath); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(a.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n'), 0o644)
}

// Read loads an assembly written by Write.
func Read(dir string) (*Assembly, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m infra.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %q", m.Version)
	}

	a := &Assembly{Manifest: m, Templates: make(map[string]*infra.Template, len(m.Stacks))}
	for _, s := range m.Stacks {
		raw, err := os.ReadFile(filepath.Join(dir, s.TemplateFile))
		if err != nil {
			return nil, fmt.Errorf("read template for %s: %w", s.Name, err)
		}
		tmpl, err := template.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.TemplateFile, err)
		}
		a.Templates[s.Name] = tmpl
	}
	return a, nil
}

// TemplatePath returns the on-disk path of a stack's template.
func TemplatePath(dir string, s infra.ManifestStack) string {
	return filepath.Join(dir, s.TemplateFile)
}

// StagedAssetPath returns the on-disk path of a staged asset.
func StagedAssetPath(dir string, e infra.AssetEntry) string {
	return assets.StagedPath(dir, e)
}
