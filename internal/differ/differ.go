// Package differ provides semantic comparison of CloudFormation templates and
// cloud assemblies.
package differ

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assembly"
	"github.com/cohort-modeler/cohort-infra/internal/template"
)

// Template sections reported in DiffEntry.Section.
const (
	SectionStack     = "Stack"
	SectionResources = "Resources"
	SectionOutputs   = "Outputs"
	SectionMappings  = "Mappings"
)

// Options configures the differ.
type Options struct {
	// IgnoreOrder ignores array element order in comparisons
	IgnoreOrder bool
}

// Result contains the difference between two templates.
type Result struct {
	Diff    infra.TemplateDiff
	Summary infra.DiffSummary
}

// Compare compares two CloudFormation templates and returns differences.
func Compare(template1, template2 *infra.Template, opts Options) (*Result, error) {
	if template1 == nil || template2 == nil {
		return nil, errors.New("compare: nil template")
	}
	result := &Result{}
	compareTemplates(&result.Diff, "", template1, template2, opts)
	result.finish()
	return result, nil
}

// CompareFiles compares two template files.
func CompareFiles(file1, file2 string, opts Options) (*Result, error) {
	t1, err := LoadTemplate(file1)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file1, err)
	}

	t2, err := LoadTemplate(file2)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", file2, err)
	}

	return Compare(t1, t2, opts)
}

// CompareAssemblies compares every stack of two assemblies. Stacks present in
// only one of them are reported as whole-stack additions or removals.
func CompareAssemblies(prev, next *assembly.Assembly, opts Options) (*Result, error) {
	if prev == nil || next == nil {
		return nil, errors.New("compare: nil assembly")
	}
	result := &Result{}

	names := make(map[string]bool)
	for name := range prev.Templates {
		names[name] = true
	}
	for name := range next.Templates {
		names[name] = true
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		t1, inOld := prev.Templates[name]
		t2, inNew := next.Templates[name]
		switch {
		case !inOld:
			result.Diff.Added = append(result.Diff.Added, infra.DiffEntry{
				Stack:   name,
				Section: SectionStack,
				Name:    name,
				Changes: []string{fmt.Sprintf("%d resources", len(t2.Resources))},
			})
		case !inNew:
			result.Diff.Removed = append(result.Diff.Removed, infra.DiffEntry{
				Stack:   name,
				Section: SectionStack,
				Name:    name,
				Changes: []string{fmt.Sprintf("%d resources", len(t1.Resources))},
			})
		default:
			compareTemplates(&result.Diff, name, t1, t2, opts)
		}
	}

	result.finish()
	return result, nil
}

// CompareDirs reads two assembly directories and compares them.
func CompareDirs(dir1, dir2 string, opts Options) (*Result, error) {
	a1, err := assembly.Read(dir1)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", dir1, err)
	}
	a2, err := assembly.Read(dir2)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", dir2, err)
	}
	return CompareAssemblies(a1, a2, opts)
}

// LoadTemplate loads a CloudFormation template from a file.
func LoadTemplate(path string) (*infra.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return template.Parse(data)
}

func (r *Result) finish() {
	sortEntries(r.Diff.Added)
	sortEntries(r.Diff.Removed)
	sortEntries(r.Diff.Modified)

	r.Summary = infra.DiffSummary{
		Added:    len(r.Diff.Added),
		Removed:  len(r.Diff.Removed),
		Modified: len(r.Diff.Modified),
	}
	r.Summary.Total = r.Summary.Added + r.Summary.Removed + r.Summary.Modified
}

func compareTemplates(diff *infra.TemplateDiff, stack string, t1, t2 *infra.Template, opts Options) {
	if t1.Transform != t2.Transform {
		diff.Modified = append(diff.Modified, infra.DiffEntry{
			Stack:   stack,
			Section: SectionStack,
			Name:    "Transform",
			Changes: []string{fmt.Sprintf("Transform changed: %q → %q", t1.Transform, t2.Transform)},
		})
	}

	// Resources
	for name, def := range t2.Resources {
		if _, exists := t1.Resources[name]; !exists {
			diff.Added = append(diff.Added, infra.DiffEntry{Stack: stack, Section: SectionResources, Name: name, Type: def.Type})
		}
	}
	for name, def := range t1.Resources {
		def2, exists := t2.Resources[name]
		if !exists {
			diff.Removed = append(diff.Removed, infra.DiffEntry{Stack: stack, Section: SectionResources, Name: name, Type: def.Type})
			continue
		}
		if changes := compareResources(def, def2, opts); len(changes) > 0 {
			diff.Modified = append(diff.Modified, infra.DiffEntry{Stack: stack, Section: SectionResources, Name: name, Type: def.Type, Changes: changes})
		}
	}

	// Outputs
	for name := range t2.Outputs {
		if _, exists := t1.Outputs[name]; !exists {
			diff.Added = append(diff.Added, infra.DiffEntry{Stack: stack, Section: SectionOutputs, Name: name})
		}
	}
	for name, out1 := range t1.Outputs {
		out2, exists := t2.Outputs[name]
		if !exists {
			diff.Removed = append(diff.Removed, infra.DiffEntry{Stack: stack, Section: SectionOutputs, Name: name})
			continue
		}
		if changes := compareOutputs(out1, out2, opts); len(changes) > 0 {
			diff.Modified = append(diff.Modified, infra.DiffEntry{Stack: stack, Section: SectionOutputs, Name: name, Changes: changes})
		}
	}

	// Mappings
	for name := range t2.Mappings {
		if _, exists := t1.Mappings[name]; !exists {
			diff.Added = append(diff.Added, infra.DiffEntry{Stack: stack, Section: SectionMappings, Name: name})
		}
	}
	for name, m1 := range t1.Mappings {
		m2, exists := t2.Mappings[name]
		if !exists {
			diff.Removed = append(diff.Removed, infra.DiffEntry{Stack: stack, Section: SectionMappings, Name: name})
			continue
		}
		if changes := compareValues("", normalizeJSON(m1), normalizeJSON(m2), opts); len(changes) > 0 {
			diff.Modified = append(diff.Modified, infra.DiffEntry{Stack: stack, Section: SectionMappings, Name: name, Changes: changes})
		}
	}
}

// compareResources compares two resource definitions and returns changes.
func compareResources(def1, def2 infra.ResourceDef, opts Options) []string {
	var changes []string

	if def1.Type != def2.Type {
		changes = append(changes, fmt.Sprintf("Type changed: %s → %s", def1.Type, def2.Type))
	}

	changes = append(changes, compareProperties("", def1.Properties, def2.Properties, opts)...)

	if !equalStringSet(def1.DependsOn, def2.DependsOn) {
		changes = append(changes, "DependsOn changed")
	}
	if def1.DeletionPolicy != def2.DeletionPolicy {
		changes = append(changes, fmt.Sprintf("DeletionPolicy changed: %q → %q", def1.DeletionPolicy, def2.DeletionPolicy))
	}
	if def1.UpdateReplacePolicy != def2.UpdateReplacePolicy {
		changes = append(changes, fmt.Sprintf("UpdateReplacePolicy changed: %q → %q", def1.UpdateReplacePolicy, def2.UpdateReplacePolicy))
	}

	return changes
}

func compareOutputs(out1, out2 infra.Output, opts Options) []string {
	var changes []string
	if !deepEqual(normalizeJSON(out1.Value), normalizeJSON(out2.Value), opts) {
		changes = append(changes, "Value modified")
	}
	if out1.Description != out2.Description {
		changes = append(changes, "Description modified")
	}
	if exportName(out1) != exportName(out2) {
		changes = append(changes, fmt.Sprintf("Export changed: %q → %q", exportName(out1), exportName(out2)))
	}
	return changes
}

func exportName(o infra.Output) string {
	if o.Export == nil {
		return ""
	}
	return o.Export.Name
}

// compareProperties recursively compares property maps.
func compareProperties(prefix string, props1, props2 map[string]any, opts Options) []string {
	var changes []string

	for key, val2 := range props2 {
		path := joinPath(prefix, key)
		val1, exists := props1[key]
		if !exists {
			changes = append(changes, fmt.Sprintf("%s added", path))
			continue
		}
		changes = append(changes, compareValues(path, normalizeJSON(val1), normalizeJSON(val2), opts)...)
	}

	for key := range props1 {
		if _, exists := props2[key]; !exists {
			changes = append(changes, fmt.Sprintf("%s removed", joinPath(prefix, key)))
		}
	}

	sort.Strings(changes)
	return changes
}

// compareValues descends into nested objects so changes name the deepest
// differing property. Anything else is compared as a whole.
func compareValues(path string, v1, v2 any, opts Options) []string {
	m1, ok1 := v1.(map[string]any)
	m2, ok2 := v2.(map[string]any)
	if ok1 && ok2 && !isIntrinsic(m1) && !isIntrinsic(m2) {
		return compareProperties(path, m1, m2, opts)
	}
	if deepEqual(v1, v2, opts) {
		return nil
	}
	if path == "" {
		return []string{"modified"}
	}
	return []string{fmt.Sprintf("%s modified", path)}
}

func isIntrinsic(m map[string]any) bool {
	if len(m) != 1 {
		return false
	}
	for k := range m {
		return k == "Ref" || strings.HasPrefix(k, "Fn::")
	}
	return false
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// deepEqual compares two values deeply, optionally ignoring order.
func deepEqual(a, b any, opts Options) bool {
	if opts.IgnoreOrder {
		a = normalizeOrder(a)
		b = normalizeOrder(b)
	}
	return reflect.DeepEqual(a, b)
}

// normalizeJSON converts typed values (structs, typed slices, ints) to the
// generic form produced by decoding JSON, so synthesized and loaded
// templates compare equal.
func normalizeJSON(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// normalizeOrder sorts arrays by their JSON encoding.
func normalizeOrder(v any) any {
	switch val := v.(type) {
	case []any:
		result := make([]any, len(val))
		for i, item := range val {
			result[i] = normalizeOrder(item)
		}
		sort.SliceStable(result, func(i, j int) bool {
			return encoded(result[i]) < encoded(result[j])
		})
		return result
	case map[string]any:
		result := make(map[string]any, len(val))
		for k, v := range val {
			result[k] = normalizeOrder(v)
		}
		return result
	default:
		return v
	}
}

func encoded(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}

// equalStringSet compares two string slices ignoring order.
func equalStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

// sortEntries sorts diff entries by stack, section and name.
func sortEntries(entries []infra.DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Stack != b.Stack {
			return a.Stack < b.Stack
		}
		if a.Section != b.Section {
			return a.Section < b.Section
		}
		return a.Name < b.Name
	})
}
