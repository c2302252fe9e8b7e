// Package template builds CloudFormation templates from synthesized resources.
package template

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	infra "github.com/cohort-modeler/cohort-infra"
)

// FormatVersion is the only CloudFormation template format version.
const FormatVersion = "2010-09-09"

// Entry is one resource ready to be placed in a template.
type Entry struct {
	LogicalID           string
	Type                string
	Properties          map[string]any
	DependsOn           []string
	DeletionPolicy      string
	UpdateReplacePolicy string
}

// Builder constructs a CloudFormation template from resource entries.
type Builder struct {
	description string
	entries     map[string]Entry
	mappings    map[string]any
	outputs     map[string]infra.Output
}

// NewBuilder creates a template builder.
func NewBuilder(description string) *Builder {
	return &Builder{
		description: description,
		entries:     make(map[string]Entry),
		mappings:    make(map[string]any),
		outputs:     make(map[string]infra.Output),
	}
}

// AddResource adds a resource entry. Logical ids must be unique.
func (b *Builder) AddResource(e Entry) error {
	if e.LogicalID == "" {
		return errors.New("resource has no logical id")
	}
	if e.Type == "" {
		return fmt.Errorf("resource %s has no type", e.LogicalID)
	}
	if _, exists := b.entries[e.LogicalID]; exists {
		return fmt.Errorf("duplicate resource %s", e.LogicalID)
	}
	b.entries[e.LogicalID] = e
	return nil
}

// AddMapping adds a Mappings table.
func (b *Builder) AddMapping(name string, table any) {
	b.mappings[name] = table
}

// AddOutput adds an output.
func (b *Builder) AddOutput(name string, out infra.Output) {
	b.outputs[name] = out
}

// Dependencies returns, for every resource, the resources it depends on
// explicitly or through Ref, Fn::GetAtt and Fn::Sub references.
func (b *Builder) Dependencies() map[string][]string {
	deps := make(map[string][]string, len(b.entries))
	for name, e := range b.entries {
		seen := make(map[string]bool)
		var list []string
		add := func(dep string) {
			if dep == name || seen[dep] {
				return
			}
			if _, ok := b.entries[dep]; !ok {
				return
			}
			seen[dep] = true
			list = append(list, dep)
		}
		for _, dep := range e.DependsOn {
			add(dep)
		}
		for _, dep := range References(e.Properties) {
			add(dep)
		}
		sort.Strings(list)
		deps[name] = list
	}
	return deps
}

// Order returns resources in dependency order.
func (b *Builder) Order() ([]string, error) {
	names := make([]string, 0, len(b.entries))
	for name := range b.entries {
		names = append(names, name)
	}
	return SortDependencies(names, b.Dependencies())
}

// Build constructs the CloudFormation template.
func (b *Builder) Build() (*infra.Template, error) {
	order, err := b.Order()
	if err != nil {
		return nil, err
	}

	for name, e := range b.entries {
		for _, dep := range e.DependsOn {
			if _, ok := b.entries[dep]; !ok {
				return nil, fmt.Errorf("%s depends on unknown resource %s", name, dep)
			}
		}
	}

	tmpl := &infra.Template{
		AWSTemplateFormatVersion: FormatVersion,
		Description:              b.description,
		Resources:                make(map[string]infra.ResourceDef, len(order)),
	}

	if len(b.mappings) > 0 {
		tmpl.Mappings = make(map[string]any, len(b.mappings))
		for name, table := range b.mappings {
			tmpl.Mappings[name] = table
		}
	}

	hasSAMResources := false
	for _, name := range order {
		e := b.entries[name]
		if IsSAMResourceType(e.Type) {
			hasSAMResources = true
		}

		tmpl.Resources[name] = infra.ResourceDef{
			Type:                e.Type,
			Properties:          e.Properties,
			DependsOn:           uniqueSorted(e.DependsOn),
			DeletionPolicy:      e.DeletionPolicy,
			UpdateReplacePolicy: e.UpdateReplacePolicy,
		}
	}

	if len(b.outputs) > 0 {
		tmpl.Outputs = make(map[string]infra.Output, len(b.outputs))
		for name, out := range b.outputs {
			tmpl.Outputs[name] = out
		}
	}

	if hasSAMResources {
		tmpl.Transform = infra.SAMTransform
	}

	return tmpl, nil
}

// SortDependencies orders nodes so that each node comes after everything it
// depends on. Ties are broken alphabetically. Dependencies on nodes not in
// the list are ignored.
func SortDependencies(nodes []string, deps map[string][]string) ([]string, error) {
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n] = true
	}

	graph := make(map[string][]string)
	inDegree := make(map[string]int)
	for _, n := range nodes {
		inDegree[n] = 0
	}
	for _, n := range nodes {
		for _, dep := range deps[n] {
			if known[dep] {
				graph[dep] = append(graph[dep], n)
				inDegree[n]++
			}
		}
	}

	// Kahn's algorithm
	var queue []string
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, neighbor := range graph[node] {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
				sort.Strings(queue)
			}
		}
	}

	if len(result) != len(inDegree) {
		return nil, detectCycle(nodes, deps, known)
	}

	return result, nil
}

// detectCycle finds and reports a cycle in the dependency graph.
func detectCycle(nodes []string, deps map[string][]string, known map[string]bool) error {
	visited := make(map[string]bool)
	onPath := make(map[string]bool)
	var stack []string
	var cycle []string

	var visit func(node string) bool
	visit = func(node string) bool {
		visited[node] = true
		onPath[node] = true
		stack = append(stack, node)

		for _, dep := range deps[node] {
			if !known[dep] {
				continue
			}
			if onPath[dep] {
				for i, n := range stack {
					if n == dep {
						cycle = append(append([]string{}, stack[i:]...), dep)
						break
					}
				}
				return true
			}
			if !visited[dep] && visit(dep) {
				return true
			}
		}

		stack = stack[:len(stack)-1]
		onPath[node] = false
		return false
	}

	sorted := append([]string{}, nodes...)
	sort.Strings(sorted)
	for _, name := range sorted {
		if !visited[name] && visit(name) {
			break
		}
	}

	if len(cycle) == 0 {
		return errors.New("circular dependency detected")
	}

	var msg strings.Builder
	msg.WriteString("circular dependency detected:\n")
	for i, name := range cycle {
		if i > 0 {
			msg.WriteString("\n    → ")
		} else {
			msg.WriteString("  ")
		}
		msg.WriteString(name)
	}
	return errors.New(msg.String())
}

var subVariable = regexp.MustCompile(`\$\{([^!}][^}]*)\}`)

// Reference kinds reported by Walk.
const (
	KindRef         = "Ref"
	KindGetAtt      = "Fn::GetAtt"
	KindSub         = "Fn::Sub"
	KindImportValue = "Fn::ImportValue"
	KindFindInMap   = "Fn::FindInMap"
)

// Walk calls fn for every Ref, Fn::GetAtt and Fn::Sub target, every literal
// Fn::ImportValue name and every literal Fn::FindInMap mapping name inside a
// serialized value. Sub targets are
// reported per ${Name} or ${Name.Attr} placeholder, skipping ${!Literal} and
// names bound by the variable map.
func Walk(v any, fn func(kind, target string)) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 1 {
			if ref, ok := val["Ref"].(string); ok {
				fn(KindRef, ref)
				return
			}
			if ga, ok := val["Fn::GetAtt"]; ok {
				switch args := ga.(type) {
				case []any:
					if len(args) > 0 {
						if name, ok := args[0].(string); ok {
							fn(KindGetAtt, name)
						}
					}
				case string:
					name, _, _ := strings.Cut(args, ".")
					fn(KindGetAtt, name)
				}
				return
			}
			if sub, ok := val["Fn::Sub"]; ok {
				walkSub(sub, fn)
				return
			}
			if imp, ok := val["Fn::ImportValue"]; ok {
				if name, ok := imp.(string); ok {
					fn(KindImportValue, name)
					return
				}
				Walk(imp, fn)
				return
			}
			if fim, ok := val["Fn::FindInMap"].([]any); ok && len(fim) > 0 {
				if name, ok := fim[0].(string); ok {
					fn(KindFindInMap, name)
				} else {
					Walk(fim[0], fn)
				}
				for _, key := range fim[1:] {
					Walk(key, fn)
				}
				return
			}
		}
		for _, nested := range val {
			Walk(nested, fn)
		}
	case []any:
		for _, nested := range val {
			Walk(nested, fn)
		}
	}
}

func walkSub(sub any, fn func(kind, target string)) {
	var str string
	vars := map[string]any{}
	switch s := sub.(type) {
	case string:
		str = s
	case []any:
		if len(s) > 0 {
			str, _ = s[0].(string)
		}
		if len(s) > 1 {
			if m, ok := s[1].(map[string]any); ok {
				vars = m
			}
		}
	}
	for _, m := range subVariable.FindAllStringSubmatch(str, -1) {
		name, _, _ := strings.Cut(m[1], ".")
		if _, isVar := vars[name]; isVar {
			continue
		}
		fn(KindSub, name)
	}
	for _, v := range vars {
		Walk(v, fn)
	}
}

// References returns the logical ids referenced by Ref, Fn::GetAtt and
// Fn::Sub inside a serialized value. Pseudo parameters are included; callers
// filter against the names they know.
func References(v any) []string {
	seen := make(map[string]bool)
	Walk(v, func(kind, target string) {
		if kind != KindImportValue && kind != KindFindInMap {
			seen[target] = true
		}
	})
	return sortedKeys(seen)
}

// Imports returns the export names read with Fn::ImportValue.
func Imports(v any) []string {
	seen := make(map[string]bool)
	Walk(v, func(kind, target string) {
		if kind == KindImportValue {
			seen[target] = true
		}
	})
	return sortedKeys(seen)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsSAMResourceType returns true for AWS::Serverless:: types.
func IsSAMResourceType(cfType string) bool {
	return strings.HasPrefix(cfType, "AWS::Serverless::")
}

// Service returns the service segment of a CloudFormation type,
// e.g. "EC2" for "AWS::EC2::VPC".
func Service(cfType string) string {
	parts := strings.Split(cfType, "::")
	if len(parts) != 3 {
		return ""
	}
	return parts[1]
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// ToJSON serializes the template to JSON.
func ToJSON(t *infra.Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

// ToYAML serializes the template to YAML.
func ToYAML(t *infra.Template) ([]byte, error) {
	return yaml.Marshal(t)
}

// Parse reads a template from JSON, falling back to YAML.
func Parse(data []byte) (*infra.Template, error) {
	var tmpl infra.Template
	if err := json.Unmarshal(data, &tmpl); err == nil {
		return &tmpl, nil
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	// Round-trip through JSON so nested maps have string keys.
	normalized, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalize template: %w", err)
	}
	if err := json.Unmarshal(normalized, &tmpl); err != nil {
		return nil, fmt.Errorf("decode template: %w", err)
	}
	return &tmpl, nil
}
