package construct

import (
	"fmt"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/intrinsics"
)

// Stack is a named, deployable collection of resources.
type Stack struct {
	app      *App
	name     string
	props    StackProps
	nodes    []*Node
	byID     map[string]*Node
	mappings []*MappingHandle
	outputs  []outputDecl
	assets   []*Asset
	deps     []*Stack
	errs     []error
}

type outputDecl struct {
	id          string
	value       any
	description string
	exportName  string
}

func newStack(app *App, name string, props StackProps) *Stack {
	return &Stack{
		app:   app,
		name:  name,
		props: props,
		byID:  make(map[string]*Node),
	}
}

// Name returns the stack name.
func (s *Stack) Name() string { return s.name }

// App returns the owning application.
func (s *Stack) App() *App { return s.app }

// Description returns the stack description.
func (s *Stack) Description() string { return s.props.Description }

// Nodes returns the stack's resources in declaration order.
func (s *Stack) Nodes() []*Node {
	return append([]*Node(nil), s.nodes...)
}

// Node returns the resource with the given logical id.
func (s *Stack) Node(id string) (*Node, bool) {
	n, ok := s.byID[id]
	return n, ok
}

func (s *Stack) errorf(format string, args ...any) {
	s.errs = append(s.errs, fmt.Errorf("%s: "+format, append([]any{s.name}, args...)...))
}

// claim reserves a logical id across resources, mappings and outputs.
func (s *Stack) claim(kind, id string) bool {
	if !logicalIDPattern.MatchString(id) {
		s.errorf("invalid %s id %q: must be 1-255 alphanumeric characters", kind, id)
		return false
	}
	if _, exists := s.byID[id]; exists {
		s.errorf("duplicate id %q", id)
		return false
	}
	for _, m := range s.mappings {
		if m.name == id {
			s.errorf("duplicate id %q", id)
			return false
		}
	}
	for _, o := range s.outputs {
		if o.id == id {
			s.errorf("duplicate id %q", id)
			return false
		}
	}
	return true
}

// Add places a resource in the stack under the given logical id.
func (s *Stack) Add(id string, resource infra.Resource) *Node {
	n := &Node{stack: s, id: id, resource: resource}
	if resource == nil {
		s.errorf("resource %q is nil", id)
		return n
	}
	if s.claim("resource", id) {
		s.byID[id] = n
		s.nodes = append(s.nodes, n)
	}
	return n
}

// AddMapping declares a Mappings table.
func (s *Stack) AddMapping(id string, table intrinsics.Mapping) *MappingHandle {
	m := &MappingHandle{stack: s, name: id, table: table}
	if len(table) == 0 {
		s.errorf("mapping %q is empty", id)
	}
	if s.claim("mapping", id) {
		s.mappings = append(s.mappings, m)
	}
	return m
}

// AddOutput declares a stack output.
func (s *Stack) AddOutput(id string, value any, description string) {
	if s.claim("output", id) {
		s.outputs = append(s.outputs, outputDecl{id: id, value: value, description: description})
	}
}

// AddExportedOutput declares a stack output exported under the given name.
func (s *Stack) AddExportedOutput(id string, value any, description, exportName string) {
	if exportName == "" {
		s.errorf("output %q has an empty export name", id)
		return
	}
	if s.claim("output", id) {
		s.outputs = append(s.outputs, outputDecl{id: id, value: value, description: description, exportName: exportName})
	}
}

// AddAsset declares a local file to be published to the asset bucket.
// The path is resolved against the application's asset directory.
func (s *Stack) AddAsset(id, path string) *Asset {
	a := &Asset{stack: s, id: id, path: path}
	if path == "" {
		s.errorf("asset %q has no path", id)
		return a
	}
	if !logicalIDPattern.MatchString(id) {
		s.errorf("invalid asset id %q", id)
		return a
	}
	for _, existing := range s.assets {
		if existing.id == id {
			s.errorf("duplicate asset %q", id)
			return a
		}
	}
	s.assets = append(s.assets, a)
	return a
}

// Assets returns the stack's assets in declaration order.
func (s *Stack) Assets() []*Asset {
	return append([]*Asset(nil), s.assets...)
}

// AddDependency orders this stack after the given stacks.
func (s *Stack) AddDependency(stacks ...*Stack) {
	for _, dep := range stacks {
		s.dependOn(dep)
	}
}

func (s *Stack) dependOn(dep *Stack) {
	if dep == nil || dep == s {
		return
	}
	for _, existing := range s.deps {
		if existing == dep {
			return
		}
	}
	s.deps = append(s.deps, dep)
}

// Dependencies returns the names of the stacks declared with AddDependency.
// Dependencies implied by cross-stack references appear in the manifest.
func (s *Stack) Dependencies() []string {
	names := make([]string, len(s.deps))
	for i, d := range s.deps {
		names[i] = d.name
	}
	return names
}
