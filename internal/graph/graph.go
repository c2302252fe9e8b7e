// Package graph renders the resources of a cloud assembly and the references
// between them as DOT or Mermaid dependency graphs.
package graph

import (
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/emicklei/dot"

	"github.com/cohort-modeler/cohort-infra/internal/assembly"
	"github.com/cohort-modeler/cohort-infra/internal/template"
)

// Format specifies the output format for the graph.
type Format string

const (
	// FormatDOT outputs Graphviz DOT format.
	FormatDOT Format = "dot"
	// FormatMermaid outputs Mermaid format for GitHub/markdown rendering.
	FormatMermaid Format = "mermaid"
)

// Cluster selects how resource nodes are grouped.
type Cluster string

const (
	ClusterNone    Cluster = ""
	ClusterStack   Cluster = "stack"
	ClusterService Cluster = "service"
)

// Generator creates dependency graphs from a synthesized assembly.
type Generator struct {
	// Format specifies the output format (dot or mermaid). Defaults to dot.
	Format Format

	// Cluster groups resources by stack or by AWS service.
	Cluster Cluster

	// StackLevel draws one node per stack with the stack dependencies as edges.
	StackLevel bool
}

var unsafeID = regexp.MustCompile(`[^A-Za-z0-9]`)

// NodeID is the graph id of a resource.
func NodeID(stack, logicalID string) string {
	return StackID(stack) + "__" + logicalID
}

// StackID is the graph id of a stack.
func StackID(stack string) string {
	return unsafeID.ReplaceAllString(stack, "_")
}

// Generate creates a dependency graph and writes it to w.
func (g *Generator) Generate(asm *assembly.Assembly, w io.Writer) error {
	var graph *dot.Graph
	if g.StackLevel {
		graph = g.stackGraph(asm)
	} else {
		graph = g.resourceGraph(asm)
	}

	var output string
	if g.Format == FormatMermaid {
		output = dot.MermaidGraph(graph, dot.MermaidTopToBottom)
	} else {
		output = graph.String()
	}

	_, err := io.WriteString(w, output)
	return err
}

// GenerateString is a convenience method that returns the graph as a string.
func (g *Generator) GenerateString(asm *assembly.Assembly) (string, error) {
	var sb strings.Builder
	if err := g.Generate(asm, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// label joins two label lines. Mermaid node text must stay on one line.
func (g *Generator) label(first, second string) string {
	if g.Format == FormatMermaid {
		return first + " " + second
	}
	return first + "\n" + second
}

func newGraph() *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "TB")
	graph.NodeInitializer(func(n dot.Node) {
		n.Attr("shape", "box")
		n.Attr("fontname", "Arial")
	})
	graph.EdgeInitializer(func(e dot.Edge) {
		e.Attr("fontname", "Arial")
		e.Attr("fontsize", "10")
	})
	return graph
}

func (g *Generator) stackGraph(asm *assembly.Assembly) *dot.Graph {
	graph := newGraph()
	for _, s := range asm.Manifest.Stacks {
		n := graph.Node(StackID(s.Name))
		label := s.Name
		if tmpl, ok := asm.Template(s.Name); ok {
			label = g.label(label, "("+strconv.Itoa(len(tmpl.Resources))+" resources)")
		}
		n.Label(label)
	}
	for _, s := range asm.Manifest.Stacks {
		for _, dep := range s.Dependencies {
			graph.Edge(graph.Node(StackID(s.Name)), graph.Node(StackID(dep)))
		}
	}
	return graph
}

type edgeKind int

const (
	edgeDependsOn edgeKind = iota
	edgeRef
	edgeGetAtt
	edgeImport
)

type target struct {
	stack string
	id    string
}

func (g *Generator) resourceGraph(asm *assembly.Assembly) *dot.Graph {
	graph := newGraph()
	exports := exportTargets(asm)
	nodes := make(map[target]dot.Node)

	// nodes
	byService := make(map[string][]target)
	for _, s := range asm.Manifest.Stacks {
		tmpl, ok := asm.Template(s.Name)
		if !ok {
			continue
		}
		parent := graph
		if g.Cluster == ClusterStack {
			parent = graph.Subgraph("cluster_"+StackID(s.Name), dot.ClusterOption{})
			parent.Attr("label", s.Name)
			parent.Attr("style", "rounded")
		}
		for _, id := range sortedIDs(tmpl.Resources) {
			if g.Cluster == ClusterService {
				svc := template.Service(tmpl.Resources[id].Type)
				byService[svc] = append(byService[svc], target{s.Name, id})
				continue
			}
			nodes[target{s.Name, id}] = parent.Node(NodeID(s.Name, id)).Label(g.label(id, "["+tmpl.Resources[id].Type+"]"))
		}
	}
	if g.Cluster == ClusterService {
		g.addServiceClusters(graph, asm, byService, nodes)
	}

	// edges
	for _, s := range asm.Manifest.Stacks {
		tmpl, ok := asm.Template(s.Name)
		if !ok {
			continue
		}
		for _, id := range sortedIDs(tmpl.Resources) {
			res := tmpl.Resources[id]
			edges := make(map[target]edgeKind)
			add := func(t target, k edgeKind) {
				if cur, seen := edges[t]; !seen || k > cur {
					edges[t] = k
				}
			}
			for _, dep := range res.DependsOn {
				add(target{s.Name, dep}, edgeDependsOn)
			}
			template.Walk(res.Properties, func(kind, name string) {
				switch kind {
				case template.KindFindInMap:
				case template.KindImportValue:
					for _, t := range exports[name] {
						add(t, edgeImport)
					}
				case template.KindGetAtt:
					if _, known := tmpl.Resources[name]; known {
						add(target{s.Name, name}, edgeGetAtt)
					}
				default:
					if _, known := tmpl.Resources[name]; known {
						add(target{s.Name, name}, edgeRef)
					}
				}
			})

			from := nodes[target{s.Name, id}]
			for _, t := range sortedTargets(edges) {
				to, ok := nodes[t]
				if !ok {
					continue
				}
				e := graph.Edge(from, to)
				switch edges[t] {
				case edgeDependsOn:
					e.Attr("style", "dashed")
				case edgeGetAtt:
					e.Attr("color", "blue")
				case edgeImport:
					e.Attr("color", "red")
					e.Attr("style", "dashed")
				}
			}
		}
	}
	return graph
}

func (g *Generator) addServiceClusters(graph *dot.Graph, asm *assembly.Assembly, byService map[string][]target, nodes map[target]dot.Node) {
	services := make([]string, 0, len(byService))
	for svc := range byService {
		services = append(services, svc)
	}
	sort.Strings(services)

	for _, svc := range services {
		members := byService[svc]
		parent := graph
		if len(members) > 1 {
			parent = graph.Subgraph("cluster_"+svc, dot.ClusterOption{})
			parent.Attr("label", svc)
			parent.Attr("style", "rounded")
			parent.Attr("bgcolor", "lightyellow")
		}
		for _, t := range members {
			tmpl, _ := asm.Template(t.stack)
			nodes[t] = parent.Node(NodeID(t.stack, t.id)).Label(g.label(t.id, "["+tmpl.Resources[t.id].Type+"]"))
		}
	}
}

// exportTargets maps each export name to the resources its output refers to.
func exportTargets(asm *assembly.Assembly) map[string][]target {
	out := make(map[string][]target)
	for name, tmpl := range asm.Templates {
		for _, o := range tmpl.Outputs {
			if o.Export == nil {
				continue
			}
			for _, ref := range template.References(o.Value) {
				if _, ok := tmpl.Resources[ref]; ok {
					out[o.Export.Name] = append(out[o.Export.Name], target{name, ref})
				}
			}
		}
	}
	return out
}

func sortedIDs[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedTargets(m map[target]edgeKind) []target {
	out := make([]target, 0, len(m))
	for t := range m {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].stack != out[j].stack {
			return out[i].stack < out[j].stack
		}
		return out[i].id < out[j].id
	})
	return out
}
