package construct

import (
	"slices"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/intrinsics"
)

// Node is a resource placed in a stack.
// Using a *Node as a property value is the same as using Node.Ref().
type Node struct {
	stack               *Stack
	id                  string
	resource            infra.Resource
	dependsOn           []*Node
	deletionPolicy      string
	updateReplacePolicy string
}

// ID returns the logical id.
func (n *Node) ID() string { return n.id }

// Stack returns the owning stack.
func (n *Node) Stack() *Stack { return n.stack }

// Resource returns the declared resource value.
func (n *Node) Resource() infra.Resource { return n.resource }

// Type returns the CloudFormation resource type.
func (n *Node) Type() string {
	if n.resource == nil {
		return ""
	}
	return n.resource.ResourceType()
}

// Ref returns a reference resolving to {"Ref": id}.
func (n *Node) Ref() Reference {
	return Reference{node: n}
}

// GetAtt returns a reference resolving to {"Fn::GetAtt": [id, attr]}.
// Unknown attributes are reported by Synth.
func (n *Node) GetAtt(attr string) Reference {
	if attr == "" {
		n.stack.errorf("empty attribute on %s", n.id)
	}
	return Reference{node: n, attr: attr}
}

// AddDependency orders this resource after the given ones. Within a stack this
// becomes DependsOn; across stacks it orders the stacks.
func (n *Node) AddDependency(nodes ...*Node) *Node {
	for _, dep := range nodes {
		if dep == nil || dep == n || slices.Contains(n.dependsOn, dep) {
			continue
		}
		n.dependsOn = append(n.dependsOn, dep)
	}
	return n
}

// Dependencies returns the explicitly declared dependencies.
func (n *Node) Dependencies() []*Node {
	return append([]*Node(nil), n.dependsOn...)
}

// ApplyRemovalPolicy sets DeletionPolicy and UpdateReplacePolicy.
func (n *Node) ApplyRemovalPolicy(policy string) *Node {
	switch policy {
	case infra.RemovalPolicyDelete, infra.RemovalPolicyRetain, infra.RemovalPolicySnapshot:
	default:
		n.stack.errorf("invalid removal policy %q on %s", policy, n.id)
		return n
	}
	n.deletionPolicy = policy
	n.updateReplacePolicy = policy
	return n
}

func (n *Node) hasAttribute(attr string) bool {
	provider, ok := n.resource.(infra.AttributeProvider)
	if !ok {
		return false
	}
	return slices.Contains(provider.Attributes(), attr)
}

// Reference points at a node's Ref value or one of its attributes.
type Reference struct {
	node *Node
	attr string
}

// Node returns the referenced node.
func (r Reference) Node() *Node { return r.node }

// Attribute returns the attribute name, or "" for a Ref.
func (r Reference) Attribute() string { return r.attr }

// MappingHandle is a Mappings table declared in a stack.
type MappingHandle struct {
	stack *Stack
	name  string
	table intrinsics.Mapping
}

// Name returns the mapping's logical id.
func (m *MappingHandle) Name() string { return m.name }

// Table returns the mapping contents.
func (m *MappingHandle) Table() intrinsics.Mapping { return m.table }

// FindInMap returns a lookup resolving to Fn::FindInMap. Used from another
// stack, the table is copied into that stack's template.
func (m *MappingHandle) FindInMap(topKey, secondKey any) MappingLookup {
	return MappingLookup{mapping: m, topKey: topKey, secondKey: secondKey}
}

// MappingLookup is a deferred Fn::FindInMap.
type MappingLookup struct {
	mapping   *MappingHandle
	topKey    any
	secondKey any
}

// Asset is a local file published to S3 before the stack is deployed.
type Asset struct {
	stack *Stack
	id    string
	path  string
}

// ID returns the asset id.
func (a *Asset) ID() string { return a.id }

// Path returns the declared path.
func (a *Asset) Path() string { return a.path }

// Bucket returns a value resolving to the asset bucket name.
func (a *Asset) Bucket() AssetAttribute {
	return AssetAttribute{asset: a, field: assetBucket}
}

// Key returns a value resolving to the asset's object key.
func (a *Asset) Key() AssetAttribute {
	return AssetAttribute{asset: a, field: assetKey}
}

type assetField int

const (
	assetBucket assetField = iota
	assetKey
)

// AssetAttribute is a deferred asset bucket or key, known after hashing.
type AssetAttribute struct {
	asset *Asset
	field assetField
}
