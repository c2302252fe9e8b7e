package intrinsics

import (
	"encoding/json"
)

// Json is a shorthand for map[string]any.
// Used for inline JSON objects like Condition blocks.
type Json = map[string]any

// List creates a typed slice from the given items.
//
//	SecurityGroupIngress: List(ingress8182, ingress443),
func List[T any](items ...T) []T {
	return items
}

// Bool returns a pointer to v for optional boolean properties, where an
// explicit false must still reach the template.
func Bool(v bool) *bool {
	return &v
}

// Any creates a []any slice from the given items.
// Use for fields typed as []any that accept mixed types or intrinsics.
//
//	SubnetIds: Any(privateSubnet1, privateSubnet2),
func Any(items ...any) []any {
	return items
}

// PolicyDocumentVersion is the current IAM policy language version.
const PolicyDocumentVersion = "2012-10-17"

// PolicyDocument represents an IAM policy document.
type PolicyDocument struct {
	Version   string `json:"Version,omitempty"`
	Statement []any  `json:"Statement"`
}

// NewPolicyDocument creates a PolicyDocument with the default version.
func NewPolicyDocument(statements ...any) PolicyDocument {
	return PolicyDocument{Version: PolicyDocumentVersion, Statement: statements}
}

// PolicyStatement represents an IAM policy statement.
//
//	PolicyStatement{
//	    Effect:    "Allow",
//	    Principal: ServicePrincipal{"sagemaker.amazonaws.com"},
//	    Action:    []any{"sts:AssumeRole"},
//	}
type PolicyStatement struct {
	Sid       string `json:"Sid,omitempty"`
	Effect    string `json:"Effect"`
	Principal any    `json:"Principal,omitempty"`
	Action    any    `json:"Action,omitempty"`
	Resource  any    `json:"Resource,omitempty"`
	Condition Json   `json:"Condition,omitempty"`
}

// Allow returns an Allow statement for the given actions and resources.
func Allow(actions []string, resources ...any) PolicyStatement {
	acts := make([]any, len(actions))
	for i, a := range actions {
		acts[i] = a
	}
	return PolicyStatement{Effect: "Allow", Action: acts, Resource: resources}
}

// AssumeRolePolicy returns the trust policy letting the given services assume a role.
func AssumeRolePolicy(services ...string) PolicyDocument {
	principal := make(ServicePrincipal, len(services))
	for i, svc := range services {
		principal[i] = svc
	}
	return NewPolicyDocument(PolicyStatement{
		Effect:    "Allow",
		Principal: principal,
		Action:    "sts:AssumeRole",
	})
}

// ServicePrincipal represents a service principal (e.g., rds.amazonaws.com).
// Serializes to {"Service": ...} format.
type ServicePrincipal []any

// MarshalJSON serializes to {"Service": ...} format.
func (p ServicePrincipal) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(map[string]any{"Service": p[0]})
	}
	return json.Marshal(map[string]any{"Service": []any(p)})
}

// AWSPrincipal represents an AWS account/role/user principal.
// Serializes to {"AWS": ...} format.
type AWSPrincipal []any

// MarshalJSON serializes to {"AWS": ...} format.
func (p AWSPrincipal) MarshalJSON() ([]byte, error) {
	if len(p) == 1 {
		return json.Marshal(map[string]any{"AWS": p[0]})
	}
	return json.Marshal(map[string]any{"AWS": []any(p)})
}

// AllPrincipal represents the wildcard principal "*".
const AllPrincipal = "*"
