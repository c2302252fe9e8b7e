// Package iam provides the AWS::IAM resource types.
package iam

// Role is AWS::IAM::Role.
type Role struct {
	AssumeRolePolicyDocument any           `json:"AssumeRolePolicyDocument,omitempty"`
	Description              string        `json:"Description,omitempty"`
	ManagedPolicyArns        []any         `json:"ManagedPolicyArns,omitempty"`
	Path                     string        `json:"Path,omitempty"`
	Policies                 []Role_Policy `json:"Policies,omitempty"`
	RoleName                 any           `json:"RoleName,omitempty"`
	Tags                     []any         `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (Role) ResourceType() string { return "AWS::IAM::Role" }

// Attributes returns the Fn::GetAtt attribute names.
func (Role) Attributes() []string { return []string{"Arn", "RoleId"} }

// Role_Policy is an inline policy embedded in a role.
type Role_Policy struct {
	PolicyDocument any    `json:"PolicyDocument"`
	PolicyName     string `json:"PolicyName"`
}

// ManagedPolicy is AWS::IAM::ManagedPolicy. Its Ref is the policy ARN.
type ManagedPolicy struct {
	Description       string `json:"Description,omitempty"`
	ManagedPolicyName any    `json:"ManagedPolicyName,omitempty"`
	Path              string `json:"Path,omitempty"`
	PolicyDocument    any    `json:"PolicyDocument,omitempty"`
	Roles             []any  `json:"Roles,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (ManagedPolicy) ResourceType() string { return "AWS::IAM::ManagedPolicy" }

// Attributes returns the Fn::GetAtt attribute names.
func (ManagedPolicy) Attributes() []string {
	return []string{"AttachmentCount", "CreateDate", "DefaultVersionId", "PolicyArn", "PolicyId"}
}
