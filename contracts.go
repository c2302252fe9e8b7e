// Package cohortinfra declares the Cohort Modeler cloud infrastructure as Go values.
//
// Resources are plain structs from the resources/ packages, added to stacks of a
// construct tree:
//
//	app := construct.NewApp("CohortModeler")
//	network := app.NewStack("CohortModeler-Networking", construct.StackProps{})
//	vpc := network.Add("CohortModelerVPC", &ec2.VPC{CidrBlock: "10.0.0.0/16"})
//
// Synthesis turns the tree into a cloud assembly: one CloudFormation template per
// stack plus a manifest describing deployment order, cross-stack dependencies and
// the file assets each stack needs.
package cohortinfra

// Resource represents a CloudFormation resource.
// All types under resources/ implement this interface.
type Resource interface {
	// ResourceType returns the CloudFormation type (e.g., "AWS::EC2::VPC")
	ResourceType() string
}

// AttributeProvider is implemented by resources that expose Fn::GetAtt attributes.
type AttributeProvider interface {
	Attributes() []string
}

// Removal policies for ResourceDef.DeletionPolicy and UpdateReplacePolicy.
const (
	RemovalPolicyDelete   = "Delete"
	RemovalPolicyRetain   = "Retain"
	RemovalPolicySnapshot = "Snapshot"
)

// SAMTransform is the transform header required by AWS::Serverless resources.
const SAMTransform = "AWS::Serverless-2016-10-31"

// Template represents a CloudFormation template.
type Template struct {
	AWSTemplateFormatVersion string                 `json:"AWSTemplateFormatVersion" yaml:"AWSTemplateFormatVersion"`
	Description              string                 `json:"Description,omitempty" yaml:"Description,omitempty"`
	Transform                string                 `json:"Transform,omitempty" yaml:"Transform,omitempty"`
	Mappings                 map[string]any         `json:"Mappings,omitempty" yaml:"Mappings,omitempty"`
	Resources                map[string]ResourceDef `json:"Resources" yaml:"Resources"`
	Outputs                  map[string]Output      `json:"Outputs,omitempty" yaml:"Outputs,omitempty"`
}

// ResourceDef is a single resource in the CloudFormation template.
type ResourceDef struct {
	Type                string         `json:"Type" yaml:"Type"`
	Properties          map[string]any `json:"Properties,omitempty" yaml:"Properties,omitempty"`
	DependsOn           []string       `json:"DependsOn,omitempty" yaml:"DependsOn,omitempty"`
	DeletionPolicy      string         `json:"DeletionPolicy,omitempty" yaml:"DeletionPolicy,omitempty"`
	UpdateReplacePolicy string         `json:"UpdateReplacePolicy,omitempty" yaml:"UpdateReplacePolicy,omitempty"`
}

// Output is a CloudFormation template output.
type Output struct {
	Description string  `json:"Description,omitempty" yaml:"Description,omitempty"`
	Value       any     `json:"Value" yaml:"Value"`
	Export      *Export `json:"Export,omitempty" yaml:"Export,omitempty"`
}

// Export names an output so other stacks can import it with Fn::ImportValue.
type Export struct {
	Name string `json:"Name" yaml:"Name"`
}

// Manifest describes a synthesized cloud assembly.
// Stacks are listed in deployment order.
type Manifest struct {
	Version string          `json:"version"`
	App     string          `json:"app"`
	Stacks  []ManifestStack `json:"stacks"`
	Assets  []AssetEntry    `json:"assets,omitempty"`
}

// Stack returns the manifest entry for the named stack.
func (m *Manifest) Stack(name string) (ManifestStack, bool) {
	for _, s := range m.Stacks {
		if s.Name == name {
			return s, true
		}
	}
	return ManifestStack{}, false
}

// ManifestStack is one deployable stack in the assembly.
type ManifestStack struct {
	Name         string            `json:"name"`
	TemplateFile string            `json:"templateFile"`
	Description  string            `json:"description,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
	Assets       []string          `json:"assets,omitempty"`
	Exports      []string          `json:"exports,omitempty"`
}

// AssetEntry is a file asset staged into the assembly and published before deploy.
type AssetEntry struct {
	ID         string `json:"id"`
	SourcePath string `json:"sourcePath"`
	StagedPath string `json:"stagedPath"`
	Hash       string `json:"hash"`
	Bucket     string `json:"bucket"`
	Key        string `json:"key"`
}

// BuildResult is the JSON output from `cohort-infra synth`.
type BuildResult struct {
	Success   bool     `json:"success"`
	OutDir    string   `json:"outDir,omitempty"`
	Stacks    []string `json:"stacks,omitempty"`
	Resources int      `json:"resources,omitempty"`
	Assets    int      `json:"assets,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// LintResult is the JSON output from `cohort-infra lint`.
type LintResult struct {
	Success bool        `json:"success"`
	Issues  []LintIssue `json:"issues,omitempty"`
}

// LintIssue is a single linting issue.
type LintIssue struct {
	Stack    string `json:"stack"`
	Resource string `json:"resource,omitempty"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Rule     string `json:"rule"`
}

// ValidateResult is the JSON output from `cohort-infra validate`.
type ValidateResult struct {
	Success   bool     `json:"success"`
	Stacks    int      `json:"stacks"`
	Resources int      `json:"resources"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// ListResult is the JSON output from `cohort-infra list`.
type ListResult struct {
	Resources []ListResource `json:"resources"`
}

// ListResource is a single resource in the list output.
type ListResource struct {
	Stack     string   `json:"stack"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	DependsOn []string `json:"dependsOn,omitempty"`
}

// TemplateDiff holds the differences between two templates or assemblies.
type TemplateDiff struct {
	Added    []DiffEntry `json:"added,omitempty"`
	Removed  []DiffEntry `json:"removed,omitempty"`
	Modified []DiffEntry `json:"modified,omitempty"`
}

// IsEmpty reports whether the diff has no changes.
func (d TemplateDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Modified) == 0
}

// DiffEntry is a single changed resource, output or mapping.
type DiffEntry struct {
	Stack   string   `json:"stack,omitempty"`
	Section string   `json:"section"`
	Name    string   `json:"name"`
	Type    string   `json:"type,omitempty"`
	Changes []string `json:"changes,omitempty"`
}

// DiffSummary counts changes by kind.
type DiffSummary struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Total    int `json:"total"`
}
