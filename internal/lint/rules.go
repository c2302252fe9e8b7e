package lint

// Rules:
//
//	CMI001: Security group ingress open to the world
//	CMI002: Wildcard principal in an IAM policy
//	CMI003: Deprecated Lambda runtime
//	CMI004: Lambda function without VPC configuration
//	CMI005: Neptune cluster storage not encrypted
//	CMI006: Security group or rule without description

import (
	"fmt"
	"strings"

	infra "github.com/cohort-modeler/cohort-infra"
)

// AllRules returns every rule in id order.
func AllRules() []Rule {
	return []Rule{
		OpenIngress{},
		WildcardPrincipal{},
		DeprecatedRuntime{},
		FunctionWithoutVPC{},
		UnencryptedNeptune{},
		SecurityGroupDescription{},
	}
}

// OpenIngress flags ingress rules allowing 0.0.0.0/0 or ::/0.
type OpenIngress struct{}

func (r OpenIngress) ID() string { return "CMI001" }
func (r OpenIngress) Description() string {
	return "Security group ingress must not be open to the world"
}

func (r OpenIngress) Check(id string, def infra.ResourceDef) []Issue {
	var rules []map[string]any
	switch def.Type {
	case "AWS::EC2::SecurityGroup":
		rules = objects(def.Properties["SecurityGroupIngress"])
	case "AWS::EC2::SecurityGroupIngress":
		rules = []map[string]any{def.Properties}
	default:
		return nil
	}

	var issues []Issue
	for _, rule := range rules {
		cidr, _ := rule["CidrIp"].(string)
		if cidr == "" {
			cidr, _ = rule["CidrIpv6"].(string)
		}
		if cidr != "0.0.0.0/0" && cidr != "::/0" {
			continue
		}
		issues = append(issues, Issue{
			Rule:       r.ID(),
			Message:    fmt.Sprintf("ingress %s ports %s open to %s", protocol(rule), portRange(rule), cidr),
			Suggestion: "restrict the source to the VPC CIDR or a security group",
			Severity:   SeverityError,
		})
	}
	return issues
}

// WildcardPrincipal flags Allow statements whose principal is "*" in IAM
// role trust policies and identity policies. VPC endpoint and bucket policies
// are out of scope.
type WildcardPrincipal struct{}

func (r WildcardPrincipal) ID() string { return "CMI002" }
func (r WildcardPrincipal) Description() string {
	return "IAM policies must not grant access to any principal"
}

func (r WildcardPrincipal) Check(id string, def infra.ResourceDef) []Issue {
	var docs []any
	switch def.Type {
	case "AWS::IAM::Role":
		docs = append(docs, def.Properties["AssumeRolePolicyDocument"])
		for _, p := range objects(def.Properties["Policies"]) {
			docs = append(docs, p["PolicyDocument"])
		}
	case "AWS::IAM::Policy", "AWS::IAM::ManagedPolicy":
		docs = append(docs, def.Properties["PolicyDocument"])
	default:
		return nil
	}

	var issues []Issue
	for _, doc := range docs {
		m, ok := doc.(map[string]any)
		if !ok {
			continue
		}
		for _, stmt := range statements(m["Statement"]) {
			if effect, _ := stmt["Effect"].(string); effect != "Allow" {
				continue
			}
			if !isWildcardPrincipal(stmt["Principal"]) {
				continue
			}
			issues = append(issues, Issue{
				Rule:       r.ID(),
				Message:    "policy allows any principal",
				Suggestion: "name the service or account principal",
				Severity:   SeverityError,
			})
		}
	}
	return issues
}

func isWildcardPrincipal(p any) bool {
	switch v := p.(type) {
	case string:
		return v == "*"
	case map[string]any:
		for _, principal := range v {
			if s, ok := principal.(string); ok && s == "*" {
				return true
			}
			if items, ok := principal.([]any); ok {
				for _, item := range items {
					if s, ok := item.(string); ok && s == "*" {
						return true
					}
				}
			}
		}
	}
	return false
}

// deprecatedRuntimes lists Lambda runtimes past end of support.
var deprecatedRuntimes = map[string]bool{
	"python2.7":     true,
	"python3.6":     true,
	"python3.7":     true,
	"python3.8":     true,
	"nodejs":        true,
	"nodejs4.3":     true,
	"nodejs6.10":    true,
	"nodejs8.10":    true,
	"nodejs10.x":    true,
	"nodejs12.x":    true,
	"nodejs14.x":    true,
	"nodejs16.x":    true,
	"ruby2.5":       true,
	"ruby2.7":       true,
	"dotnetcore2.1": true,
	"dotnetcore3.1": true,
	"dotnet6":       true,
	"go1.x":         true,
	"java8":         true,
}

// DeprecatedRuntime flags functions and layers using deprecated runtimes.
type DeprecatedRuntime struct{}

func (r DeprecatedRuntime) ID() string { return "CMI003" }
func (r DeprecatedRuntime) Description() string {
	return "Lambda runtimes must be supported"
}

func (r DeprecatedRuntime) Check(id string, def infra.ResourceDef) []Issue {
	var runtimes []string
	switch def.Type {
	case "AWS::Lambda::Function", "AWS::Serverless::Function":
		if rt, ok := def.Properties["Runtime"].(string); ok {
			runtimes = append(runtimes, rt)
		}
	case "AWS::Lambda::LayerVersion", "AWS::Serverless::LayerVersion":
		for _, v := range list(def.Properties["CompatibleRuntimes"]) {
			if rt, ok := v.(string); ok {
				runtimes = append(runtimes, rt)
			}
		}
	default:
		return nil
	}

	var issues []Issue
	for _, rt := range runtimes {
		if !deprecatedRuntimes[rt] {
			continue
		}
		issues = append(issues, Issue{
			Rule:       r.ID(),
			Message:    fmt.Sprintf("runtime %s is deprecated", rt),
			Suggestion: suggestRuntime(rt),
			Severity:   SeverityWarning,
		})
	}
	return issues
}

func suggestRuntime(rt string) string {
	switch {
	case strings.HasPrefix(rt, "python"):
		return "use python3.12"
	case strings.HasPrefix(rt, "nodejs"):
		return "use nodejs20.x"
	case rt == "go1.x":
		return "use provided.al2023"
	default:
		return "use a supported runtime"
	}
}

// FunctionWithoutVPC flags functions that cannot reach the VPC-only graph
// database endpoint.
type FunctionWithoutVPC struct{}

func (r FunctionWithoutVPC) ID() string { return "CMI004" }
func (r FunctionWithoutVPC) Description() string {
	return "Lambda functions must be placed in the VPC"
}

func (r FunctionWithoutVPC) Check(id string, def infra.ResourceDef) []Issue {
	if def.Type != "AWS::Lambda::Function" && def.Type != "AWS::Serverless::Function" {
		return nil
	}
	cfg, ok := def.Properties["VpcConfig"].(map[string]any)
	if ok && len(list(cfg["SubnetIds"])) > 0 {
		return nil
	}
	return []Issue{{
		Rule:       r.ID(),
		Message:    "function has no VPC subnets",
		Suggestion: "set VpcConfig with the private subnets and a security group",
		Severity:   SeverityWarning,
	}}
}

// UnencryptedNeptune flags clusters without storage encryption.
type UnencryptedNeptune struct{}

func (r UnencryptedNeptune) ID() string { return "CMI005" }
func (r UnencryptedNeptune) Description() string {
	return "Neptune cluster storage should be encrypted"
}

func (r UnencryptedNeptune) Check(id string, def infra.ResourceDef) []Issue {
	if def.Type != "AWS::Neptune::DBCluster" {
		return nil
	}
	if encrypted, _ := def.Properties["StorageEncrypted"].(bool); encrypted {
		return nil
	}
	return []Issue{{
		Rule:       r.ID(),
		Message:    "StorageEncrypted is not enabled",
		Suggestion: "set database.storage_encrypted: true (requires cluster replacement)",
		Severity:   SeverityWarning,
	}}
}

// SecurityGroupDescription flags security groups without GroupDescription
// and rules without Description.
type SecurityGroupDescription struct{}

func (r SecurityGroupDescription) ID() string { return "CMI006" }
func (r SecurityGroupDescription) Description() string {
	return "Security groups and their rules should be described"
}

func (r SecurityGroupDescription) Check(id string, def infra.ResourceDef) []Issue {
	if def.Type != "AWS::EC2::SecurityGroup" {
		return nil
	}

	var issues []Issue
	if desc, _ := def.Properties["GroupDescription"].(string); strings.TrimSpace(desc) == "" {
		issues = append(issues, Issue{
			Rule:     r.ID(),
			Message:  "security group has no GroupDescription",
			Severity: SeverityError,
		})
	}
	for _, field := range []string{"SecurityGroupIngress", "SecurityGroupEgress"} {
		for i, rule := range objects(def.Properties[field]) {
			if desc, _ := rule["Description"].(string); desc != "" {
				continue
			}
			issues = append(issues, Issue{
				Rule:     r.ID(),
				Message:  fmt.Sprintf("%s[%d] has no Description", field, i),
				Severity: SeverityInfo,
			})
		}
	}
	return issues
}

func list(v any) []any {
	l, _ := v.([]any)
	return l
}

func objects(v any) []map[string]any {
	var out []map[string]any
	for _, item := range list(v) {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// statements accepts a single statement object or a list of them.
func statements(v any) []map[string]any {
	if m, ok := v.(map[string]any); ok {
		return []map[string]any{m}
	}
	return objects(v)
}

func protocol(rule map[string]any) string {
	p, _ := rule["IpProtocol"].(string)
	if p == "-1" {
		return "all"
	}
	return p
}

func portRange(rule map[string]any) string {
	from, to := rule["FromPort"], rule["ToPort"]
	if from == nil && to == nil {
		return "all"
	}
	if fmt.Sprint(from) == fmt.Sprint(to) {
		return fmt.Sprint(from)
	}
	return fmt.Sprintf("%v-%v", from, to)
}
