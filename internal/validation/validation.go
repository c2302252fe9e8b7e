// Package validation checks a synthesized cloud assembly before deployment.
//
// Three kinds of checks run over every stack template:
//   - cfn-lint-go: CloudFormation schema and best-practice rules (library dependency)
//   - network: subnet CIDRs lie inside their VPC and do not overlap
//   - references: Ref, Fn::GetAtt and Fn::Sub targets exist, and every
//     Fn::ImportValue is exported by a stack deployed earlier
package validation

import (
	"fmt"
	"net/netip"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/lex00/cfn-lint-go/pkg/lint"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assembly"
	"github.com/cohort-modeler/cohort-infra/internal/config"
	"github.com/cohort-modeler/cohort-infra/internal/template"
	"github.com/cohort-modeler/cohort-infra/intrinsics"
	"github.com/cohort-modeler/cohort-infra/resources/serverless"
)

// CfnLintResult contains the result of running cfn-lint.
type CfnLintResult struct {
	Passed        bool     `json:"passed"`
	Errors        []string `json:"errors"`
	Warnings      []string `json:"warnings"`
	Informational []string `json:"informational"`
}

// TotalIssues returns the total number of issues found.
func (r CfnLintResult) TotalIssues() int {
	return len(r.Errors) + len(r.Warnings) + len(r.Informational)
}

// Options selects which checks run.
type Options struct {
	// SkipCfnLint disables the cfn-lint-go pass.
	SkipCfnLint bool
}

// RunCfnLint runs cfn-lint-go on the given template file.
func RunCfnLint(templatePath string) (*CfnLintResult, error) {
	if _, err := os.Stat(templatePath); err != nil {
		return &CfnLintResult{
			Passed: false,
			Errors: []string{fmt.Sprintf("Template file not found: %s", templatePath)},
		}, nil
	}

	linter := lint.New(lint.Options{})
	matches, err := linter.LintFile(templatePath)
	if err != nil {
		return nil, fmt.Errorf("cfn-lint %s: %w", templatePath, err)
	}

	result := &CfnLintResult{
		Errors:        []string{},
		Warnings:      []string{},
		Informational: []string{},
	}

	for _, match := range matches {
		formatted := formatMatch(match)

		switch match.Level {
		case "Error":
			result.Errors = append(result.Errors, formatted)
		case "Warning":
			result.Warnings = append(result.Warnings, formatted)
		default:
			result.Informational = append(result.Informational, formatted)
		}
	}

	// Warnings are acceptable
	result.Passed = len(result.Errors) == 0

	return result, nil
}

// formatMatch formats a cfn-lint-go match for display.
func formatMatch(match lint.Match) string {
	pathStr := ""
	if len(match.Location.Path) > 0 {
		parts := make([]string, len(match.Location.Path))
		for i, p := range match.Location.Path {
			parts[i] = fmt.Sprintf("%v", p)
		}
		pathStr = strings.Join(parts, "/")
	}

	if pathStr != "" {
		return fmt.Sprintf("%s: %s (at %s)", match.Rule.ID, match.Message, pathStr)
	}
	return fmt.Sprintf("%s: %s", match.Rule.ID, match.Message)
}

// Validate runs every check over the assembly stored in dir.
// The returned result is unsuccessful when any check reports an error.
func Validate(dir string, asm *assembly.Assembly, opts Options) (*infra.ValidateResult, error) {
	result := &infra.ValidateResult{
		Stacks:    len(asm.Manifest.Stacks),
		Resources: asm.ResourceCount(),
	}

	prefixed := func(stack string, msgs []string) []string {
		out := make([]string, len(msgs))
		for i, m := range msgs {
			out[i] = stack + ": " + m
		}
		return out
	}

	for _, s := range asm.Manifest.Stacks {
		tmpl, ok := asm.Template(s.Name)
		if !ok {
			result.Errors = append(result.Errors, s.Name+": template missing from assembly")
			continue
		}

		if !opts.SkipCfnLint {
			cfn, err := RunCfnLint(assembly.TemplatePath(dir, s))
			if err != nil {
				return nil, err
			}
			result.Errors = append(result.Errors, prefixed(s.Name, cfn.Errors)...)
			result.Warnings = append(result.Warnings, prefixed(s.Name, cfn.Warnings)...)
		}

		result.Errors = append(result.Errors, prefixed(s.Name, CheckNetwork(tmpl))...)
		result.Errors = append(result.Errors, prefixed(s.Name, CheckReferences(tmpl))...)
	}
	result.Errors = append(result.Errors, CheckImports(asm)...)

	result.Success = len(result.Errors) == 0
	return result, nil
}

// CheckNetwork verifies that each subnet's literal CIDR block lies inside the
// CIDR of the VPC it references and that sibling subnets do not overlap.
// Subnets whose VPC lives in another stack are checked against each other only.
func CheckNetwork(tmpl *infra.Template) []string {
	var errs []string

	vpcs := make(map[string]netip.Prefix)
	for _, id := range sortedResourceIDs(tmpl) {
		def := tmpl.Resources[id]
		if def.Type != "AWS::EC2::VPC" {
			continue
		}
		cidr, ok := def.Properties["CidrBlock"].(string)
		if !ok {
			continue
		}
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid CidrBlock %q", id, cidr))
			continue
		}
		vpcs[id] = p
	}

	type subnet struct {
		id     string
		vpc    string
		prefix netip.Prefix
	}
	var subnets []subnet
	for _, id := range sortedResourceIDs(tmpl) {
		def := tmpl.Resources[id]
		if def.Type != "AWS::EC2::Subnet" {
			continue
		}
		cidr, ok := def.Properties["CidrBlock"].(string)
		if !ok {
			continue
		}
		p, err := netip.ParsePrefix(cidr)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid CidrBlock %q", id, cidr))
			continue
		}
		vpcID := refTarget(def.Properties["VpcId"])
		if vpc, ok := vpcs[vpcID]; ok && !config.Contains(vpc, p) {
			errs = append(errs, fmt.Sprintf("%s: CidrBlock %s is outside %s (%s)", id, p, vpcID, vpc))
		}
		subnets = append(subnets, subnet{id: id, vpc: vpcID, prefix: p})
	}

	for i := range subnets {
		for j := i + 1; j < len(subnets); j++ {
			a, b := subnets[i], subnets[j]
			if a.vpc == b.vpc && a.prefix.Overlaps(b.prefix) {
				errs = append(errs, fmt.Sprintf("%s and %s: CIDR blocks %s and %s overlap", a.id, b.id, a.prefix, b.prefix))
			}
		}
	}
	return errs
}

// CheckReferences verifies that every Ref, Fn::GetAtt and Fn::Sub target in
// resources and outputs names a resource of the template, a pseudo parameter
// or, for SAM templates, a resource the transform generates. Fn::FindInMap
// must name a declared mapping.
func CheckReferences(tmpl *infra.Template) []string {
	var errs []string

	known := func(target string) bool {
		if _, ok := tmpl.Resources[target]; ok {
			return true
		}
		if intrinsics.IsPseudoParameter(target) {
			return true
		}
		return tmpl.Transform == infra.SAMTransform && slices.Contains(serverless.ImplicitResources(), target)
	}

	check := func(where string, v any) {
		seen := make(map[string]bool)
		var found []string
		template.Walk(v, func(kind, target string) {
			switch {
			case kind == template.KindImportValue || seen[kind+target]:
				return
			case kind == template.KindFindInMap:
				if _, ok := tmpl.Mappings[target]; ok {
					return
				}
				seen[kind+target] = true
				found = append(found, fmt.Sprintf("%s: %s to unknown mapping %s", where, kind, target))
			case !known(target):
				seen[kind+target] = true
				found = append(found, fmt.Sprintf("%s: %s to unknown resource %s", where, kind, target))
			}
		})
		sort.Strings(found)
		errs = append(errs, found...)
	}

	for _, id := range sortedResourceIDs(tmpl) {
		def := tmpl.Resources[id]
		check(id, def.Properties)
		for _, dep := range def.DependsOn {
			if _, ok := tmpl.Resources[dep]; !ok {
				errs = append(errs, fmt.Sprintf("%s: DependsOn unknown resource %s", id, dep))
			}
		}
	}

	outputs := make([]string, 0, len(tmpl.Outputs))
	for id := range tmpl.Outputs {
		outputs = append(outputs, id)
	}
	sort.Strings(outputs)
	for _, id := range outputs {
		check("Outputs."+id, tmpl.Outputs[id].Value)
	}
	return errs
}

// CheckImports verifies that every Fn::ImportValue in a stack names an export
// of a stack deployed before it.
func CheckImports(asm *assembly.Assembly) []string {
	var errs []string
	exported := make(map[string]string)

	for _, s := range asm.Manifest.Stacks {
		tmpl, ok := asm.Template(s.Name)
		if !ok {
			continue
		}

		var imports []string
		for _, def := range tmpl.Resources {
			imports = append(imports, template.Imports(def.Properties)...)
		}
		for _, out := range tmpl.Outputs {
			imports = append(imports, template.Imports(out.Value)...)
		}
		sort.Strings(imports)
		imports = slices.Compact(imports)

		for _, name := range imports {
			owner, ok := exported[name]
			switch {
			case !ok:
				errs = append(errs, fmt.Sprintf("%s: imports %s, which no earlier stack exports", s.Name, name))
			case !slices.Contains(s.Dependencies, owner):
				errs = append(errs, fmt.Sprintf("%s: imports %s from %s without depending on it", s.Name, name, owner))
			}
		}

		for _, out := range tmpl.Outputs {
			if out.Export != nil {
				exported[out.Export.Name] = s.Name
			}
		}
	}
	return errs
}

func refTarget(v any) string {
	m, ok := v.(map[string]any)
	if !ok || len(m) != 1 {
		return ""
	}
	ref, _ := m["Ref"].(string)
	return ref
}

func sortedResourceIDs(tmpl *infra.Template) []string {
	ids := make([]string, 0, len(tmpl.Resources))
	for id := range tmpl.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
