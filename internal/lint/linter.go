// Package lint checks synthesized templates against Cohort Modeler rules.
package lint

import (
	"encoding/json"
	"sort"

	corelint "github.com/lex00/wetwire-core-go/lint"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assembly"
)

// Type aliases for the core lint package.
type (
	// Issue is an alias for corelint.Issue.
	Issue = corelint.Issue
	// Severity is an alias for corelint.Severity.
	Severity = corelint.Severity
)

// Severity constants.
const (
	SeverityError   = corelint.SeverityError
	SeverityWarning = corelint.SeverityWarning
	SeverityInfo    = corelint.SeverityInfo
)

// Rule checks one resource of a template.
type Rule interface {
	ID() string
	Description() string
	Check(logicalID string, def infra.ResourceDef) []Issue
}

// Finding is an issue located in a stack and resource.
type Finding struct {
	Issue
	Stack    string
	Resource string
}

// LintIssue converts the finding to the CLI's JSON shape.
func (f Finding) LintIssue() infra.LintIssue {
	return infra.LintIssue{
		Stack:    f.Stack,
		Resource: f.Resource,
		Severity: f.Severity.String(),
		Message:  f.Message,
		Rule:     f.Rule,
	}
}

// Result contains the outcome of linting.
type Result struct {
	Success  bool
	Findings []Finding
}

// HasErrors reports whether any finding has error severity.
func (r Result) HasErrors() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Options configures the linter.
type Options struct {
	// Rules to enable. If empty, all rules are enabled.
	EnabledRules []string
	// Rules to skip, applied after EnabledRules.
	DisabledRules []string
}

// LintTemplate lints every resource of one stack's template. File names the
// template on disk and is copied into each issue.
func LintTemplate(stack, file string, tmpl *infra.Template, opts Options) Result {
	rules := getRules(opts)

	ids := make([]string, 0, len(tmpl.Resources))
	for id := range tmpl.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var findings []Finding
	for _, id := range ids {
		def := tmpl.Resources[id]
		def.Properties = generic(def.Properties)
		for _, rule := range rules {
			for _, issue := range rule.Check(id, def) {
				issue.File = file
				findings = append(findings, Finding{Issue: issue, Stack: stack, Resource: id})
			}
		}
	}

	return Result{
		Success:  len(findings) == 0,
		Findings: findings,
	}
}

// LintAssembly lints every stack of an assembly in deployment order.
func LintAssembly(dir string, asm *assembly.Assembly, opts Options) Result {
	var findings []Finding
	for _, s := range asm.Manifest.Stacks {
		tmpl, ok := asm.Template(s.Name)
		if !ok {
			continue
		}
		findings = append(findings, LintTemplate(s.Name, assembly.TemplatePath(dir, s), tmpl, opts).Findings...)
	}
	return Result{
		Success:  len(findings) == 0,
		Findings: findings,
	}
}

// getRules returns the rules to use based on options.
func getRules(opts Options) []Rule {
	all := AllRules()

	enabled := make(map[string]bool)
	for _, id := range opts.EnabledRules {
		enabled[id] = true
	}
	disabled := make(map[string]bool)
	for _, id := range opts.DisabledRules {
		disabled[id] = true
	}

	var filtered []Rule
	for _, r := range all {
		if len(enabled) > 0 && !enabled[r.ID()] {
			continue
		}
		if disabled[r.ID()] {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered
}

// generic converts synthesized property values to the plain maps and slices
// produced by decoding JSON so rules see the same shapes for in-memory and
// on-disk templates.
func generic(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return props
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return props
	}
	return out
}
