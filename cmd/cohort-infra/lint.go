package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/lint"
)

func newLintCmd(c *cli) *cobra.Command {
	var (
		outputFormat string
		enable       []string
		disable      []string
	)

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Check templates against Cohort Modeler rules",
		Long: `Lint synthesizes the application and checks every resource.

Rules:
    CMI001  Security group ingress open to the world
    CMI002  Wildcard principal in an IAM policy
    CMI003  Deprecated Lambda runtime
    CMI004  Lambda function without VPC configuration
    CMI005  Neptune cluster storage not encrypted
    CMI006  Security group or rule without description

Exits with status 2 when errors or warnings are found.

Examples:
    cohort-infra lint
    cohort-infra lint --disable CMI006
    cohort-infra lint --enable CMI001,CMI002 --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(outputFormat, "text", "json"); err != nil {
				return err
			}
			asm, err := c.synth()
			if err != nil {
				return err
			}

			found := lint.LintAssembly(c.cfg.OutDir, asm, lint.Options{EnabledRules: enable, DisabledRules: disable})
			result, failing := lintResult(found)
			if err := outputLintResult(cmd.OutOrStdout(), result, outputFormat); err != nil {
				return err
			}
			if failing > 0 {
				return issuesFound("lint found %d issues", failing)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().StringSliceVar(&enable, "enable", nil, "Only run these rules")
	cmd.Flags().StringSliceVar(&disable, "disable", nil, "Skip these rules")

	return cmd
}

// lintResult converts findings to the JSON shape and counts those at
// warning severity or above.
func lintResult(found lint.Result) (infra.LintResult, int) {
	result := infra.LintResult{Success: true}
	failing := 0
	for _, f := range found.Findings {
		result.Issues = append(result.Issues, f.LintIssue())
		if f.Severity == lint.SeverityError || f.Severity == lint.SeverityWarning {
			failing++
		}
	}
	result.Success = failing == 0
	return result, failing
}

func outputLintResult(w io.Writer, result infra.LintResult, format string) error {
	if format == "json" {
		return printJSON(w, result)
	}

	if len(result.Issues) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return nil
	}
	for _, issue := range result.Issues {
		fmt.Fprintf(w, "%s/%s: %s: %s [%s]\n", issue.Stack, issue.Resource, issue.Severity, issue.Message, issue.Rule)
	}
	return nil
}
