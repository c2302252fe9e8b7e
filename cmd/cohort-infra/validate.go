package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/validation"
)

// newValidateCmd creates the "validate" subcommand for checking the assembly.
func newValidateCmd(c *cli) *cobra.Command {
	var (
		outputFormat string
		skipCfnLint  bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate templates, networks and references",
		Long: `Validate synthesizes the application and checks the cloud assembly.

Checks performed:
  - cfn-lint: CloudFormation schema and best-practice rules
  - Networks: subnet CIDRs lie inside the VPC and do not overlap
  - References: Ref, Fn::GetAtt and Fn::Sub targets exist
  - Imports: every Fn::ImportValue is exported by an earlier stack

Exits with status 2 when errors are found.

Examples:
    cohort-infra validate
    cohort-infra validate --skip-cfn-lint --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(outputFormat, "text", "json"); err != nil {
				return err
			}
			asm, err := c.synth()
			if err != nil {
				return err
			}
			result, err := validation.Validate(c.cfg.OutDir, asm, validation.Options{SkipCfnLint: skipCfnLint})
			if err != nil {
				return err
			}
			if err := outputValidateResult(cmd.OutOrStdout(), *result, outputFormat); err != nil {
				return err
			}
			if !result.Success {
				return issuesFound("validation failed with %d errors", len(result.Errors))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&skipCfnLint, "skip-cfn-lint", false, "Skip the cfn-lint pass")

	return cmd
}

func outputValidateResult(w io.Writer, result infra.ValidateResult, format string) error {
	if format == "json" {
		return printJSON(w, result)
	}

	for _, e := range result.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	for _, warning := range result.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warning)
	}
	if result.Success {
		fmt.Fprintf(w, "Validation passed: %d stacks, %d resources\n", result.Stacks, result.Resources)
	}
	return nil
}
