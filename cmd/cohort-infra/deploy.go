package main

import (
	"fmt"
	"io"
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cohort-modeler/cohort-infra/internal/deploy"
)

type deployFlags struct {
	stacks       []string
	dryRun       bool
	tags         map[string]string
	timeout      time.Duration
	outputFormat string
}

func (f *deployFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.stacks, "stacks", nil, "Only these stacks (deploy adds dependencies, destroy adds dependents)")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Report planned actions without changing anything")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 60*time.Minute, "Maximum wait per stack")
	cmd.Flags().StringVarP(&f.outputFormat, "format", "f", "text", "Output format: text or json")
}

func (c *cli) deployOptions(f *deployFlags) deploy.Options {
	tags := make(map[string]string, len(c.cfg.Tags)+len(f.tags))
	maps.Copy(tags, c.cfg.Tags)
	maps.Copy(tags, f.tags)
	return deploy.Options{
		Stacks:         f.stacks,
		DryRun:         f.dryRun,
		Tags:           tags,
		TemplateBucket: c.cfg.Assets.Bucket,
		Timeout:        f.timeout,
	}
}

func newDeployCmd(c *cli) *cobra.Command {
	flags := &deployFlags{}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the stacks to AWS",
		Long: `Deploy synthesizes the application, publishes file assets to the asset
bucket and creates or updates each stack in dependency order, waiting for
every stack to settle before moving on.

Examples:
    cohort-infra deploy
    cohort-infra deploy --stacks CohortModelerApi
    cohort-infra deploy --dry-run --tag team=analytics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.outputFormat, "text", "json"); err != nil {
				return err
			}
			asm, err := c.synth()
			if err != nil {
				return err
			}
			d, err := c.deployer(cmd.Context())
			if err != nil {
				return err
			}
			results, err := d.Deploy(cmd.Context(), c.cfg.OutDir, asm, c.deployOptions(flags))
			if outErr := outputDeployResults(cmd.OutOrStdout(), results, flags.outputFormat); outErr != nil && err == nil {
				err = outErr
			}
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringToStringVar(&flags.tags, "tag", nil, "Extra stack tag key=value (repeatable)")

	return cmd
}

func newDestroyCmd(c *cli) *cobra.Command {
	flags := &deployFlags{}
	var yes bool

	cmd := &cobra.Command{
		Use:   "destroy",
		Short: "Delete the stacks from AWS",
		Long: `Destroy deletes the stacks in reverse dependency order and waits for each
deletion. The asset bucket is left in place.

Examples:
    cohort-infra destroy --yes
    cohort-infra destroy --stacks CohortModelerNotebook --yes
    cohort-infra destroy --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(flags.outputFormat, "text", "json"); err != nil {
				return err
			}
			if !yes && !flags.dryRun {
				return fmt.Errorf("destroy deletes stacks and their data; pass --yes to confirm or --dry-run to preview")
			}
			asm, err := c.build()
			if err != nil {
				return err
			}
			d, err := c.deployer(cmd.Context())
			if err != nil {
				return err
			}
			results, err := d.Destroy(cmd.Context(), asm, c.deployOptions(flags))
			if outErr := outputDeployResults(cmd.OutOrStdout(), results, flags.outputFormat); outErr != nil && err == nil {
				err = outErr
			}
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm deletion")

	return cmd
}

func outputDeployResults(w io.Writer, results []deploy.Result, format string) error {
	if format == "json" {
		if results == nil {
			results = []deploy.Result{}
		}
		return printJSON(w, results)
	}

	for _, r := range results {
		line := fmt.Sprintf("%-28s %-8s", r.Stack, r.Action)
		if r.Status != "" {
			line += " " + r.Status
		}
		if r.Assets > 0 {
			line += fmt.Sprintf(" (%d assets published)", r.Assets)
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))

		keys := make([]string, 0, len(r.Outputs))
		for k := range r.Outputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "    %s = %s\n", k, r.Outputs[k])
		}
	}
	return nil
}
