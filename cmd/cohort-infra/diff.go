package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assembly"
	"github.com/cohort-modeler/cohort-infra/internal/differ"
)

func newDiffCmd(c *cli) *cobra.Command {
	var (
		outputFormat string
		ignoreOrder  bool
	)

	cmd := &cobra.Command{
		Use:   "diff <old> [new]",
		Short: "Compare templates or cloud assemblies",
		Long: `Diff compares two CloudFormation templates or two assembly directories and
reports added, removed and modified resources, outputs and mappings.

With a single assembly directory, it is compared against the current
application synthesized in memory.

Examples:
    cohort-infra diff cdk.out
    cohort-infra diff old.out new.out
    cohort-infra diff old.template.json new.template.json --ignore-order`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(outputFormat, "text", "json"); err != nil {
				return err
			}
			opts := differ.Options{IgnoreOrder: ignoreOrder}

			var (
				result *differ.Result
				err    error
			)
			if len(args) == 2 {
				result, err = compareArgs(args[0], args[1], opts)
			} else {
				result, err = c.compareCurrent(args[0], opts)
			}
			if err != nil {
				return err
			}
			return outputDiff(cmd.OutOrStdout(), result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")
	cmd.Flags().BoolVar(&ignoreOrder, "ignore-order", false, "Ignore array element order")

	return cmd
}

func compareArgs(a, b string, opts differ.Options) (*differ.Result, error) {
	aDir, err := isDir(a)
	if err != nil {
		return nil, err
	}
	bDir, err := isDir(b)
	if err != nil {
		return nil, err
	}
	switch {
	case aDir && bDir:
		return differ.CompareDirs(a, b, opts)
	case !aDir && !bDir:
		return differ.CompareFiles(a, b, opts)
	default:
		return nil, fmt.Errorf("cannot compare a directory with a file")
	}
}

func (c *cli) compareCurrent(dir string, opts differ.Options) (*differ.Result, error) {
	prev, err := assembly.Read(dir)
	if err != nil {
		return nil, err
	}
	next, err := c.build()
	if err != nil {
		return nil, err
	}
	return differ.CompareAssemblies(prev, next, opts)
}

func isDir(path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

func outputDiff(w io.Writer, result *differ.Result, format string) error {
	if format == "json" {
		return printJSON(w, struct {
			Diff    infra.TemplateDiff `json:"diff"`
			Summary infra.DiffSummary  `json:"summary"`
		}{result.Diff, result.Summary})
	}

	if result.Summary.Total == 0 {
		fmt.Fprintln(w, "No differences.")
		return nil
	}

	write := func(sign string, entries []infra.DiffEntry) {
		for _, e := range entries {
			fmt.Fprintf(w, "%s %s\n", sign, entryName(e))
			for _, change := range e.Changes {
				fmt.Fprintf(w, "    %s\n", change)
			}
		}
	}
	write("+", result.Diff.Added)
	write("-", result.Diff.Removed)
	write("~", result.Diff.Modified)

	s := result.Summary
	fmt.Fprintf(w, "\n%d added, %d removed, %d modified\n", s.Added, s.Removed, s.Modified)
	return nil
}

func entryName(e infra.DiffEntry) string {
	name := e.Section + "." + e.Name
	if e.Stack != "" {
		name = e.Stack + " " + name
	}
	if e.Type != "" {
		name += " (" + e.Type + ")"
	}
	return name
}
