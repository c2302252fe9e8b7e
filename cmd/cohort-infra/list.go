package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assembly"
)

func newListCmd(c *cli) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "list [stacks...]",
		Short: "List resources by stack",
		Long: `List synthesizes the application and displays every resource with its
stack, type and explicit dependencies.

Examples:
    cohort-infra list
    cohort-infra list CohortModelerDatabase
    cohort-infra list --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(outputFormat, "text", "json"); err != nil {
				return err
			}
			asm, err := c.synth()
			if err != nil {
				return err
			}
			result, err := listResources(asm, args)
			if err != nil {
				return err
			}
			return outputListResult(cmd.OutOrStdout(), result, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "text", "Output format: text or json")

	return cmd
}

// listResources returns the resources of the named stacks, or of all stacks,
// in deployment order and then by logical id.
func listResources(asm *assembly.Assembly, names []string) (infra.ListResult, error) {
	selected := asm.Manifest.Stacks
	if len(names) > 0 {
		selected = nil
		for _, name := range names {
			s, ok := asm.Manifest.Stack(name)
			if !ok {
				return infra.ListResult{}, fmt.Errorf("unknown stack %q", name)
			}
			selected = append(selected, s)
		}
	}

	result := infra.ListResult{Resources: []infra.ListResource{}}
	for _, s := range selected {
		tmpl, _ := asm.Template(s.Name)
		if tmpl == nil {
			continue
		}
		ids := make([]string, 0, len(tmpl.Resources))
		for id := range tmpl.Resources {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			def := tmpl.Resources[id]
			result.Resources = append(result.Resources, infra.ListResource{
				Stack:     s.Name,
				Name:      id,
				Type:      def.Type,
				DependsOn: def.DependsOn,
			})
		}
	}
	return result, nil
}

func outputListResult(w io.Writer, result infra.ListResult, format string) error {
	if format == "json" {
		return printJSON(w, result)
	}

	if len(result.Resources) == 0 {
		fmt.Fprintln(w, "No resources found.")
		return nil
	}

	fmt.Fprintf(w, "Resources (%d):\n", len(result.Resources))
	stack := ""
	for _, r := range result.Resources {
		if r.Stack != stack {
			stack = r.Stack
			fmt.Fprintf(w, "\n%s\n", stack)
		}
		fmt.Fprintf(w, "  %s: %s\n", r.Name, r.Type)
	}
	return nil
}
