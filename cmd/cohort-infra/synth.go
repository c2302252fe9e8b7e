package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/cohort-modeler/cohort-infra/internal/assembly"
	"github.com/cohort-modeler/cohort-infra/internal/template"
)

func newSynthCmd(c *cli) *cobra.Command {
	var outputFormat string

	cmd := &cobra.Command{
		Use:   "synth [stack]",
		Short: "Synthesize the cloud assembly",
		Long: `Synth builds every stack and writes the cloud assembly: manifest.json, one
template per stack and the staged file assets.

With a stack name, the stack's template is also printed.

Examples:
    cohort-infra synth
    cohort-infra synth --format json
    cohort-infra synth CohortModelerApi --format yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			asm, err := c.synth()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return printTemplate(cmd.OutOrStdout(), asm, args[0], outputFormat)
			}
			return printBuild(cmd.OutOrStdout(), c.cfg.OutDir, asm, outputFormat)
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "", "Output format: text or json (summary), json or yaml (template)")

	return cmd
}

func printBuild(w io.Writer, dir string, asm *assembly.Assembly, format string) error {
	result := buildResult(dir, asm)
	switch format {
	case "json":
		return printJSON(w, result)
	case "text", "":
		fmt.Fprintf(w, "Synthesized %d stacks (%d resources, %d assets) to %s\n",
			len(result.Stacks), result.Resources, result.Assets, dir)
		for _, name := range result.Stacks {
			fmt.Fprintf(w, "  %s\n", name)
		}
		return nil
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
}

func printTemplate(w io.Writer, asm *assembly.Assembly, stack, format string) error {
	tmpl, ok := asm.Template(stack)
	if !ok {
		return fmt.Errorf("unknown stack %q", stack)
	}

	var (
		data []byte
		err  error
	)
	switch format {
	case "json", "":
		data, err = template.ToJSON(tmpl)
	case "yaml":
		data, err = template.ToYAML(tmpl)
	default:
		return fmt.Errorf("unknown format: %s", format)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
