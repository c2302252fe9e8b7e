package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cohort-modeler/cohort-infra/internal/graph"
)

func newGraphCmd(c *cli) *cobra.Command {
	var (
		outputFormat string
		cluster      string
		stackLevel   bool
		outputFile   string
	)

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Generate a DOT graph of resource dependencies",
		Long: `Generate a DOT or Mermaid graph of resource dependencies across all stacks.

Edges come from DependsOn (dashed), Ref and Fn::Sub, Fn::GetAtt (blue) and
cross-stack imports (red, dashed).

The output can be rendered with Graphviz:
    cohort-infra graph | dot -Tpng -o deps.png

Examples:
    cohort-infra graph
    cohort-infra graph --cluster stack
    cohort-infra graph --cluster service -f mermaid
    cohort-infra graph --stacks`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := &graph.Generator{
				Format:     graph.Format(outputFormat),
				Cluster:    graph.Cluster(cluster),
				StackLevel: stackLevel,
			}
			if err := checkFormat(outputFormat, string(graph.FormatDOT), string(graph.FormatMermaid)); err != nil {
				return err
			}
			switch gen.Cluster {
			case graph.ClusterNone, graph.ClusterStack, graph.ClusterService:
			default:
				return fmt.Errorf("unknown cluster mode: %s", cluster)
			}

			asm, err := c.synth()
			if err != nil {
				return err
			}

			if outputFile == "" {
				return gen.Generate(asm, cmd.OutOrStdout())
			}
			f, err := os.Create(outputFile)
			if err != nil {
				return err
			}
			if err := gen.Generate(asm, f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVarP(&outputFormat, "format", "f", "dot", "Output format: dot or mermaid")
	cmd.Flags().StringVar(&cluster, "cluster", "", "Group resources by stack or service")
	cmd.Flags().BoolVar(&stackLevel, "stacks", false, "Draw one node per stack")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}
