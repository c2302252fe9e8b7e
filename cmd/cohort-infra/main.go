// Command cohort-infra synthesizes and deploys the Cohort Modeler infrastructure.
//
// Usage:
//
//	cohort-infra synth                 Write the cloud assembly to cdk.out
//	cohort-infra validate              Check templates, networks and references
//	cohort-infra lint                  Check templates against Cohort rules
//	cohort-infra diff cdk.out          Compare a previous assembly with the current one
//	cohort-infra deploy                Deploy every stack in dependency order
//	cohort-infra destroy --yes         Delete every stack in reverse order
//	cohort-infra version               Show version
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(exitCode(err))
	}
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:   "cohort-infra",
		Short: "Cohort Modeler infrastructure as Go",
		Long: `cohort-infra declares the Cohort Modeler AWS infrastructure in Go.

Four stacks are synthesized into a cloud assembly:

    CohortModeler-Networking   VPC, subnets, NAT gateways, S3 endpoint
    CohortModelerDatabase      Neptune graph database
    CohortModelerApi           SAM functions behind API Gateway
    CohortModelerNotebook      SageMaker notebook for the graph database

Settings come from cohort.yaml, COHORT_* environment variables and flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "Config file (default: ./cohort.yaml when present)")
	flags.StringVar(&c.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&c.logFormat, "log-format", "", "Log format: console or json")
	flags.StringVar(&c.outDir, "out", "", "Cloud assembly directory")
	flags.StringVar(&c.region, "region", "", "AWS region")
	flags.StringVar(&c.profile, "profile", "", "AWS shared config profile")

	rootCmd.AddCommand(
		newSynthCmd(c),
		newListCmd(c),
		newGraphCmd(c),
		newValidateCmd(c),
		newLintCmd(c),
		newDiffCmd(c),
		newDeployCmd(c),
		newDestroyCmd(c),
		newWatchCmd(c),
		newVersionCmd(),
	)

	return rootCmd
}

// exitError carries a process exit code. Code 2 means a check found issues.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func issuesFound(format string, args ...any) error {
	return &exitError{code: 2, msg: fmt.Sprintf(format, args...)}
}

// exitCode prints err and maps it to the process exit code.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			fmt.Fprintln(os.Stderr, ee.msg)
		}
		return ee.code
	}
	fmt.Fprintln(os.Stderr, err)
	return 1
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "cohort-infra %s\n", getVersion())
		},
	}
}
