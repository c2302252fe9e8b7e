package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	infra "github.com/cohort-modeler/cohort-infra"
	"github.com/cohort-modeler/cohort-infra/internal/assembly"
	"github.com/cohort-modeler/cohort-infra/internal/assets"
	"github.com/cohort-modeler/cohort-infra/internal/config"
	"github.com/cohort-modeler/cohort-infra/internal/deploy"
	"github.com/cohort-modeler/cohort-infra/internal/logging"
	"github.com/cohort-modeler/cohort-infra/internal/stacks"
)

// cli holds the global flags and the state they produce.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string
	outDir     string
	region     string
	profile    string

	cfg    *config.Config
	logger *zap.Logger
}

// load resolves the configuration and the logger once per invocation.
// Flags override the file and the environment.
func (c *cli) load() error {
	if c.cfg != nil {
		return nil
	}

	path := c.configPath
	if path == "" {
		path = config.Find(".")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	if c.outDir != "" {
		cfg.OutDir = c.outDir
	}
	if c.region != "" {
		cfg.Region = c.region
	}
	if c.profile != "" {
		cfg.Profile = c.profile
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logger
	c.logger.Debug("configuration loaded",
		zap.String("file", path),
		zap.String("app", cfg.App),
		zap.String("region", cfg.Region),
		zap.String("outDir", cfg.OutDir),
	)
	return nil
}

// synth builds the application and writes the assembly to the output directory.
func (c *cli) synth() (*assembly.Assembly, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	return c.synthTo(c.cfg.OutDir)
}

// build synthesizes the application in memory.
func (c *cli) build() (*assembly.Assembly, error) {
	if err := c.load(); err != nil {
		return nil, err
	}
	asm, err := stacks.New(c.cfg, c.logger).App.Synth()
	if err != nil {
		return nil, fmt.Errorf("synth: %w", err)
	}
	return asm, nil
}

func (c *cli) synthTo(dir string) (*assembly.Assembly, error) {
	asm, err := c.build()
	if err != nil {
		return nil, err
	}
	if err := asm.Write(dir); err != nil {
		return nil, err
	}
	c.logger.Info("assembly written",
		zap.String("dir", dir),
		zap.Int("stacks", len(asm.Manifest.Stacks)),
		zap.Int("resources", asm.ResourceCount()),
		zap.Int("assets", len(asm.Manifest.Assets)),
	)
	return asm, nil
}

// deployer wires the CloudFormation and S3 clients for the configured
// region and profile.
func (c *cli) deployer(ctx context.Context) (*deploy.Deployer, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(c.cfg.Region)}
	if c.cfg.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return newDeployer(awsCfg, c.logger), nil
}

func newDeployer(awsCfg aws.Config, logger *zap.Logger) *deploy.Deployer {
	publisher := assets.NewPublisher(s3.NewFromConfig(awsCfg), awsCfg.Region, logger)
	return deploy.New(cloudformation.NewFromConfig(awsCfg), publisher, deploy.WithLogger(logger))
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func checkFormat(format string, allowed ...string) error {
	for _, f := range allowed {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("unknown format: %s", format)
}

func buildResult(dir string, asm *assembly.Assembly) infra.BuildResult {
	return infra.BuildResult{
		Success:   true,
		OutDir:    dir,
		Stacks:    asm.StackNames(),
		Resources: asm.ResourceCount(),
		Assets:    len(asm.Manifest.Assets),
	}
}
