// Package config loads the cohort-infra configuration.
//
// Values are layered: built-in defaults, then the YAML file, then COHORT_*
// environment variables. Command-line flags are applied last by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"regexp"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file looked up in the working directory.
const FileName = "cohort.yaml"

// Config is the full application configuration.
type Config struct {
	App     string            `yaml:"app" env:"COHORT_APP"`
	Region  string            `yaml:"region" env:"COHORT_REGION"`
	Profile string            `yaml:"profile" env:"COHORT_PROFILE"`
	OutDir  string            `yaml:"out_dir" env:"COHORT_OUT_DIR"`
	Tags    map[string]string `yaml:"tags" env:"COHORT_TAGS"`

	Stacks   StackNames `yaml:"stacks"`
	Network  Network    `yaml:"network"`
	Database Database   `yaml:"database"`
	API      API        `yaml:"api"`
	Notebook Notebook   `yaml:"notebook"`
	Assets   Assets     `yaml:"assets"`
	Log      Log        `yaml:"log"`
}

// StackNames are the CloudFormation stack names of the four stacks.
type StackNames struct {
	Network  string `yaml:"network" env:"COHORT_STACK_NETWORK"`
	Database string `yaml:"database" env:"COHORT_STACK_DATABASE"`
	API      string `yaml:"api" env:"COHORT_STACK_API"`
	Notebook string `yaml:"notebook" env:"COHORT_STACK_NOTEBOOK"`
}

// Network holds the VPC layout.
type Network struct {
	VPCCIDR            string `yaml:"vpc_cidr" env:"COHORT_VPC_CIDR"`
	PublicSubnetCIDR   string `yaml:"public_subnet_cidr" env:"COHORT_PUBLIC_SUBNET_CIDR"`
	PrivateSubnet1CIDR string `yaml:"private_subnet1_cidr" env:"COHORT_PRIVATE_SUBNET1_CIDR"`
	PrivateSubnet2CIDR string `yaml:"private_subnet2_cidr" env:"COHORT_PRIVATE_SUBNET2_CIDR"`
}

// Database holds the Neptune settings.
type Database struct {
	ClusterIdentifier       string `yaml:"cluster_identifier" env:"COHORT_DB_CLUSTER_IDENTIFIER"`
	InstanceClass           string `yaml:"instance_class" env:"COHORT_DB_INSTANCE_CLASS"`
	Port                    int    `yaml:"port" env:"COHORT_DB_PORT"`
	SubnetGroupName         string `yaml:"subnet_group_name" env:"COHORT_DB_SUBNET_GROUP_NAME"`
	RoleName                string `yaml:"role_name" env:"COHORT_DB_ROLE_NAME"`
	S3PolicyName            string `yaml:"s3_policy_name" env:"COHORT_DB_S3_POLICY_NAME"`
	LogsPolicyName          string `yaml:"logs_policy_name" env:"COHORT_DB_LOGS_POLICY_NAME"`
	StorageEncrypted        bool   `yaml:"storage_encrypted" env:"COHORT_DB_STORAGE_ENCRYPTED"`
	AutoMinorVersionUpgrade bool   `yaml:"auto_minor_version_upgrade" env:"COHORT_DB_AUTO_MINOR_VERSION_UPGRADE"`
}

// API holds the Lambda and API Gateway settings.
type API struct {
	Runtime   string `yaml:"runtime" env:"COHORT_API_RUNTIME"`
	Handler   string `yaml:"handler" env:"COHORT_API_HANDLER"`
	Timeout   int    `yaml:"timeout" env:"COHORT_API_TIMEOUT"`
	LayerPath string `yaml:"layer_path" env:"COHORT_API_LAYER_PATH"`
	Stage     string `yaml:"stage" env:"COHORT_API_STAGE"`
}

// Notebook holds the SageMaker notebook settings.
type Notebook struct {
	InstanceType      string `yaml:"instance_type" env:"COHORT_NOTEBOOK_INSTANCE_TYPE"`
	GraphNotebookURI  string `yaml:"graph_notebook_uri" env:"COHORT_NOTEBOOK_GRAPH_NOTEBOOK_URI"`
	SampleNotebookURI string `yaml:"sample_notebook_uri" env:"COHORT_NOTEBOOK_SAMPLE_URI"`
	SeedQueriesURI    string `yaml:"seed_queries_uri" env:"COHORT_NOTEBOOK_SEED_URI"`
}

// Assets locates the local asset tree and the bucket it is published to.
type Assets struct {
	Bucket string `yaml:"bucket" env:"COHORT_ASSETS_BUCKET"`
	Dir    string `yaml:"dir" env:"COHORT_ASSETS_DIR"`
}

// Log configures the zap logger.
type Log struct {
	Level  string `yaml:"level" env:"COHORT_LOG_LEVEL"`
	Format string `yaml:"format" env:"COHORT_LOG_FORMAT"`
}

// Default returns the configuration of the reference deployment.
func Default() *Config {
	return &Config{
		App:    "CohortModeler",
		OutDir: "cdk.out",
		Stacks: StackNames{
			Network:  "CohortModeler-Networking",
			Database: "CohortModelerDatabase",
			API:      "CohortModelerApi",
			Notebook: "CohortModelerNotebook",
		},
		Network: Network{
			VPCCIDR:            "10.0.0.0/16",
			PublicSubnetCIDR:   "10.0.1.0/24",
			PrivateSubnet1CIDR: "10.0.2.0/24",
			PrivateSubnet2CIDR: "10.0.3.0/24",
		},
		Database: Database{
			ClusterIdentifier:       "cohort-modeler-graph-db",
			InstanceClass:           "db.r5.large",
			Port:                    8182,
			SubnetGroupName:         "cohort-db-subnet-group",
			RoleName:                "Cohort-neptune-iam-role",
			S3PolicyName:            "Cohort-neptune-s3-policy",
			LogsPolicyName:          "Cohort-neptune-cw-policy",
			AutoMinorVersionUpgrade: true,
		},
		API: API{
			Runtime:   "python3.8",
			Handler:   "app.handler",
			Timeout:   3,
			LayerPath: "api/layers/validator.zip",
			Stage:     "Prod",
		},
		Notebook: Notebook{
			InstanceType:      "ml.t3.medium",
			GraphNotebookURI:  "s3://aws-neptune-notebook/graph_notebook.tar.gz",
			SampleNotebookURI: "s3://aws-neptune-customer-samples/aws-gametech-blog/cohort-modeler/CohortModelerSampleNotebook.ipynb",
			SeedQueriesURI:    "s3://aws-neptune-customer-samples/aws-gametech-blog/cohort-modeler/data/seed/",
		},
		Assets: Assets{
			Bucket: "cohort-modeler-assets",
			Dir:    ".",
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds a configuration from defaults, the YAML file at path (skipped
// when path is empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if !filepath.IsAbs(cfg.Assets.Dir) {
			cfg.Assets.Dir = filepath.Join(filepath.Dir(path), cfg.Assets.Dir)
		}
	}
	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Find returns the path of the configuration file in dir, or "" when there is none.
func Find(dir string) string {
	path := filepath.Join(dir, FileName)
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return ""
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// ParseEnv applies COHORT_* environment variables onto target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// stageName matches the names API Gateway accepts for a stage.
var stageName = regexp.MustCompile(`^[A-Za-z0-9_]{1,128}$`)

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	required := func(field, value string) {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", field))
		}
	}

	required("app", c.App)
	required("stacks.network", c.Stacks.Network)
	required("stacks.database", c.Stacks.Database)
	required("stacks.api", c.Stacks.API)
	required("stacks.notebook", c.Stacks.Notebook)
	required("database.cluster_identifier", c.Database.ClusterIdentifier)
	required("database.instance_class", c.Database.InstanceClass)
	required("api.runtime", c.API.Runtime)
	required("api.handler", c.API.Handler)
	required("api.layer_path", c.API.LayerPath)
	required("api.stage", c.API.Stage)
	required("notebook.instance_type", c.Notebook.InstanceType)

	names := map[string]string{}
	for field, name := range map[string]string{
		"stacks.network":  c.Stacks.Network,
		"stacks.database": c.Stacks.Database,
		"stacks.api":      c.Stacks.API,
		"stacks.notebook": c.Stacks.Notebook,
	} {
		if name == "" {
			continue
		}
		if other, dup := names[name]; dup {
			errs = append(errs, fmt.Errorf("%s and %s share the stack name %q", min(field, other), max(field, other), name))
		}
		names[name] = field
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		errs = append(errs, fmt.Errorf("database.port %d out of range", c.Database.Port))
	}
	if c.API.Timeout < 1 || c.API.Timeout > 900 {
		errs = append(errs, fmt.Errorf("api.timeout %d must be between 1 and 900 seconds", c.API.Timeout))
	}
	if c.API.Stage != "" && !stageName.MatchString(c.API.Stage) {
		errs = append(errs, fmt.Errorf("api.stage %q may only contain letters, digits and underscores", c.API.Stage))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be console or json", c.Log.Format))
	}

	errs = append(errs, c.Network.validate()...)
	return errors.Join(errs...)
}

func (n Network) validate() []error {
	var errs []error
	vpc, err := netip.ParsePrefix(n.VPCCIDR)
	if err != nil {
		return []error{fmt.Errorf("network.vpc_cidr: %w", err)}
	}

	subnets := []struct {
		field string
		cidr  string
	}{
		{"network.public_subnet_cidr", n.PublicSubnetCIDR},
		{"network.private_subnet1_cidr", n.PrivateSubnet1CIDR},
		{"network.private_subnet2_cidr", n.PrivateSubnet2CIDR},
	}
	var parsed []netip.Prefix
	var fields []string
	for _, s := range subnets {
		p, err := netip.ParsePrefix(s.cidr)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.field, err))
			continue
		}
		if !Contains(vpc, p) {
			errs = append(errs, fmt.Errorf("%s %s is outside the VPC %s", s.field, s.cidr, n.VPCCIDR))
		}
		for i, other := range parsed {
			if p.Overlaps(other) {
				errs = append(errs, fmt.Errorf("%s %s overlaps %s", s.field, s.cidr, fields[i]))
			}
		}
		parsed = append(parsed, p)
		fields = append(fields, s.field)
	}
	return errs
}

// Contains reports whether inner lies entirely within outer.
func Contains(outer, inner netip.Prefix) bool {
	return outer.Bits() <= inner.Bits() && outer.Contains(inner.Masked().Addr())
}
