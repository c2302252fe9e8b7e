package stacks

import (
	"strings"

	"github.com/cohort-modeler/cohort-infra/internal/config"
	"github.com/cohort-modeler/cohort-infra/internal/construct"
	"github.com/cohort-modeler/cohort-infra/intrinsics"
	"github.com/cohort-modeler/cohort-infra/resources/ec2"
	"github.com/cohort-modeler/cohort-infra/resources/iam"
	"github.com/cohort-modeler/cohort-infra/resources/sagemaker"
)

// graphNotebookSeedDir is where graph-notebook looks for property graph seed queries.
const graphNotebookSeedDir = "/home/ec2-user/anaconda3/envs/JupyterSystemEnv/lib/python3.7/site-packages/graph_notebook/seed/queries/propertygraph/cohort_modeler/"

// Notebook is the SageMaker notebook stack.
type Notebook struct {
	Stack           *construct.Stack
	SecurityGroup   *construct.Node
	Role            *construct.Node
	LifecycleConfig *construct.Node
	Instance        *construct.Node
}

// BootScript returns the on-start script of the notebook instance. It holds
// Fn::Sub placeholders for the Neptune endpoint, port and load role.
func BootScript(nb config.Notebook) string {
	lines := []string{
		"#!/bin/bash",
		"sudo -u ec2-user -i << 'EOF'",
		"echo 'export GRAPH_NOTEBOOK_AUTH_MODE=DEFAULT' >> ~/.bashrc",
		"echo 'export GRAPH_NOTEBOOK_HOST=${NeptuneEndpoint}' >> ~/.bashrc",
		"echo 'export GRAPH_NOTEBOOK_PORT=${NeptunePort}' >> ~/.bashrc",
		"echo 'export NEPTUNE_LOAD_FROM_S3_ROLE_ARN=${NeptuneRoleArn}' >> ~/.bashrc",
		"echo 'export AWS_REGION=${AWS::Region}' >> ~/.bashrc",
		"aws s3 cp " + nb.GraphNotebookURI + " /tmp/graph_notebook.tar.gz",
		"rm -rf /tmp/graph_notebook",
		"tar -zxvf /tmp/graph_notebook.tar.gz -C /tmp",
		"/tmp/graph_notebook/install.sh",
		"aws s3 cp " + nb.SeedQueriesURI + " " + graphNotebookSeedDir + " --recursive",
		"aws s3 cp " + nb.SampleNotebookURI + " /home/ec2-user/SageMaker/",
		"EOF",
	}
	return strings.Join(lines, "\n") + "\n"
}

// NewNotebook declares a notebook instance in the public subnet, configured on
// start to talk to the Neptune cluster of db.
func NewNotebook(app *construct.App, cfg *config.Config, net *Network, db *Database) *Notebook {
	s := app.NewStack(cfg.Stacks.Notebook, construct.StackProps{
		Description: "Cohort Modeler SageMaker notebook",
		Tags:        cfg.Tags,
	})
	nb := &Notebook{Stack: s}

	nb.SecurityGroup = s.Add("CohortNotebookSecurityGroup", &ec2.SecurityGroup{
		GroupDescription: "SG of Cohort Notebook Instance",
		VpcId:            net.VPC,
		SecurityGroupEgress: intrinsics.List(ec2.SecurityGroup_Egress{
			IpProtocol: "-1",
			CidrIp:     net.VPCCidr(),
			FromPort:   0,
			ToPort:     65535,
		}),
	})

	cloudwatch := intrinsics.ARN("cloudwatch", true, true, "*")
	allObjects := intrinsics.ARN("s3", false, false, "*")
	nb.Role = s.Add("CohortNotebookRole", &iam.Role{
		AssumeRolePolicyDocument: intrinsics.AssumeRolePolicy("sagemaker.amazonaws.com"),
		Path:                     "/",
		Policies: []iam.Role_Policy{{
			PolicyName: "NotebookPolicy",
			PolicyDocument: intrinsics.NewPolicyDocument(
				intrinsics.Allow([]string{"cloudwatch:PutMetricData"}, cloudwatch),
				intrinsics.Allow([]string{
					"logs:CreateLogGroup",
					"logs:CreateLogStream",
					"logs:DescribeLogStreams",
					"logs:PutLogEvents",
					"logs:GetLogEvents",
				}, cloudwatch),
				intrinsics.Allow([]string{"s3:Get*", "s3:List*"}, allObjects),
				intrinsics.Allow(
					[]string{"s3:PutObject", "neptune-db:connect", "s3:List"},
					allObjects,
					intrinsics.ARN("rds", true, true, "cluster:*"),
				),
			),
		}},
	})

	nb.LifecycleConfig = s.Add("CohortNotebookLifecycleConfig", &sagemaker.NotebookInstanceLifecycleConfig{
		OnStart: []sagemaker.NotebookInstanceLifecycleConfig_LifecycleHook{{
			Content: intrinsics.Base64{Value: intrinsics.SubWithMap{
				String: BootScript(cfg.Notebook),
				Variables: map[string]any{
					"NeptuneEndpoint": db.Endpoint(),
					"NeptunePort":     db.Port(),
					"NeptuneRoleArn":  db.RoleArn(),
				},
			}},
		}},
	})

	nb.Instance = s.Add("CohortNotebookInstance", &sagemaker.NotebookInstance{
		InstanceType:        cfg.Notebook.InstanceType,
		SubnetId:            net.PublicSubnet.Node,
		SecurityGroupIds:    intrinsics.Any(nb.SecurityGroup.GetAtt("GroupId")),
		RoleArn:             nb.Role.GetAtt("Arn"),
		LifecycleConfigName: nb.LifecycleConfig.GetAtt("NotebookInstanceLifecycleConfigName"),
	}).AddDependency(nb.LifecycleConfig)

	return nb
}
