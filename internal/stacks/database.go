package stacks

import (
	"github.com/cohort-modeler/cohort-infra/internal/config"
	"github.com/cohort-modeler/cohort-infra/internal/construct"
	"github.com/cohort-modeler/cohort-infra/intrinsics"
	"github.com/cohort-modeler/cohort-infra/resources/ec2"
	"github.com/cohort-modeler/cohort-infra/resources/iam"
	"github.com/cohort-modeler/cohort-infra/resources/neptune"
)

// Database is the Neptune graph database stack.
type Database struct {
	Stack         *construct.Stack
	SecurityGroup *construct.Node
	Role          *construct.Node
	SubnetGroup   *construct.Node
	Cluster       *construct.Node
	Instance      *construct.Node
}

// Endpoint returns the cluster endpoint attribute.
func (d *Database) Endpoint() construct.Reference { return d.Cluster.GetAtt("Endpoint") }

// Port returns the cluster port attribute.
func (d *Database) Port() construct.Reference { return d.Cluster.GetAtt("Port") }

// RoleArn returns the ARN of the role Neptune uses for bulk loads.
func (d *Database) RoleArn() construct.Reference { return d.Role.GetAtt("Arn") }

// NewDatabase declares the Neptune cluster in the private subnets of net.
func NewDatabase(app *construct.App, cfg *config.Config, net *Network) *Database {
	s := app.NewStack(cfg.Stacks.Database, construct.StackProps{
		Description: "Cohort Modeler Neptune graph database",
		Tags:        cfg.Tags,
	})
	d := &Database{Stack: s}
	db := cfg.Database

	d.SecurityGroup = s.Add("CohortModelerSecurityGroup", &ec2.SecurityGroup{
		GroupDescription: "SG of Neptune DB",
		VpcId:            net.VPC,
		SecurityGroupEgress: intrinsics.List(ec2.SecurityGroup_Egress{
			IpProtocol: "tcp",
			CidrIp:     net.VPCCidr(),
			FromPort:   db.Port,
			ToPort:     db.Port,
		}),
		SecurityGroupIngress: intrinsics.List(ec2.SecurityGroup_Ingress{
			IpProtocol: "tcp",
			CidrIp:     net.VPCCidr(),
			FromPort:   db.Port,
			ToPort:     db.Port,
		}),
	})

	s3Policy := s.Add("CohortManagedRoleS3", &iam.ManagedPolicy{
		Description:       "Neptune default policy for S3 access for data load",
		ManagedPolicyName: db.S3PolicyName,
		PolicyDocument: intrinsics.NewPolicyDocument(
			intrinsics.Allow([]string{"s3:Get*", "s3:List*"}, intrinsics.ARN("s3", false, false, "*")),
		),
	})

	logsPolicy := s.Add("CohortManagedRoleLogs", &iam.ManagedPolicy{
		Description:       "Default policy for CloudWatch logs",
		ManagedPolicyName: db.LogsPolicyName,
		PolicyDocument: intrinsics.NewPolicyDocument(
			intrinsics.Allow(
				[]string{"logs:CreateLogGroup", "logs:PutRetentionPolicy"},
				intrinsics.ARN("logs", true, true, "log-group:/aws/neptune/*"),
			),
			intrinsics.Allow(
				[]string{"logs:CreateLogStream", "logs:PutLogEvents", "logs:DescribeLogStreams", "logs:GetLogEvents"},
				intrinsics.ARN("logs", true, true, "log-group:/aws/neptune/*:log-stream:*"),
			),
		),
	})

	d.Role = s.Add("CohortNeptuneDBRole", &iam.Role{
		RoleName:                 db.RoleName,
		AssumeRolePolicyDocument: intrinsics.AssumeRolePolicy("rds.amazonaws.com", "monitoring.rds.amazonaws.com"),
		ManagedPolicyArns:        intrinsics.Any(s3Policy, logsPolicy),
	})

	d.SubnetGroup = s.Add("CohortSubnetGroup", &neptune.DBSubnetGroup{
		DBSubnetGroupName:        db.SubnetGroupName,
		DBSubnetGroupDescription: "Subnets for Cohort Neptune Database",
		SubnetIds:                net.PrivateSubnetIDs(),
	})

	d.Cluster = s.Add("CohortGraphDB", &neptune.DBCluster{
		DBClusterIdentifier: db.ClusterIdentifier,
		AvailabilityZones:   intrinsics.Any(net.AZ("AZ1"), net.AZ("AZ2")),
		DBPort:              db.Port,
		DBSubnetGroupName:   d.SubnetGroup,
		VpcSecurityGroupIds: intrinsics.Any(d.SecurityGroup.GetAtt("GroupId")),
		StorageEncrypted:    intrinsics.Bool(db.StorageEncrypted),
		AssociatedRoles: intrinsics.List(neptune.DBCluster_DBClusterRole{
			RoleArn: d.RoleArn(),
		}),
	}).AddDependency(d.SecurityGroup, d.Role, d.SubnetGroup)

	d.Instance = s.Add("CohortGraphInstance", &neptune.DBInstance{
		DBInstanceClass:         db.InstanceClass,
		AutoMinorVersionUpgrade: intrinsics.Bool(db.AutoMinorVersionUpgrade),
		DBClusterIdentifier:     d.Cluster,
	}).AddDependency(d.Cluster)

	s.AddOutput("ClusterEndpoint", d.Endpoint(), "Neptune cluster endpoint")
	s.AddOutput("ClusterPort", d.Port(), "Neptune cluster port")

	return d
}
