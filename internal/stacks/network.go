package stacks

import (
	"github.com/cohort-modeler/cohort-infra/internal/config"
	"github.com/cohort-modeler/cohort-infra/internal/construct"
	"github.com/cohort-modeler/cohort-infra/intrinsics"
	"github.com/cohort-modeler/cohort-infra/resources/ec2"
)

// RegionTable maps each supported region to the two availability zones the
// subnets are placed in.
var RegionTable = intrinsics.Mapping{
	"ap-southeast-1": {"AZ1": "ap-southeast-1a", "AZ2": "ap-southeast-1b"},
	"ap-southeast-2": {"AZ1": "ap-southeast-2a", "AZ2": "ap-southeast-2b"},
	"ap-northeast-1": {"AZ1": "ap-northeast-1a", "AZ2": "ap-northeast-1b"},
	"ap-northeast-2": {"AZ1": "ap-northeast-2a", "AZ2": "ap-northeast-2b"},
	"ap-south-1":     {"AZ1": "ap-south-1a", "AZ2": "ap-south-1b"},
	"ap-east-1":      {"AZ1": "ap-east-1a", "AZ2": "ap-east-1b"},
	"ca-central-1":   {"AZ1": "ca-central-1a", "AZ2": "ca-central-1b"},
	"eu-central-1":   {"AZ1": "eu-central-1a", "AZ2": "eu-central-1b"},
	"eu-west-1":      {"AZ1": "eu-west-1a", "AZ2": "eu-west-1b"},
	"eu-west-2":      {"AZ1": "eu-west-2a", "AZ2": "eu-west-2b"},
	"eu-west-3":      {"AZ1": "eu-west-3a", "AZ2": "eu-west-3b"},
	"eu-north-1":     {"AZ1": "eu-north-1a", "AZ2": "eu-north-1b"},
	"sa-east-1":      {"AZ1": "sa-east-1a", "AZ2": "sa-east-1b"},
	"us-east-1":      {"AZ1": "us-east-1a", "AZ2": "us-east-1b"},
	"us-east-2":      {"AZ1": "us-east-2a", "AZ2": "us-east-2b"},
	"us-west-1":      {"AZ1": "us-west-1a", "AZ2": "us-west-1b"},
	"us-west-2":      {"AZ1": "us-west-2a", "AZ2": "us-west-2b"},
}

// Network is the VPC shared by the other stacks.
type Network struct {
	Stack           *construct.Stack
	RegionTable     *construct.MappingHandle
	VPC             *construct.Node
	PublicSubnet    *Subnet
	PrivateSubnet1  *Subnet
	PrivateSubnet2  *Subnet
	InternetGateway *construct.Node
	S3Endpoint      *construct.Node
}

// Subnet is a subnet with its own route table.
type Subnet struct {
	Node       *construct.Node
	RouteTable *construct.Node
}

// VPCCidr returns the VPC's CIDR block attribute.
func (n *Network) VPCCidr() construct.Reference {
	return n.VPC.GetAtt("CidrBlock")
}

// AZ returns the region table lookup for AZ1 or AZ2 of the deploying region.
func (n *Network) AZ(key string) construct.MappingLookup {
	return n.RegionTable.FindInMap(intrinsics.AWS_REGION, key)
}

// PrivateSubnetIDs returns both private subnets.
func (n *Network) PrivateSubnetIDs() []any {
	return intrinsics.Any(n.PrivateSubnet1.Node, n.PrivateSubnet2.Node)
}

// NewNetwork declares the networking stack: a VPC with one public subnet,
// two private subnets each behind their own NAT gateway, and an S3 gateway
// endpoint for the private route tables.
func NewNetwork(app *construct.App, cfg *config.Config) *Network {
	s := app.NewStack(cfg.Stacks.Network, construct.StackProps{
		Description: "Cohort Modeler networking: VPC, subnets, NAT and S3 endpoint",
		Tags:        cfg.Tags,
	})
	n := &Network{Stack: s}

	n.RegionTable = s.AddMapping("RegionTable", RegionTable)

	n.VPC = s.Add("CohortModelerVPC", &ec2.VPC{
		CidrBlock:          cfg.Network.VPCCIDR,
		EnableDnsSupport:   intrinsics.Bool(true),
		EnableDnsHostnames: intrinsics.Bool(true),
		Tags:               intrinsics.Tags("Name", "CohortModelerVPC"),
	})

	n.PublicSubnet = n.subnet("CohortPublicSubnet", cfg.Network.PublicSubnetCIDR, "AZ1", true)

	n.InternetGateway = s.Add("CohortModelerInternetGateway", &ec2.InternetGateway{})
	attachment := s.Add("CohortModelerInternetGatewayAttachement", &ec2.VPCGatewayAttachment{
		VpcId:             n.VPC,
		InternetGatewayId: n.InternetGateway,
	})
	s.Add("CohortPublicSubnetDefaultRoute", &ec2.Route{
		RouteTableId:         n.PublicSubnet.RouteTable,
		DestinationCidrBlock: "0.0.0.0/0",
		GatewayId:            n.InternetGateway,
	}).AddDependency(attachment)

	// NAT gateways sit in the public subnet, not the private subnet they
	// serve. A NAT gateway inside a private subnet has no route out.
	n.PrivateSubnet1 = n.subnet("CohortPrivateSubnet1", cfg.Network.PrivateSubnet1CIDR, "AZ1", false)
	n.natRoute(n.PrivateSubnet1, "1")
	n.PrivateSubnet2 = n.subnet("CohortPrivateSubnet2", cfg.Network.PrivateSubnet2CIDR, "AZ2", false)
	n.natRoute(n.PrivateSubnet2, "2")

	n.S3Endpoint = s.Add("CohortS3VPCEndpoint", &ec2.VPCEndpoint{
		VpcId:           n.VPC,
		ServiceName:     intrinsics.ServiceEndpoint("s3"),
		VpcEndpointType: "Gateway",
		RouteTableIds:   intrinsics.Any(n.PrivateSubnet1.RouteTable, n.PrivateSubnet2.RouteTable),
		PolicyDocument: intrinsics.NewPolicyDocument(intrinsics.PolicyStatement{
			Effect:    "Allow",
			Principal: intrinsics.AllPrincipal,
			Action:    intrinsics.Any("s3:Get*", "s3:List*"),
			Resource:  intrinsics.Any(intrinsics.ARN("s3", false, false, "*")),
		}),
	})

	return n
}

func (n *Network) subnet(id, cidr, az string, public bool) *Subnet {
	s := n.Stack
	subnet := s.Add(id, &ec2.Subnet{
		VpcId:               n.VPC,
		AvailabilityZone:    n.AZ(az),
		CidrBlock:           cidr,
		MapPublicIpOnLaunch: intrinsics.Bool(public),
		Tags:                intrinsics.Tags("Name", id),
	})
	table := s.Add(id+"RouteTable", &ec2.RouteTable{VpcId: n.VPC})
	s.Add(id+"RouteTableAssociation", &ec2.SubnetRouteTableAssociation{
		RouteTableId: table,
		SubnetId:     subnet,
	})
	return &Subnet{Node: subnet, RouteTable: table}
}

func (n *Network) natRoute(private *Subnet, suffix string) {
	s := n.Stack
	eip := s.Add("CohortModelerEIP"+suffix, &ec2.EIP{Domain: "vpc"})
	nat := s.Add("CohortModelerNatGateway"+suffix, &ec2.NatGateway{
		SubnetId:     n.PublicSubnet.Node,
		AllocationId: eip.GetAtt("AllocationId"),
	})
	s.Add("CohortPublicRoutePrivateSubnet"+suffix, &ec2.Route{
		RouteTableId:         private.RouteTable,
		DestinationCidrBlock: "0.0.0.0/0",
		NatGatewayId:         nat,
	})
}
