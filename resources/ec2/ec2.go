// Package ec2 provides the AWS::EC2 resource types used by the network stack.
package ec2

// VPC is AWS::EC2::VPC.
type VPC struct {
	CidrBlock          any    `json:"CidrBlock,omitempty"`
	EnableDnsHostnames *bool  `json:"EnableDnsHostnames,omitempty"`
	EnableDnsSupport   *bool  `json:"EnableDnsSupport,omitempty"`
	InstanceTenancy    string `json:"InstanceTenancy,omitempty"`
	Tags               []any  `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (VPC) ResourceType() string { return "AWS::EC2::VPC" }

// Attributes returns the Fn::GetAtt attribute names.
func (VPC) Attributes() []string {
	return []string{"CidrBlock", "CidrBlockAssociations", "DefaultNetworkAcl", "DefaultSecurityGroup", "Ipv6CidrBlocks", "VpcId"}
}

// Subnet is AWS::EC2::Subnet.
type Subnet struct {
	AvailabilityZone    any   `json:"AvailabilityZone,omitempty"`
	CidrBlock           any   `json:"CidrBlock,omitempty"`
	MapPublicIpOnLaunch *bool `json:"MapPublicIpOnLaunch,omitempty"`
	VpcId               any   `json:"VpcId,omitempty"`
	Tags                []any `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (Subnet) ResourceType() string { return "AWS::EC2::Subnet" }

// Attributes returns the Fn::GetAtt attribute names.
func (Subnet) Attributes() []string {
	return []string{"AvailabilityZone", "CidrBlock", "NetworkAclAssociationId", "SubnetId", "VpcId"}
}

// InternetGateway is AWS::EC2::InternetGateway.
type InternetGateway struct {
	Tags []any `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (InternetGateway) ResourceType() string { return "AWS::EC2::InternetGateway" }

// Attributes returns the Fn::GetAtt attribute names.
func (InternetGateway) Attributes() []string { return []string{"InternetGatewayId"} }

// VPCGatewayAttachment is AWS::EC2::VPCGatewayAttachment.
type VPCGatewayAttachment struct {
	InternetGatewayId any `json:"InternetGatewayId,omitempty"`
	VpcId             any `json:"VpcId,omitempty"`
	VpnGatewayId      any `json:"VpnGatewayId,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (VPCGatewayAttachment) ResourceType() string { return "AWS::EC2::VPCGatewayAttachment" }

// RouteTable is AWS::EC2::RouteTable.
type RouteTable struct {
	VpcId any   `json:"VpcId,omitempty"`
	Tags  []any `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (RouteTable) ResourceType() string { return "AWS::EC2::RouteTable" }

// Attributes returns the Fn::GetAtt attribute names.
func (RouteTable) Attributes() []string { return []string{"RouteTableId"} }

// SubnetRouteTableAssociation is AWS::EC2::SubnetRouteTableAssociation.
type SubnetRouteTableAssociation struct {
	RouteTableId any `json:"RouteTableId,omitempty"`
	SubnetId     any `json:"SubnetId,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (SubnetRouteTableAssociation) ResourceType() string {
	return "AWS::EC2::SubnetRouteTableAssociation"
}

// Attributes returns the Fn::GetAtt attribute names.
func (SubnetRouteTableAssociation) Attributes() []string { return []string{"Id"} }

// Route is AWS::EC2::Route.
type Route struct {
	DestinationCidrBlock any `json:"DestinationCidrBlock,omitempty"`
	GatewayId            any `json:"GatewayId,omitempty"`
	NatGatewayId         any `json:"NatGatewayId,omitempty"`
	RouteTableId         any `json:"RouteTableId,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (Route) ResourceType() string { return "AWS::EC2::Route" }

// Attributes returns the Fn::GetAtt attribute names.
func (Route) Attributes() []string { return []string{"CidrBlock"} }

// EIP is AWS::EC2::EIP.
type EIP struct {
	Domain string `json:"Domain,omitempty"`
	Tags   []any  `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (EIP) ResourceType() string { return "AWS::EC2::EIP" }

// Attributes returns the Fn::GetAtt attribute names.
func (EIP) Attributes() []string { return []string{"AllocationId", "PublicIp"} }

// NatGateway is AWS::EC2::NatGateway.
type NatGateway struct {
	AllocationId     any    `json:"AllocationId,omitempty"`
	ConnectivityType string `json:"ConnectivityType,omitempty"`
	SubnetId         any    `json:"SubnetId,omitempty"`
	Tags             []any  `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (NatGateway) ResourceType() string { return "AWS::EC2::NatGateway" }

// Attributes returns the Fn::GetAtt attribute names.
func (NatGateway) Attributes() []string { return []string{"NatGatewayId"} }

// SecurityGroup is AWS::EC2::SecurityGroup.
type SecurityGroup struct {
	GroupDescription     string                  `json:"GroupDescription,omitempty"`
	GroupName            any                     `json:"GroupName,omitempty"`
	SecurityGroupEgress  []SecurityGroup_Egress  `json:"SecurityGroupEgress,omitempty"`
	SecurityGroupIngress []SecurityGroup_Ingress `json:"SecurityGroupIngress,omitempty"`
	VpcId                any                     `json:"VpcId,omitempty"`
	Tags                 []any                   `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (SecurityGroup) ResourceType() string { return "AWS::EC2::SecurityGroup" }

// Attributes returns the Fn::GetAtt attribute names.
func (SecurityGroup) Attributes() []string { return []string{"GroupId", "VpcId"} }

// SecurityGroup_Ingress is an inbound rule. Ports are typed any so that port 0
// survives serialization.
type SecurityGroup_Ingress struct {
	CidrIp      any    `json:"CidrIp,omitempty"`
	Description string `json:"Description,omitempty"`
	FromPort    any    `json:"FromPort,omitempty"`
	IpProtocol  string `json:"IpProtocol"`
	ToPort      any    `json:"ToPort,omitempty"`
}

// SecurityGroup_Egress is an outbound rule.
type SecurityGroup_Egress struct {
	CidrIp      any    `json:"CidrIp,omitempty"`
	Description string `json:"Description,omitempty"`
	FromPort    any    `json:"FromPort,omitempty"`
	IpProtocol  string `json:"IpProtocol"`
	ToPort      any    `json:"ToPort,omitempty"`
}

// VPCEndpoint is AWS::EC2::VPCEndpoint.
type VPCEndpoint struct {
	PolicyDocument  any    `json:"PolicyDocument,omitempty"`
	RouteTableIds   []any  `json:"RouteTableIds,omitempty"`
	ServiceName     any    `json:"ServiceName,omitempty"`
	VpcEndpointType string `json:"VpcEndpointType,omitempty"`
	VpcId           any    `json:"VpcId,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (VPCEndpoint) ResourceType() string { return "AWS::EC2::VPCEndpoint" }

// Attributes returns the Fn::GetAtt attribute names.
func (VPCEndpoint) Attributes() []string {
	return []string{"CreationTimestamp", "DnsEntries", "Id", "NetworkInterfaceIds"}
}
