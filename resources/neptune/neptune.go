// Package neptune provides the AWS::Neptune resource types.
package neptune

// DBSubnetGroup is AWS::Neptune::DBSubnetGroup. Its Ref is the group name.
type DBSubnetGroup struct {
	DBSubnetGroupDescription string `json:"DBSubnetGroupDescription,omitempty"`
	DBSubnetGroupName        any    `json:"DBSubnetGroupName,omitempty"`
	SubnetIds                []any  `json:"SubnetIds,omitempty"`
	Tags                     []any  `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (DBSubnetGroup) ResourceType() string { return "AWS::Neptune::DBSubnetGroup" }

// DBCluster is AWS::Neptune::DBCluster. Its Ref is the cluster identifier.
type DBCluster struct {
	AssociatedRoles             []DBCluster_DBClusterRole `json:"AssociatedRoles,omitempty"`
	AvailabilityZones           []any                     `json:"AvailabilityZones,omitempty"`
	BackupRetentionPeriod       int                       `json:"BackupRetentionPeriod,omitempty"`
	DBClusterIdentifier         any                       `json:"DBClusterIdentifier,omitempty"`
	DBPort                      int                       `json:"DBPort,omitempty"`
	DBSubnetGroupName           any                       `json:"DBSubnetGroupName,omitempty"`
	DeletionProtection          *bool                     `json:"DeletionProtection,omitempty"`
	EngineVersion               string                    `json:"EngineVersion,omitempty"`
	IamAuthEnabled              *bool                     `json:"IamAuthEnabled,omitempty"`
	StorageEncrypted            *bool                     `json:"StorageEncrypted,omitempty"`
	VpcSecurityGroupIds         []any                     `json:"VpcSecurityGroupIds,omitempty"`
	EnableCloudwatchLogsExports []string                  `json:"EnableCloudwatchLogsExports,omitempty"`
	Tags                        []any                     `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (DBCluster) ResourceType() string { return "AWS::Neptune::DBCluster" }

// Attributes returns the Fn::GetAtt attribute names.
func (DBCluster) Attributes() []string {
	return []string{"ClusterResourceId", "Endpoint", "Port", "ReadEndpoint"}
}

// DBCluster_DBClusterRole associates an IAM role with the cluster.
type DBCluster_DBClusterRole struct {
	FeatureName string `json:"FeatureName,omitempty"`
	RoleArn     any    `json:"RoleArn"`
}

// DBInstance is AWS::Neptune::DBInstance.
type DBInstance struct {
	AutoMinorVersionUpgrade    *bool  `json:"AutoMinorVersionUpgrade,omitempty"`
	DBClusterIdentifier        any    `json:"DBClusterIdentifier,omitempty"`
	DBInstanceClass            any    `json:"DBInstanceClass"`
	DBInstanceIdentifier       any    `json:"DBInstanceIdentifier,omitempty"`
	DBSubnetGroupName          any    `json:"DBSubnetGroupName,omitempty"`
	PreferredMaintenanceWindow string `json:"PreferredMaintenanceWindow,omitempty"`
	Tags                       []any  `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (DBInstance) ResourceType() string { return "AWS::Neptune::DBInstance" }

// Attributes returns the Fn::GetAtt attribute names.
func (DBInstance) Attributes() []string { return []string{"Endpoint", "Port"} }
