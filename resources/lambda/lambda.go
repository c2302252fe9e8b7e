// Package lambda provides the AWS::Lambda resource types.
package lambda

// LayerVersion is AWS::Lambda::LayerVersion. Its Ref is the layer version ARN.
type LayerVersion struct {
	CompatibleRuntimes []string              `json:"CompatibleRuntimes,omitempty"`
	Content            *LayerVersion_Content `json:"Content,omitempty"`
	Description        string                `json:"Description,omitempty"`
	LayerName          any                   `json:"LayerName,omitempty"`
	LicenseInfo        string                `json:"LicenseInfo,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (LayerVersion) ResourceType() string { return "AWS::Lambda::LayerVersion" }

// Attributes returns the Fn::GetAtt attribute names.
func (LayerVersion) Attributes() []string { return []string{"LayerVersionArn"} }

// LayerVersion_Content locates the layer archive in S3.
type LayerVersion_Content struct {
	S3Bucket        any    `json:"S3Bucket"`
	S3Key           any    `json:"S3Key"`
	S3ObjectVersion string `json:"S3ObjectVersion,omitempty"`
}
