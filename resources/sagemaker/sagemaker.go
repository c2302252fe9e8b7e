// Package sagemaker provides the AWS::SageMaker notebook resource types.
package sagemaker

// NotebookInstance is AWS::SageMaker::NotebookInstance. Its Ref is the instance ARN.
type NotebookInstance struct {
	DirectInternetAccess string `json:"DirectInternetAccess,omitempty"`
	InstanceType         any    `json:"InstanceType"`
	LifecycleConfigName  any    `json:"LifecycleConfigName,omitempty"`
	NotebookInstanceName any    `json:"NotebookInstanceName,omitempty"`
	RoleArn              any    `json:"RoleArn"`
	RootAccess           string `json:"RootAccess,omitempty"`
	SecurityGroupIds     []any  `json:"SecurityGroupIds,omitempty"`
	SubnetId             any    `json:"SubnetId,omitempty"`
	VolumeSizeInGB       int    `json:"VolumeSizeInGB,omitempty"`
	Tags                 []any  `json:"Tags,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (NotebookInstance) ResourceType() string { return "AWS::SageMaker::NotebookInstance" }

// Attributes returns the Fn::GetAtt attribute names.
func (NotebookInstance) Attributes() []string { return []string{"NotebookInstanceName"} }

// NotebookInstanceLifecycleConfig is AWS::SageMaker::NotebookInstanceLifecycleConfig.
type NotebookInstanceLifecycleConfig struct {
	NotebookInstanceLifecycleConfigName any                                             `json:"NotebookInstanceLifecycleConfigName,omitempty"`
	OnCreate                            []NotebookInstanceLifecycleConfig_LifecycleHook `json:"OnCreate,omitempty"`
	OnStart                             []NotebookInstanceLifecycleConfig_LifecycleHook `json:"OnStart,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (NotebookInstanceLifecycleConfig) ResourceType() string {
	return "AWS::SageMaker::NotebookInstanceLifecycleConfig"
}

// Attributes returns the Fn::GetAtt attribute names.
func (NotebookInstanceLifecycleConfig) Attributes() []string {
	return []string{"NotebookInstanceLifecycleConfigName"}
}

// NotebookInstanceLifecycleConfig_LifecycleHook holds a base64 encoded shell script.
type NotebookInstanceLifecycleConfig_LifecycleHook struct {
	Content any `json:"Content"`
}
