// Package serverless provides AWS SAM resource types.
//
// Templates containing any of these types need the AWS::Serverless-2016-10-31
// transform, which the template builder adds automatically.
package serverless

// Function is AWS::Serverless::Function.
type Function struct {
	CodeUri      any                             `json:"CodeUri,omitempty"`
	Description  string                          `json:"Description,omitempty"`
	Environment  *Function_Environment           `json:"Environment,omitempty"`
	Events       map[string]Function_EventSource `json:"Events,omitempty"`
	FunctionName any                             `json:"FunctionName,omitempty"`
	Handler      string                          `json:"Handler,omitempty"`
	Layers       []any                           `json:"Layers,omitempty"`
	MemorySize   int                             `json:"MemorySize,omitempty"`
	Policies     any                             `json:"Policies,omitempty"`
	Role         any                             `json:"Role,omitempty"`
	Runtime      string                          `json:"Runtime,omitempty"`
	Timeout      int                             `json:"Timeout,omitempty"`
	Tracing      string                          `json:"Tracing,omitempty"`
	VpcConfig    *Function_VpcConfig             `json:"VpcConfig,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (Function) ResourceType() string { return "AWS::Serverless::Function" }

// Attributes returns the Fn::GetAtt attribute names.
func (Function) Attributes() []string { return []string{"Arn"} }

// Api is AWS::Serverless::Api. Without a DefinitionBody, SAM builds the
// OpenAPI definition from the Api events that name it in RestApiId.
type Api struct {
	Name           any    `json:"Name,omitempty"`
	Description    string `json:"Description,omitempty"`
	StageName      string `json:"StageName"`
	TracingEnabled *bool  `json:"TracingEnabled,omitempty"`
}

// ResourceType returns the CloudFormation type.
func (Api) ResourceType() string { return "AWS::Serverless::Api" }

// Attributes returns the Fn::GetAtt attribute names.
func (Api) Attributes() []string { return []string{"RootResourceId"} }

// Function_S3Location points CodeUri at an uploaded archive.
type Function_S3Location struct {
	Bucket  any `json:"Bucket"`
	Key     any `json:"Key"`
	Version any `json:"Version,omitempty"`
}

// Function_Environment holds function environment variables.
type Function_Environment struct {
	Variables map[string]any `json:"Variables,omitempty"`
}

// Function_VpcConfig places the function in VPC subnets.
type Function_VpcConfig struct {
	SecurityGroupIds []any `json:"SecurityGroupIds,omitempty"`
	SubnetIds        []any `json:"SubnetIds,omitempty"`
}

// Function_EventSource is one entry of the Events map.
type Function_EventSource struct {
	Type_      string `json:"Type"`
	Properties any    `json:"Properties,omitempty"`
}

// Function_ApiEvent binds the function to a path and method of the implicit
// ServerlessRestApi (or RestApiId when set).
type Function_ApiEvent struct {
	Method    string `json:"Method"`
	Path      string `json:"Path"`
	RestApiId any    `json:"RestApiId,omitempty"`
}

// EventTypeApi is the SAM event type for API Gateway REST endpoints.
const EventTypeApi = "Api"

// ImplicitApiID is the logical id SAM gives the REST API it creates for Api
// events without a RestApiId.
const ImplicitApiID = "ServerlessRestApi"

// ImplicitResources lists logical ids the SAM transform generates for
// functions with implicit Api events. References to them are valid even though
// they do not appear in the pre-transform template.
func ImplicitResources() []string {
	return []string{ImplicitApiID, ImplicitApiID + "ProdStage", ImplicitApiID + "Deployment"}
}
