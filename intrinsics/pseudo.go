package intrinsics

import (
	"github.com/lex00/cloudformation-schema-go/intrinsics"
)

// Pseudo parameters used by the Cohort stacks. Each one encodes as
// {"Ref": "AWS::..."}.
var (
	AWS_ACCOUNT_ID = intrinsics.AWS_ACCOUNT_ID
	AWS_NO_VALUE   = intrinsics.AWS_NO_VALUE
	AWS_PARTITION  = intrinsics.AWS_PARTITION
	AWS_REGION     = intrinsics.AWS_REGION
	AWS_STACK_NAME = intrinsics.AWS_STACK_NAME
	AWS_URL_SUFFIX = intrinsics.AWS_URL_SUFFIX
)

// pseudoParameters lists every name CloudFormation resolves without a
// resource declaration, including those not re-exported above.
var pseudoParameters = map[string]bool{
	"AWS::AccountId":        true,
	"AWS::NotificationARNs": true,
	"AWS::NoValue":          true,
	"AWS::Partition":        true,
	"AWS::Region":           true,
	"AWS::StackId":          true,
	"AWS::StackName":        true,
	"AWS::URLSuffix":        true,
}

// IsPseudoParameter reports whether a Ref target is a pseudo parameter
// rather than a logical id.
func IsPseudoParameter(name string) bool {
	return pseudoParameters[name]
}
